package v1

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// HTTPHealthChecker performs one GET against the health endpoint. Any
// transport error or non-2xx answer is a failed attempt.
type HTTPHealthChecker struct {
	url    string
	client *http.Client
}

var _ ports.HealthChecker = (*HTTPHealthChecker)(nil)

func NewHTTPHealthChecker(url string) *HTTPHealthChecker {
	return &HTTPHealthChecker{
		url:    url,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

func (h *HTTPHealthChecker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrUnhealthy, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %s answered %d", domain.ErrUnhealthy, h.url, resp.StatusCode)
	}
	return nil
}
