package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"github.com/moby/go-archive"
	"github.com/moby/patternmatcher/ignorefile"
	"go.opentelemetry.io/otel"
)

// DockerBuilder builds targets through the Docker engine API
type DockerBuilder struct {
	client *client.Client
	output io.Writer
}

var _ ports.ImageBuilder = (*DockerBuilder)(nil)

// NewDockerBuilder connects with the usual DOCKER_HOST environment; build
// progress is streamed to output when it is not nil.
func NewDockerBuilder(output io.Writer) (*DockerBuilder, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	if output == nil {
		output = io.Discard
	}
	return &DockerBuilder{client: cli, output: output}, nil
}

func (d *DockerBuilder) Ready(ctx context.Context) bool {
	_, err := d.client.Ping(ctx)
	if err != nil {
		logger.L().Ctx(ctx).Warning("docker engine not reachable", helpers.Error(err))
	}
	return err == nil
}

// Build sends the context directory and the rendered Dockerfile to the engine.
// The engine only tags an image once every instruction has succeeded.
func (d *DockerBuilder) Build(ctx context.Context, request domain.BuildRequest) (domain.BuildResult, error) {
	ctx, span := otel.Tracer("").Start(ctx, "DockerBuilder.Build")
	defer span.End()

	// the Dockerfile has to live inside the build context
	dockerfile, err := os.CreateTemp(request.ContextDir, ".imagebuild-*.Dockerfile")
	if err != nil {
		return domain.BuildResult{}, fmt.Errorf("writing Dockerfile: %w", err)
	}
	defer os.Remove(dockerfile.Name())
	if _, err := dockerfile.Write(request.Dockerfile); err != nil {
		_ = dockerfile.Close()
		return domain.BuildResult{}, fmt.Errorf("writing Dockerfile: %w", err)
	}
	if err := dockerfile.Close(); err != nil {
		return domain.BuildResult{}, err
	}

	excludes, err := readDockerignore(request.ContextDir)
	if err != nil {
		return domain.BuildResult{}, err
	}
	if len(excludes) > 0 {
		excludes = append(excludes, "!"+filepath.Base(dockerfile.Name()))
	}
	buildContext, err := archive.TarWithOptions(request.ContextDir, &archive.TarOptions{ExcludePatterns: excludes})
	if err != nil {
		return domain.BuildResult{}, fmt.Errorf("archiving build context: %w", err)
	}
	defer buildContext.Close()

	logger.L().Ctx(ctx).Debug("building target",
		helpers.String("target", request.Target),
		helpers.String("context", request.ContextDir),
		helpers.String("tags", strings.Join(request.Tags, ",")))
	resp, err := d.client.ImageBuild(ctx, buildContext, build.ImageBuildOptions{
		Dockerfile:  filepath.Base(dockerfile.Name()),
		Target:      request.Target,
		Tags:        request.Tags,
		Labels:      request.Labels,
		Remove:      true,
		ForceRemove: true,
		PullParent:  false,
	})
	if err != nil {
		return domain.BuildResult{}, err
	}
	defer resp.Body.Close()

	var result domain.BuildResult
	err = jsonmessage.DisplayJSONMessagesStream(resp.Body, d.output, 0, false, func(msg jsonmessage.JSONMessage) {
		if msg.Aux == nil {
			return
		}
		var aux struct {
			ID string `json:"ID"`
		}
		if json.Unmarshal(*msg.Aux, &aux) == nil && aux.ID != "" {
			result.ImageID = aux.ID
		}
	})
	if err != nil {
		var jsonErr *jsonmessage.JSONError
		if errors.As(err, &jsonErr) {
			return domain.BuildResult{}, fmt.Errorf("%s target: %s", request.Target, jsonErr.Message)
		}
		return domain.BuildResult{}, err
	}
	return result, nil
}

func readDockerignore(contextDir string) ([]string, error) {
	b, err := os.ReadFile(filepath.Join(contextDir, ".dockerignore"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ignorefile.ReadAll(bytes.NewReader(b))
}

func (d *DockerBuilder) Close() error {
	return d.client.Close()
}
