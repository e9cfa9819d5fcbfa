package controllers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	apiv1 "github.com/cryptotracker/imagebuild/api/v1"
	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/cryptotracker/imagebuild/internal/tools"
	"github.com/gammazero/workerpool"
	"github.com/gin-gonic/gin"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"schneider.vip/problem"
)

// HTTPController maps AssemblyService, VerifyService and ProbeService ports to gin handlers
// that can be mapped to paths and methods, this mapping is usually done in main()
type HTTPController struct {
	assemblyService ports.AssemblyService
	verifyService   ports.VerifyService
	probeService    ports.ProbeService
	workerPool      *workerpool.WorkerPool
	contextDir      string
	buildTimeout    time.Duration
}

// NewHTTPController initializes the HTTPController struct with the injected services.
// probeService may be nil when no probe target is configured.
func NewHTTPController(assemblyService ports.AssemblyService, verifyService ports.VerifyService, probeService ports.ProbeService, concurrency int, contextDir string, buildTimeout time.Duration) *HTTPController {
	return &HTTPController{
		assemblyService: assemblyService,
		verifyService:   verifyService,
		probeService:    probeService,
		workerPool:      workerpool.New(concurrency),
		contextDir:      contextDir,
		buildTimeout:    buildTimeout,
	}
}

func (h HTTPController) Alive(c *gin.Context) {
	problem.Of(http.StatusOK).WriteTo(c.Writer)
}

// Ready calls assemblyService.Ready
func (h HTTPController) Ready(c *gin.Context) {
	if !h.assemblyService.Ready(c.Request.Context()) {
		problem.Of(http.StatusServiceUnavailable).WriteTo(c.Writer)
		return
	}

	problem.Of(http.StatusOK).WriteTo(c.Writer)
}

// Dockerfile renders the full plan for the default context
func (h HTTPController) Dockerfile(c *gin.Context) {
	command := apiv1.BuildCommand{Context: c.Query("context")}.ToDomain(h.contextDir)
	dockerfile, err := h.assemblyService.Render(c.Request.Context(), command)
	if err != nil {
		logger.L().Ctx(c.Request.Context()).Error("service error", helpers.Error(err))
		problem.Of(http.StatusInternalServerError).Append(problem.Detail(err.Error())).WriteTo(c.Writer)
		return
	}

	c.Data(http.StatusOK, "text/plain; charset=utf-8", dockerfile)
}

// Build unmarshalls the payload, validates it and queues assemblyService.Build
func (h HTTPController) Build(c *gin.Context) {
	var newBuild apiv1.BuildCommand
	err := c.ShouldBindJSON(&newBuild)
	if err != nil {
		logger.L().Ctx(c.Request.Context()).Error("handler error", helpers.Error(err))
		problem.Of(http.StatusBadRequest).WriteTo(c.Writer)
		return
	}

	details := problem.Detailf("Tag=%s", newBuild.Tag)

	ctx := context.Background()
	ctx, err = h.assemblyService.ValidateBuild(ctx, newBuild.ToDomain(h.contextDir))
	if err != nil {
		logger.L().Ctx(ctx).Error("validation error", helpers.Error(err), helpers.String("tag", newBuild.Tag))
		problem.Of(http.StatusInternalServerError).Append(details).WriteTo(c.Writer)
		return
	}
	buildID, _ := ctx.Value(domain.BuildIDKey{}).(string)

	problem.Of(http.StatusOK).Append(details, problem.Custom("buildID", buildID)).WriteTo(c.Writer)

	h.workerPool.Submit(func() {
		ctx, cancel := context.WithTimeout(ctx, h.buildTimeout)
		defer cancel()
		err := h.assemblyService.Build(ctx)
		if err != nil {
			logger.L().Ctx(ctx).Error("service error - Build", helpers.Error(err),
				helpers.String("buildID", buildID),
				helpers.String("tag", newBuild.Tag))
		}
	})
}

// GetBuild returns the record of a build
func (h HTTPController) GetBuild(c *gin.Context) {
	id := c.Param("id")
	record, err := h.assemblyService.GetBuild(c.Request.Context(), id)
	switch {
	case errors.Is(err, domain.ErrBuildNotFound):
		problem.Of(http.StatusNotFound).Append(problem.Detailf("ID=%s", id)).WriteTo(c.Writer)
		return
	case err != nil:
		logger.L().Ctx(c.Request.Context()).Error("service error", helpers.Error(err), helpers.String("buildID", id))
		problem.Of(http.StatusInternalServerError).Append(problem.Detailf("ID=%s", id)).WriteTo(c.Writer)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListBuilds returns every build record, most recent first
func (h HTTPController) ListBuilds(c *gin.Context) {
	records, err := h.assemblyService.ListBuilds(c.Request.Context())
	if err != nil {
		logger.L().Ctx(c.Request.Context()).Error("service error", helpers.Error(err))
		problem.Of(http.StatusInternalServerError).WriteTo(c.Writer)
		return
	}

	c.JSON(http.StatusOK, records)
}

// Verify unmarshalls the payload and calls verifyService.Verify
func (h HTTPController) Verify(c *gin.Context) {
	var newVerify apiv1.VerifyCommand
	err := c.ShouldBindJSON(&newVerify)
	if err != nil {
		logger.L().Ctx(c.Request.Context()).Error("handler error", helpers.Error(err))
		problem.Of(http.StatusBadRequest).WriteTo(c.Writer)
		return
	}

	image := newVerify.Image
	if !strings.HasSuffix(image, ".tar") {
		image = tools.NormalizeReference(image)
	}

	report, err := h.verifyService.Verify(c.Request.Context(), image, newVerify.Env)
	switch {
	case errors.Is(err, domain.ErrInvalidDescriptor):
		problem.Of(http.StatusBadRequest).Append(problem.Detail(err.Error())).WriteTo(c.Writer)
		return
	case err != nil:
		logger.L().Ctx(c.Request.Context()).Error("service error", helpers.Error(err), helpers.String("image", image))
		problem.Of(http.StatusInternalServerError).Append(problem.Detailf("Image=%s", image)).WriteTo(c.Writer)
		return
	}

	if !report.Compliant {
		c.JSON(http.StatusUnprocessableEntity, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Probe reports the watchdog state
func (h HTTPController) Probe(c *gin.Context) {
	if h.probeService == nil {
		problem.Of(http.StatusNotFound).Append(problem.Detail("no probe target configured")).WriteTo(c.Writer)
		return
	}

	state := h.probeService.State()
	if state.Status == domain.HealthUnhealthy {
		c.JSON(http.StatusServiceUnavailable, state)
		return
	}
	c.JSON(http.StatusOK, state)
}

func (h HTTPController) Shutdown() {
	logger.L().Info("purging build queue", helpers.String("remaining jobs", strconv.Itoa(h.workerPool.WaitingQueueSize())))
	h.workerPool.Stop()
}
