package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	v1 "github.com/cryptotracker/imagebuild/adapters/v1"
	"github.com/cryptotracker/imagebuild/config"
	"github.com/cryptotracker/imagebuild/controllers"
	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/cryptotracker/imagebuild/core/services"
	"github.com/cryptotracker/imagebuild/internal/listener"
	"github.com/cryptotracker/imagebuild/internal/tools"
	"github.com/cryptotracker/imagebuild/repositories"
	"github.com/gin-gonic/gin"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

func main() {
	ctx := context.Background()

	configDir := "/etc/config"
	if envPath := os.Getenv("CONFIG_DIR"); envPath != "" {
		configDir = envPath
	}

	c, err := config.LoadConfig(configDir)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("load config error", helpers.Error(err))
	}

	// to enable otel, set OTEL_COLLECTOR_SVC=otel-collector:4317
	if otelHost, present := os.LookupEnv("OTEL_COLLECTOR_SVC"); present {
		ctx = logger.InitOtel("imagebuild",
			os.Getenv("RELEASE"),
			"",
			"",
			url.URL{Host: otelHost})
		defer logger.ShutdownOtel(ctx)
	}

	// modify context to listen to interrupt signals from the OS.
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	descriptor := domain.DefaultDescriptor()
	if c.DescriptorFile != "" {
		descriptor, err = v1.LoadDescriptorFile(c.DescriptorFile, descriptor)
		if err != nil {
			logger.L().Ctx(ctx).Fatal("descriptor file error", helpers.Error(err))
		}
	}
	descriptor, err = c.ApplyOverrides(descriptor)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("invalid descriptor", helpers.Error(err))
	}
	logger.L().Info("descriptor loaded",
		helpers.String("digest", descriptor.Digest().String()),
		helpers.Int("port", descriptor.Port),
		helpers.String("docker client", tools.PackageVersion("github.com/docker/docker")))

	builder, err := v1.NewDockerBuilder(os.Stdout)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("docker client error", helpers.Error(err))
	}
	defer builder.Close()

	storage := repositories.NewMemoryStorage()
	assembly := services.NewAssemblyService(descriptor, v1.NewRequirementsReader(), builder, v1.NewDockerfileRenderer(), storage)
	verify := services.NewVerifyService(descriptor, v1.NewRegistryInspector(v1.ImageSource(c.ImageSource)), c.VerifyCacheTTL)

	target, err := c.WatchTarget(descriptor)
	if err != nil {
		logger.L().Ctx(ctx).Fatal("invalid probe target", helpers.Error(err))
	}
	var probe ports.ProbeService
	if target != "" {
		logger.L().Info("watching service", helpers.String("url", target))
		watchdog := services.NewWatchdog(descriptor.Probe, v1.NewHTTPHealthChecker(target))
		go func() {
			if err := watchdog.Run(ctx); err != nil {
				logger.L().Ctx(ctx).Error("watchdog stopped", helpers.Error(err))
			}
		}()
		probe = watchdog
	}

	controller := controllers.NewHTTPController(assembly, verify, probe, c.BuildConcurrency, c.ContextDir, c.BuildTimeout)

	gin.SetMode(gin.ReleaseMode)
	router := listener.NewRouter(controller)

	srv := &http.Server{
		Addr:    c.ListenAddr,
		Handler: router,
	}

	// Initializing the server in a goroutine so that
	// it won't block the graceful shutdown handling below
	go func() {
		logger.L().Info("starting server", helpers.String("addr", c.ListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.L().Ctx(ctx).Fatal("router error", helpers.Error(err))
		}
	}()

	// Listen for the interrupt signal.
	<-ctx.Done()

	// Restore default behavior on the interrupt signal and notify user of shutdown.
	stop()
	logger.L().Info("shutting down gracefully")

	// modify context to inform the server it has 5 seconds to finish
	// the request it is currently handling
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L().Ctx(ctx).Fatal("server forced to shutdown", helpers.Error(err))
	}

	// Purging the controller worker queue
	controller.Shutdown()

	logger.L().Info("imagebuild exiting")
}
