package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/adrg/xdg"
	v1 "github.com/cryptotracker/imagebuild/adapters/v1"
	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/services"
	"github.com/cryptotracker/imagebuild/repositories"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
)

func main() {
	// Define command line flags
	var (
		render         = flag.Bool("render", false, "Print the Dockerfile for the build context")
		build          = flag.Bool("build", false, "Build and tag the image")
		verifyImage    = flag.String("verify", "", "Image reference (or .tar file) to verify")
		probeURL       = flag.String("probe", "", "Service URL to watch until it is healthy or unhealthy")
		ready          = flag.Bool("ready", false, "Watch the readiness endpoint instead of the liveness one")
		descriptorFile = flag.String("descriptor", "", "HCL descriptor file overriding the defaults")
		contextDir     = flag.String("context", ".", "Build context directory")
		tag            = flag.String("tag", "crypto-tracker:latest", "Image tag to produce")
		source         = flag.String("source", "auto", "Where to load images from: auto, daemon or remote")
		timeout        = flag.Duration("timeout", 15*time.Minute, "Overall timeout")
		help           = flag.Bool("help", false, "Show help")
	)
	env := envFlag{}
	flag.Var(env, "env", "Runtime override NAME=VALUE for -build and -verify, repeatable")
	flag.Parse()

	if *help || (!*render && !*build && *verifyImage == "" && *probeURL == "") {
		fmt.Println("imagebuild - Crypto Tracker image assembly")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  imagebuild -render|-build|-verify <image>|-probe <url> [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		fmt.Println()
		fmt.Println("Examples:")
		fmt.Println("  imagebuild -render -context ./service")
		fmt.Println("  imagebuild -build -context ./service -tag crypto-tracker:1.0.0 -env APP_PORT=9000")
		fmt.Println("  imagebuild -verify crypto-tracker:1.0.0 -source daemon -env APP_PORT=9000")
		fmt.Println("  imagebuild -probe http://localhost:8000 -ready")
		if !*help {
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	descriptor := domain.DefaultDescriptor()
	if *descriptorFile != "" {
		var err error
		descriptor, err = v1.LoadDescriptorFile(*descriptorFile, descriptor)
		if err != nil {
			logger.L().Ctx(ctx).Fatal("descriptor file error", helpers.Error(err))
		}
	}

	exit := 0
	switch {
	case *render:
		assembly := services.NewAssemblyService(descriptor, v1.NewRequirementsReader(), nil, v1.NewDockerfileRenderer(), repositories.NewMemoryStorage())
		dockerfile, err := assembly.Render(ctx, domain.BuildCommand{ContextDir: *contextDir, Tag: *tag})
		if err != nil {
			logger.L().Ctx(ctx).Fatal("render failed", helpers.Error(err))
		}
		fmt.Print(string(dockerfile))
	case *build:
		exit = runBuild(ctx, descriptor, *contextDir, *tag, env)
	case *verifyImage != "":
		exit = runVerify(ctx, descriptor, *verifyImage, v1.ImageSource(*source), env)
	case *probeURL != "":
		target, err := descriptor.WatchURL(*probeURL, *ready)
		if err != nil {
			logger.L().Ctx(ctx).Fatal("invalid probe target", helpers.Error(err))
		}
		exit = runProbe(ctx, descriptor.Probe, target)
	}
	os.Exit(exit)
}

func runBuild(ctx context.Context, descriptor domain.Descriptor, contextDir, tag string, env envFlag) int {
	builder, err := v1.NewDockerBuilder(os.Stderr)
	if err != nil {
		logger.L().Ctx(ctx).Error("docker client error", helpers.Error(err))
		return 1
	}
	defer builder.Close()
	storage := repositories.NewMemoryStorage()
	assembly := services.NewAssemblyService(descriptor, v1.NewRequirementsReader(), builder, v1.NewDockerfileRenderer(), storage)
	ctx, err = assembly.ValidateBuild(ctx, domain.BuildCommand{ContextDir: contextDir, Tag: tag, Env: env})
	if err != nil {
		logger.L().Ctx(ctx).Error("invalid build", helpers.Error(err))
		return 1
	}
	buildID, _ := ctx.Value(domain.BuildIDKey{}).(string)
	buildErr := assembly.Build(ctx)
	record, err := storage.GetBuild(ctx, buildID)
	if err == nil {
		saveReport("build-"+buildID, record)
		fmt.Printf("build %s: %s at stage %s\n", record.ID, record.Status, record.Stage)
	}
	if buildErr != nil {
		return 1
	}
	return 0
}

func runVerify(ctx context.Context, descriptor domain.Descriptor, image string, source v1.ImageSource, env envFlag) int {
	verify := services.NewVerifyService(descriptor, v1.NewRegistryInspector(source), 0)
	report, err := verify.Verify(ctx, image, env)
	if err != nil {
		logger.L().Ctx(ctx).Error("verification failed", helpers.Error(err))
		return 1
	}
	saveReport("verify-"+filepath.Base(image), report)
	for _, v := range report.Violations {
		fmt.Printf("%s: %s\n", v.Rule, v.Detail)
	}
	if !report.Compliant {
		fmt.Printf("%s: %d violation(s)\n", image, len(report.Violations))
		return 1
	}
	fmt.Printf("%s: compliant\n", image)
	return 0
}

func runProbe(ctx context.Context, probe domain.HealthProbeSpec, target string) int {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	watchdog := services.NewWatchdog(probe, v1.NewHTTPHealthChecker(target))
	watchdog.OnChange(func(state domain.HealthState) {
		fmt.Printf("%s: %s\n", target, state.Status)
		cancel()
	})
	_ = watchdog.Run(ctx)
	if watchdog.State().Status != domain.HealthHealthy {
		return 1
	}
	return 0
}

// envFlag collects repeated -env NAME=VALUE pairs
type envFlag map[string]string

func (e envFlag) String() string {
	pairs := make([]string, 0, len(e))
	for name, value := range e {
		pairs = append(pairs, name+"="+value)
	}
	sort.Strings(pairs)
	return strings.Join(pairs, ",")
}

func (e envFlag) Set(v string) error {
	name, value, ok := strings.Cut(v, "=")
	if !ok || name == "" {
		return fmt.Errorf("%q is not NAME=VALUE", v)
	}
	e[name] = value
	return nil
}

// saveReport keeps the last report of each kind under the user cache dir
func saveReport(name string, report any) {
	dir := path.Join(xdg.CacheHome, "imagebuild", "reports")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.L().Warning("cannot create report dir", helpers.Error(err))
		return
	}
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.L().Warning("cannot encode report", helpers.Error(err))
		return
	}
	file := path.Join(dir, name+".json")
	if err := os.WriteFile(file, b, 0o644); err != nil {
		logger.L().Warning("cannot write report", helpers.Error(err))
		return
	}
	logger.L().Info("report saved", helpers.String("path", file))
}
