package services

import (
	"context"
	"fmt"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/akyoto/cache"
	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/docker/go-connections/nat"
	"github.com/hashicorp/go-multierror"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

const (
	RuleUser        = "user"
	RuleEnv         = "env"
	RulePort        = "port"
	RuleHealthcheck = "healthcheck"
	RuleLaunch      = "launch"
	RuleLabels      = "labels"
	RuleWorkDir     = "workdir"
	RuleToolchain   = "toolchain"
	RuleOwnership   = "ownership"
)

var toolchainDirs = mapset.NewSet("/usr/bin", "/usr/local/bin", "/bin")

// VerifyService checks a built image against the descriptor invariants
type VerifyService struct {
	descriptor domain.Descriptor
	inspector  ports.ImageInspector
	reports    *cache.Cache
	cacheTTL   time.Duration
	binaries   mapset.Set[string]
}

var _ ports.VerifyService = (*VerifyService)(nil)

// NewVerifyService initializes the VerifyService. Reports for digest-pinned
// references are cached for cacheTTL; zero disables caching.
func NewVerifyService(descriptor domain.Descriptor, inspector ports.ImageInspector, cacheTTL time.Duration) *VerifyService {
	s := &VerifyService{
		descriptor: descriptor,
		inspector:  inspector,
		cacheTTL:   cacheTTL,
		binaries:   mapset.NewSet(domain.DefaultToolchainBinaries...),
	}
	if cacheTTL > 0 {
		s.reports = cache.New(cacheTTL)
	}
	return s
}

// Verify inspects the image and collects every violated invariant. env holds
// the same runtime overrides the image was built with.
func (s *VerifyService) Verify(ctx context.Context, reference string, env map[string]string) (domain.VerificationReport, error) {
	ctx, span := otel.Tracer("").Start(ctx, "VerifyService.Verify")
	defer span.End()

	d, err := s.descriptor.WithOverrides(env)
	if err != nil {
		return domain.VerificationReport{}, err
	}

	cacheable := s.reports != nil && strings.Contains(reference, "@sha256:")
	key := reference + "|" + d.Digest().String()
	if cacheable {
		if cached, found := s.reports.Get(key); found {
			return cached.(domain.VerificationReport), nil
		}
	}

	inspection, err := s.inspector.Inspect(ctx, reference, true)
	if err != nil {
		return domain.VerificationReport{}, fmt.Errorf("inspecting %s: %w", reference, err)
	}

	report := domain.VerificationReport{
		Reference: reference,
		Checked:   time.Now(),
	}
	if result := s.check(d, inspection); result != nil {
		for _, e := range result.Errors {
			if v, ok := e.(domain.Violation); ok {
				report.Violations = append(report.Violations, v)
			}
		}
	}
	report.Compliant = len(report.Violations) == 0
	if !report.Compliant {
		logger.L().Ctx(ctx).Warning("image violates descriptor",
			helpers.String("reference", reference),
			helpers.Int("violations", len(report.Violations)))
	}
	if cacheable {
		s.reports.Set(key, report, s.cacheTTL)
	}
	return report, nil
}

func (s *VerifyService) check(d domain.Descriptor, in domain.ImageInspection) *multierror.Error {
	var result *multierror.Error
	violate := func(rule, format string, args ...any) {
		result = multierror.Append(result, domain.Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}
	id := d.Identity

	// identity
	if domain.IsRootUser(in.User) {
		violate(RuleUser, "image runs as privileged user %q", in.User)
	} else if in.User != id.Owner() && in.User != id.User && in.User != fmt.Sprint(id.UID) {
		violate(RuleUser, "image user %q is not %s", in.User, id.Owner())
	}

	// runtime defaults
	env := domain.ParseEnviron(in.Env)
	for _, v := range d.Runtime.Vars() {
		got, ok := env[v.Name]
		if !ok {
			violate(RuleEnv, "%s is not declared", v.Name)
		} else if got != v.Value {
			violate(RuleEnv, "%s=%q, want %q", v.Name, got, v.Value)
		}
	}

	if !slices.ContainsFunc(in.ExposedPorts, func(p string) bool {
		// a bare "8000" means tcp
		port := nat.Port(p)
		return port.Int() == d.Port && port.Proto() == "tcp"
	}) {
		violate(RulePort, "%s not exposed (have %v)", d.ExposedPort(), in.ExposedPorts)
	}

	if hc := in.Healthcheck; hc == nil {
		violate(RuleHealthcheck, "no health probe declared")
	} else {
		want := d.Probe
		if hc.Interval != want.Interval || hc.Timeout != want.Timeout || hc.StartPeriod != want.StartPeriod || hc.Retries != want.Retries {
			violate(RuleHealthcheck, "probe %s/%s/%s/%d, want %s/%s/%s/%d",
				hc.Interval, hc.Timeout, hc.StartPeriod, hc.Retries,
				want.Interval, want.Timeout, want.StartPeriod, want.Retries)
		}
		if !slices.Equal(hc.Command, want.Command) {
			violate(RuleHealthcheck, "probe command %q differs from %q", hc.Command, want.Command)
		}
	}

	if argv := d.Launch.Argv(); len(in.Entrypoint) > 0 || !slices.Equal(in.Cmd, argv) {
		violate(RuleLaunch, "launch command %q (entrypoint %q), want %q", in.Cmd, in.Entrypoint, argv)
	}

	for _, l := range d.Metadata.Labels() {
		if in.Labels[l.Name] != l.Value {
			violate(RuleLabels, "label %s=%q, want %q", l.Name, in.Labels[l.Name], l.Value)
		}
	}

	if path.Clean(in.WorkDir) != path.Clean(d.WorkDir) {
		violate(RuleWorkDir, "workdir %q, want %q", in.WorkDir, d.WorkDir)
	}

	appDest := d.AppDest()
	sourceFiles := 0
	for _, f := range in.Files {
		p := path.Clean("/" + f.Path)
		if s.isToolchain(p) {
			violate(RuleToolchain, "build toolchain artifact %s in runtime image", p)
		}
		if p != appDest && !strings.HasPrefix(p, appDest+"/") {
			continue
		}
		if !f.Dir {
			sourceFiles++
		}
		if f.UID != id.UID || f.GID != id.GID {
			violate(RuleOwnership, "%s owned by %d:%d, want %s", p, f.UID, f.GID, id.Owner())
		}
	}
	if sourceFiles == 0 {
		violate(RuleOwnership, "no application source under %s", appDest)
	}
	return result
}

func (s *VerifyService) isToolchain(p string) bool {
	for _, dir := range domain.DefaultToolchainPaths {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	dir, base := path.Split(p)
	if !toolchainDirs.Contains(path.Clean(dir)) {
		return false
	}
	if s.binaries.Contains(base) {
		return true
	}
	// versioned compiler names such as gcc-12 or x86_64-linux-gnu-g++-12
	for _, prefix := range []string{"gcc-", "g++-", "cpp-"} {
		if strings.HasPrefix(base, prefix) || strings.Contains(base, "-linux-gnu-"+prefix) {
			return true
		}
	}
	return strings.HasSuffix(base, "-linux-gnu-gcc") || strings.HasSuffix(base, "-linux-gnu-g++")
}
