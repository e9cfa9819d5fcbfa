package services

import (
	"fmt"
	"path"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
)

// Planner turns a descriptor into Dockerfile instructions, one lifecycle
// step at a time. Steps must be called in order; each one advances the
// plan's stage and there is no way back.
type Planner struct {
	descriptor      domain.Descriptor
	plan            domain.Plan
	manifest        domain.Manifest
	identityCreated bool
	sourceCopied    bool
}

func NewPlanner(descriptor domain.Descriptor) *Planner {
	return &Planner{descriptor: descriptor}
}

// Plan returns a copy of the instructions emitted so far
func (p *Planner) Plan() domain.Plan {
	return domain.Plan{
		Builder: append([]domain.Instruction(nil), p.plan.Builder...),
		Runtime: append([]domain.Instruction(nil), p.plan.Runtime...),
		Stage:   p.plan.Stage,
	}
}

func (p *Planner) Stage() domain.Stage {
	return p.plan.Stage
}

// DeclareManifest records the immutable input of the builder stage
func (p *Planner) DeclareManifest(manifest domain.Manifest) error {
	if len(manifest.Requirements) == 0 {
		return fmt.Errorf("%w: %s has no requirements", domain.ErrManifestMalformed, manifest.Path)
	}
	if err := manifest.Require(p.descriptor.RequiredPackages...); err != nil {
		return err
	}
	if err := p.plan.Advance(domain.StageManifestDeclared); err != nil {
		return err
	}
	p.manifest = manifest
	return nil
}

// PlanDependencies emits the builder stage. The toolchain is installed here
// and nowhere else.
func (p *Planner) PlanDependencies() error {
	if p.plan.Stage != domain.StageManifestDeclared || len(p.plan.Builder) > 0 {
		return fmt.Errorf("%w: dependencies planned at %s", domain.ErrInvalidTransition, p.plan.Stage)
	}
	d := p.descriptor
	venvBin := path.Join(d.EnvironmentPath, "bin")
	p.plan.Builder = append(p.plan.Builder,
		domain.Instruction{Op: domain.OpFrom, Args: []string{d.BuilderImage, "AS", domain.BuilderTarget}, Comment: "Stage 1: resolve dependencies into a relocatable environment"},
	)
	if len(d.Toolchain) > 0 {
		p.plan.Builder = append(p.plan.Builder, domain.Instruction{Op: domain.OpRun, Args: []string{
			"apt-get update",
			"apt-get install -y --no-install-recommends " + strings.Join(d.Toolchain, " "),
			"rm -rf /var/lib/apt/lists/*",
		}})
	}
	p.plan.Builder = append(p.plan.Builder,
		domain.Instruction{Op: domain.OpRun, Args: []string{"python -m venv " + d.EnvironmentPath}},
		domain.Instruction{Op: domain.OpEnv, Pairs: []domain.EnvVar{{Name: "PATH", Value: venvBin + ":$PATH"}}, Expand: true},
		domain.Instruction{Op: domain.OpCopy, Args: []string{d.ManifestPath, "/tmp/" + path.Base(d.ManifestPath)}},
		domain.Instruction{Op: domain.OpRun, Args: []string{
			"pip install --no-cache-dir --upgrade pip",
			"pip install --no-cache-dir -r /tmp/" + path.Base(d.ManifestPath),
		}},
	)
	return nil
}

// MarkDependenciesResolved is called once the builder stage has been
// materialized by the engine
func (p *Planner) MarkDependenciesResolved() (domain.Environment, error) {
	if len(p.plan.Builder) == 0 {
		return domain.Environment{}, fmt.Errorf("%w: builder stage not planned", domain.ErrInvalidTransition)
	}
	if err := p.plan.Advance(domain.StageDependenciesResolved); err != nil {
		return domain.Environment{}, err
	}
	return domain.Environment{Path: p.descriptor.EnvironmentPath, ManifestDigest: p.manifest.Digest()}, nil
}

// CreateIdentity starts the production stage and adds the fixed uid/gid account
func (p *Planner) CreateIdentity() error {
	if p.plan.Stage != domain.StageDependenciesResolved || p.identityCreated {
		return fmt.Errorf("%w: identity created at %s", domain.ErrInvalidTransition, p.plan.Stage)
	}
	id := p.descriptor.Identity
	if err := id.Validate(); err != nil {
		return err
	}
	if err := p.append(
		domain.Instruction{Op: domain.OpFrom, Args: []string{p.descriptor.RuntimeImage, "AS", domain.ProductionTarget}, Comment: "Stage 2: minimal runtime"},
		domain.Instruction{Op: domain.OpRun, Args: []string{
			fmt.Sprintf("groupadd --system --gid %d %s", id.GID, id.Group),
			fmt.Sprintf("useradd --system --uid %d --gid %d --no-create-home --shell /usr/sbin/nologin %s", id.UID, id.GID, id.User),
		}},
		domain.Instruction{Op: domain.OpWorkdir, Args: []string{p.descriptor.WorkDir}},
	); err != nil {
		return err
	}
	p.identityCreated = true
	return nil
}

// TransplantEnvironment copies the materialized environment verbatim
func (p *Planner) TransplantEnvironment(env domain.Environment) error {
	if !p.identityCreated {
		return fmt.Errorf("%w: identity must exist before the environment is transplanted", domain.ErrInvalidTransition)
	}
	if err := p.append(
		domain.Instruction{Op: domain.OpCopy, Flags: []string{"--from=" + domain.BuilderTarget}, Args: []string{env.Path, env.Path}},
		domain.Instruction{Op: domain.OpEnv, Pairs: []domain.EnvVar{{Name: "PATH", Value: path.Join(env.Path, "bin") + ":$PATH"}}, Expand: true},
	); err != nil {
		return err
	}
	return p.plan.Advance(domain.StageEnvironmentTransplanted)
}

// CopySource copies the application with ownership set at copy time
func (p *Planner) CopySource() error {
	if p.plan.Stage != domain.StageEnvironmentTransplanted || p.sourceCopied {
		return fmt.Errorf("%w: source copied at %s", domain.ErrInvalidTransition, p.plan.Stage)
	}
	d := p.descriptor
	if err := p.append(domain.Instruction{
		Op:    domain.OpCopy,
		Flags: []string{"--chown=" + d.Identity.Owner()},
		Args:  []string{strings.TrimSuffix(d.SourcePath, "/") + "/", d.AppDest() + "/"},
	}); err != nil {
		return err
	}
	p.sourceCopied = true
	return nil
}

// DropPrivileges switches to the execution identity for good
func (p *Planner) DropPrivileges() error {
	if !p.sourceCopied {
		return fmt.Errorf("%w: source must be copied before dropping privileges", domain.ErrInvalidTransition)
	}
	if err := p.append(domain.Instruction{Op: domain.OpUser, Args: []string{p.descriptor.Identity.Owner()}}); err != nil {
		return err
	}
	return p.plan.Advance(domain.StageIdentityDropped)
}

// Configure declares env defaults, the documented port, the health probe and metadata
func (p *Planner) Configure() error {
	if p.plan.Stage != domain.StageIdentityDropped {
		return fmt.Errorf("%w: configure at %s", domain.ErrInvalidTransition, p.plan.Stage)
	}
	d := p.descriptor
	probe := d.Probe
	if err := p.append(
		domain.Instruction{Op: domain.OpEnv, Pairs: d.Runtime.Vars()},
		domain.Instruction{Op: domain.OpExpose, Args: []string{fmt.Sprint(d.Port)}},
		domain.Instruction{
			Op: domain.OpHealthcheck,
			Flags: []string{
				"--interval=" + probe.Interval.String(),
				"--timeout=" + probe.Timeout.String(),
				"--start-period=" + probe.StartPeriod.String(),
				fmt.Sprintf("--retries=%d", probe.Retries),
			},
			Args: probe.Command,
			Exec: true,
		},
		domain.Instruction{Op: domain.OpLabel, Pairs: d.Metadata.Labels()},
	); err != nil {
		return err
	}
	return p.plan.Advance(domain.StageConfigured)
}

// Launch declares the foreground process
func (p *Planner) Launch() error {
	if p.plan.Stage != domain.StageConfigured {
		return fmt.Errorf("%w: launch at %s", domain.ErrInvalidTransition, p.plan.Stage)
	}
	if err := p.append(domain.Instruction{Op: domain.OpCmd, Args: p.descriptor.Launch.Argv(), Exec: true}); err != nil {
		return err
	}
	return p.plan.Advance(domain.StageLaunched)
}

// Append adds extra runtime instructions. Once the identity has been
// dropped nothing may switch back to root.
func (p *Planner) Append(instructions ...domain.Instruction) error {
	if !p.identityCreated {
		return fmt.Errorf("%w: runtime stage not started", domain.ErrInvalidTransition)
	}
	if p.plan.Stage == domain.StageLaunched {
		return fmt.Errorf("%w: plan already launched", domain.ErrInvalidTransition)
	}
	return p.append(instructions...)
}

func (p *Planner) append(instructions ...domain.Instruction) error {
	for _, inst := range instructions {
		if !p.plan.Stage.Privileged() && inst.Op == domain.OpUser && domain.IsRootUser(strings.Join(inst.Args, "")) {
			return fmt.Errorf("%w: USER %s at %s", domain.ErrPrivilegeEscalation, strings.Join(inst.Args, ""), p.plan.Stage)
		}
		if inst.Op == domain.OpFrom && len(p.plan.Runtime) > 0 {
			return fmt.Errorf("%w: runtime stage already started", domain.ErrInvalidTransition)
		}
	}
	p.plan.Runtime = append(p.plan.Runtime, instructions...)
	return nil
}

// PlanAll runs every step without building, as used for rendering
func PlanAll(descriptor domain.Descriptor, manifest domain.Manifest) (domain.Plan, error) {
	p := NewPlanner(descriptor)
	if err := p.DeclareManifest(manifest); err != nil {
		return p.Plan(), err
	}
	if err := p.PlanDependencies(); err != nil {
		return p.Plan(), err
	}
	env, err := p.MarkDependenciesResolved()
	if err != nil {
		return p.Plan(), err
	}
	if err := p.planRuntime(env); err != nil {
		return p.Plan(), err
	}
	return p.Plan(), nil
}

func (p *Planner) planRuntime(env domain.Environment) error {
	steps := []func() error{
		p.CreateIdentity,
		func() error { return p.TransplantEnvironment(env) },
		p.CopySource,
		p.DropPrivileges,
		p.Configure,
		p.Launch,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}
