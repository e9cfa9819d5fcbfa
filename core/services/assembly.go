package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/cryptotracker/imagebuild/internal/tools"
	"github.com/google/uuid"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

// AssemblyService implements AssemblyService from ports, this is the business component
// business logic should be independent of implementations
type AssemblyService struct {
	descriptor domain.Descriptor
	manifests  ports.ManifestReader
	builder    ports.ImageBuilder
	renderer   ports.DockerfileRenderer
	repository ports.BuildRepository
}

var _ ports.AssemblyService = (*AssemblyService)(nil)

// NewAssemblyService initializes the AssemblyService with all injected dependencies
func NewAssemblyService(descriptor domain.Descriptor, manifests ports.ManifestReader, builder ports.ImageBuilder, renderer ports.DockerfileRenderer, repository ports.BuildRepository) *AssemblyService {
	return &AssemblyService{
		descriptor: descriptor,
		manifests:  manifests,
		builder:    builder,
		renderer:   renderer,
		repository: repository,
	}
}

func (s *AssemblyService) descriptorFor(command domain.BuildCommand) (domain.Descriptor, error) {
	return s.descriptor.WithOverrides(command.Env)
}

func (s *AssemblyService) readManifest(ctx context.Context, command domain.BuildCommand, d domain.Descriptor) (domain.Manifest, error) {
	return s.manifests.ReadManifest(ctx, filepath.Join(command.ContextDir, d.ManifestPath))
}

// Plan runs every planning step without touching the engine
func (s *AssemblyService) Plan(ctx context.Context, command domain.BuildCommand) (domain.Plan, error) {
	ctx, span := otel.Tracer("").Start(ctx, "AssemblyService.Plan")
	defer span.End()
	d, err := s.descriptorFor(command)
	if err != nil {
		return domain.Plan{}, err
	}
	manifest, err := s.readManifest(ctx, command, d)
	if err != nil {
		return domain.Plan{}, err
	}
	return PlanAll(d, manifest)
}

// Render returns the Dockerfile for the full plan
func (s *AssemblyService) Render(ctx context.Context, command domain.BuildCommand) ([]byte, error) {
	plan, err := s.Plan(ctx, command)
	if err != nil {
		return nil, err
	}
	return s.renderer.Render(plan)
}

// Ready proxies the image builder's readiness
func (s *AssemblyService) Ready(ctx context.Context) bool {
	return s.builder.Ready(ctx)
}

// GetBuild returns a stored build record
func (s *AssemblyService) GetBuild(ctx context.Context, id string) (domain.BuildRecord, error) {
	return s.repository.GetBuild(ctx, id)
}

// ListBuilds returns every stored build record, most recent first
func (s *AssemblyService) ListBuilds(ctx context.Context) ([]domain.BuildRecord, error) {
	return s.repository.ListBuilds(ctx)
}

// ValidateBuild checks the command, assigns a build ID and queues a record
func (s *AssemblyService) ValidateBuild(ctx context.Context, command domain.BuildCommand) (context.Context, error) {
	// record start time
	started := time.Now()
	ctx = context.WithValue(ctx, domain.TimestampKey{}, started)
	// generate unique buildID and add to context
	buildID, err := uuid.NewRandom()
	if err != nil {
		logger.L().Ctx(ctx).Error("error generating buildID", helpers.Error(err))
	}
	ctx = context.WithValue(ctx, domain.BuildIDKey{}, buildID.String())
	// validate inputs
	if command.ContextDir == "" {
		return ctx, errors.New("missing context directory")
	}
	tag, err := tools.ParseTag(command.Tag)
	if err != nil {
		return ctx, fmt.Errorf("invalid tag %q: %w", command.Tag, err)
	}
	command.Tag = tag
	ctx = context.WithValue(ctx, domain.CommandKey{}, command)
	d, err := s.descriptorFor(command)
	if err != nil {
		return ctx, err
	}
	record := domain.BuildRecord{
		ID:               buildID.String(),
		Tag:              tag,
		DescriptorDigest: d.Digest(),
		Stage:            domain.StagePending,
		Status:           domain.BuildQueued,
		Started:          started,
	}
	if err := s.repository.StoreBuild(ctx, record); err != nil {
		return ctx, err
	}
	return ctx, nil
}

// Build implements the two-stage assembly. The builder target is built
// first and untagged; the production target is only tagged when every
// step succeeded.
func (s *AssemblyService) Build(ctx context.Context) error {
	ctx, span := otel.Tracer("").Start(ctx, "AssemblyService.Build")
	defer span.End()
	// retrieve command from context
	command, ok := ctx.Value(domain.CommandKey{}).(domain.BuildCommand)
	if !ok {
		return domain.ErrCastingCommand
	}
	buildID, ok := ctx.Value(domain.BuildIDKey{}).(string)
	if !ok || buildID == "" {
		return domain.ErrMissingBuildID
	}
	started, ok := ctx.Value(domain.TimestampKey{}).(time.Time)
	if !ok {
		started = time.Now()
	}
	record, err := s.repository.GetBuild(ctx, buildID)
	if err != nil {
		record = domain.BuildRecord{ID: buildID, Tag: command.Tag, Started: started}
	}
	record.Status = domain.BuildRunning
	s.store(ctx, record)

	fail := func(err error) error {
		record.Status = domain.BuildFailed
		record.Error = err.Error()
		record.Finished = time.Now()
		s.store(ctx, record)
		logger.L().Ctx(ctx).Error("build failed",
			helpers.String("buildID", buildID),
			helpers.String("stage", record.Stage.String()),
			helpers.Error(err))
		return err
	}

	d, err := s.descriptorFor(command)
	if err != nil {
		return fail(err)
	}
	record.DescriptorDigest = d.Digest()
	manifest, err := s.readManifest(ctx, command, d)
	if err != nil {
		return fail(err)
	}
	planner := NewPlanner(d)
	if err := planner.DeclareManifest(manifest); err != nil {
		return fail(err)
	}
	record.Stage = planner.Stage()
	record.ManifestDigest = manifest.Digest()
	record.Pinned = manifest.Pinned()
	if !record.Pinned {
		logger.L().Ctx(ctx).Warning("manifest is not fully pinned, resolution may differ between builds",
			helpers.String("manifest", manifest.Path))
	}
	s.store(ctx, record)

	// stage 1
	if err := planner.PlanDependencies(); err != nil {
		return fail(err)
	}
	dockerfile, err := s.renderer.Render(planner.Plan().BuilderOnly())
	if err != nil {
		return fail(err)
	}
	logger.L().Ctx(ctx).Info("resolving dependencies", helpers.String("buildID", buildID), helpers.Int("requirements", len(manifest.Requirements)))
	if _, err := s.builder.Build(ctx, domain.BuildRequest{
		ContextDir: command.ContextDir,
		Dockerfile: dockerfile,
		Target:     domain.BuilderTarget,
	}); err != nil {
		return fail(fmt.Errorf("%w: %s stage: %w", domain.ErrBuildFailed, domain.BuilderTarget, err))
	}
	env, err := planner.MarkDependenciesResolved()
	if err != nil {
		return fail(err)
	}
	record.Stage = planner.Stage()
	s.store(ctx, record)

	// stage 2
	if err := planner.planRuntime(env); err != nil {
		return fail(err)
	}
	dockerfile, err = s.renderer.Render(planner.Plan())
	if err != nil {
		return fail(err)
	}
	labels := tools.LabelsFromReference(command.Tag)
	labels["imagebuild.build-id"] = buildID
	result, err := s.builder.Build(ctx, domain.BuildRequest{
		ContextDir: command.ContextDir,
		Dockerfile: dockerfile,
		Target:     domain.ProductionTarget,
		Tags:       []string{command.Tag},
		Labels:     labels,
	})
	if err != nil {
		return fail(fmt.Errorf("%w: %s stage: %w", domain.ErrBuildFailed, domain.ProductionTarget, err))
	}
	record.Stage = planner.Stage()
	record.Status = domain.BuildSucceeded
	record.ImageID = result.ImageID
	record.Finished = time.Now()
	s.store(ctx, record)
	logger.L().Ctx(ctx).Info("image built",
		helpers.String("buildID", buildID),
		helpers.String("tag", command.Tag),
		helpers.String("imageID", result.ImageID),
		helpers.String("duration", time.Since(started).Round(time.Millisecond).String()))
	return nil
}

func (s *AssemblyService) store(ctx context.Context, record domain.BuildRecord) {
	if err := s.repository.StoreBuild(ctx, record); err != nil {
		logger.L().Ctx(ctx).Warning("storing build record", helpers.String("buildID", record.ID), helpers.Error(err))
	}
}
