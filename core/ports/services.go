package ports

import (
	"context"

	"github.com/cryptotracker/imagebuild/core/domain"
)

// AssemblyService is the port implemented by the business component AssemblyService
type AssemblyService interface {
	Build(ctx context.Context) error
	GetBuild(ctx context.Context, id string) (domain.BuildRecord, error)
	ListBuilds(ctx context.Context) ([]domain.BuildRecord, error)
	Plan(ctx context.Context, command domain.BuildCommand) (domain.Plan, error)
	Ready(ctx context.Context) bool
	Render(ctx context.Context, command domain.BuildCommand) ([]byte, error)
	ValidateBuild(ctx context.Context, command domain.BuildCommand) (context.Context, error)
}

// VerifyService is the port implemented by the business component VerifyService
type VerifyService interface {
	Verify(ctx context.Context, reference string, env map[string]string) (domain.VerificationReport, error)
}

// ProbeService is the port implemented by the health probe runner
type ProbeService interface {
	Run(ctx context.Context) error
	State() domain.HealthState
}
