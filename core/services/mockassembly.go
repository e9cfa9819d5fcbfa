package services

import (
	"context"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

type MockAssemblyService struct {
	happy bool
}

var _ ports.AssemblyService = (*MockAssemblyService)(nil)

func NewMockAssemblyService(happy bool) *MockAssemblyService {
	return &MockAssemblyService{happy: happy}
}

func (m MockAssemblyService) Build(context.Context) error {
	if m.happy {
		return nil
	}
	return domain.ErrMockError
}

func (m MockAssemblyService) GetBuild(_ context.Context, id string) (domain.BuildRecord, error) {
	if m.happy {
		return domain.BuildRecord{ID: id, Status: domain.BuildSucceeded, Stage: domain.StageLaunched}, nil
	}
	return domain.BuildRecord{}, domain.ErrBuildNotFound
}

func (m MockAssemblyService) ListBuilds(context.Context) ([]domain.BuildRecord, error) {
	if m.happy {
		return []domain.BuildRecord{{ID: "mock-build", Status: domain.BuildSucceeded, Stage: domain.StageLaunched}}, nil
	}
	return nil, domain.ErrMockError
}

func (m MockAssemblyService) Plan(context.Context, domain.BuildCommand) (domain.Plan, error) {
	if m.happy {
		return domain.Plan{Stage: domain.StageLaunched}, nil
	}
	return domain.Plan{}, domain.ErrMockError
}

func (m MockAssemblyService) Ready(context.Context) bool {
	return m.happy
}

func (m MockAssemblyService) Render(context.Context, domain.BuildCommand) ([]byte, error) {
	if m.happy {
		return []byte("FROM scratch\n"), nil
	}
	return nil, domain.ErrMockError
}

func (m MockAssemblyService) ValidateBuild(ctx context.Context, _ domain.BuildCommand) (context.Context, error) {
	if m.happy {
		return context.WithValue(ctx, domain.BuildIDKey{}, "mock-build"), nil
	}
	return ctx, domain.ErrMockError
}

type MockVerifyService struct {
	compliant bool
}

var _ ports.VerifyService = (*MockVerifyService)(nil)

func NewMockVerifyService(compliant bool) *MockVerifyService {
	return &MockVerifyService{compliant: compliant}
}

func (m MockVerifyService) Verify(_ context.Context, reference string, _ map[string]string) (domain.VerificationReport, error) {
	report := domain.VerificationReport{Reference: reference, Compliant: m.compliant}
	if !m.compliant {
		report.Violations = []domain.Violation{{Rule: RuleUser, Detail: `image runs as privileged user "root"`}}
	}
	return report, nil
}
