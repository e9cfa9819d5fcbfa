package adapters

import (
	"context"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

// MockManifestReader serves a fixed manifest, or err when set
type MockManifestReader struct {
	manifest domain.Manifest
	err      error
}

var _ ports.ManifestReader = (*MockManifestReader)(nil)

func NewMockManifestReader(manifest domain.Manifest, err error) *MockManifestReader {
	return &MockManifestReader{manifest: manifest, err: err}
}

func (m MockManifestReader) ReadManifest(_ context.Context, path string) (domain.Manifest, error) {
	if m.err != nil {
		return domain.Manifest{}, m.err
	}
	manifest := m.manifest
	manifest.Path = path
	return manifest, nil
}

// PinnedManifest is a minimal manifest carrying the packages the service needs
func PinnedManifest() domain.Manifest {
	return domain.Manifest{
		Path: "requirements.txt",
		Requirements: []domain.Requirement{
			{Package: "fastapi", Constraint: "==0.104.1", Line: 1},
			{Package: "uvicorn", Extras: "[standard]", Constraint: "==0.24.0", Line: 2},
			{Package: "httpx", Constraint: "==0.25.2", Line: 3},
			{Package: "pydantic-settings", Constraint: "==2.1.0", Line: 4},
		},
	}
}
