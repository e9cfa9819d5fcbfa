package ports

import (
	"context"

	"github.com/cryptotracker/imagebuild/core/domain"
)

// ManifestReader is the port implemented by adapters to load the dependency manifest
type ManifestReader interface {
	ReadManifest(ctx context.Context, path string) (domain.Manifest, error)
}

// ImageBuilder is the port implemented by adapters to run one build target.
// A failed build must not leave a tagged image behind.
type ImageBuilder interface {
	Build(ctx context.Context, request domain.BuildRequest) (domain.BuildResult, error)
	Ready(ctx context.Context) bool
}

// DockerfileRenderer is the port implemented by adapters to serialize a plan
type DockerfileRenderer interface {
	Render(plan domain.Plan) ([]byte, error)
}

// ImageInspector is the port implemented by adapters to read a built image
type ImageInspector interface {
	Inspect(ctx context.Context, reference string, withFiles bool) (domain.ImageInspection, error)
}

// HealthChecker is the port implemented by adapters to run a single probe attempt
type HealthChecker interface {
	Check(ctx context.Context) error
}
