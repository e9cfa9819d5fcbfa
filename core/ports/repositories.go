package ports

import (
	"context"

	"github.com/cryptotracker/imagebuild/core/domain"
)

// BuildRepository is the port implemented by adapters to be used in AssemblyService to store build records
type BuildRepository interface {
	GetBuild(ctx context.Context, id string) (domain.BuildRecord, error)
	ListBuilds(ctx context.Context) ([]domain.BuildRecord, error)
	StoreBuild(ctx context.Context, record domain.BuildRecord) error
}
