package repositories

import (
	"context"
	"errors"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

type BrokenStore struct{}

var _ ports.BuildRepository = (*BrokenStore)(nil)

func NewBrokenStorage() *BrokenStore {
	return &BrokenStore{}
}

func (b BrokenStore) GetBuild(context.Context, string) (domain.BuildRecord, error) {
	return domain.BuildRecord{}, errors.New("expected error")
}

func (b BrokenStore) ListBuilds(context.Context) ([]domain.BuildRecord, error) {
	return nil, errors.New("expected error")
}

func (b BrokenStore) StoreBuild(context.Context, domain.BuildRecord) error {
	return errors.New("expected error")
}
