package repositories

import (
	"context"
	"testing"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetBuild(t *testing.T) {
	m := NewMemoryStorage()
	ctx := context.TODO()
	_, err := m.GetBuild(ctx, "buildID")
	assert.ErrorIs(t, err, domain.ErrBuildNotFound)
	record := domain.BuildRecord{
		ID:     "buildID",
		Tag:    "docker.io/library/crypto-tracker:latest",
		Stage:  domain.StageManifestDeclared,
		Status: domain.BuildRunning,
	}
	require.NoError(t, m.StoreBuild(ctx, record))
	got, err := m.GetBuild(ctx, "buildID")
	require.NoError(t, err)
	assert.Equal(t, record, got)
	// records are overwritten in place as the build progresses
	record.Stage = domain.StageLaunched
	record.Status = domain.BuildSucceeded
	require.NoError(t, m.StoreBuild(ctx, record))
	got, _ = m.GetBuild(ctx, "buildID")
	assert.Equal(t, domain.StageLaunched, got.Stage)
}

func TestMemoryStore_ListBuilds(t *testing.T) {
	m := NewMemoryStorage()
	ctx := context.TODO()
	now := time.Now()
	_ = m.StoreBuild(ctx, domain.BuildRecord{ID: "old", Started: now.Add(-time.Hour)})
	_ = m.StoreBuild(ctx, domain.BuildRecord{ID: "new", Started: now})
	got, err := m.ListBuilds(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "new", got[0].ID)
	assert.Equal(t, "old", got[1].ID)
}
