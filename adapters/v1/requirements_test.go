package v1

import (
	"context"
	"strings"
	"testing"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequirementsReader_ReadManifest(t *testing.T) {
	r := NewRequirementsReader()
	manifest, err := r.ReadManifest(context.TODO(), "testdata/requirements.txt")
	require.NoError(t, err)
	assert.Equal(t, "testdata/requirements.txt", manifest.Path)
	assert.Len(t, manifest.Requirements, 6)
	assert.True(t, manifest.Pinned())
	assert.Equal(t, domain.Requirement{Package: "uvicorn", Extras: "[standard]", Constraint: "==0.24.0", Line: 3}, manifest.Requirements[1])
	assert.NoError(t, manifest.Require("fastapi", "uvicorn", "httpx"))
}

func TestRequirementsReader_Loose(t *testing.T) {
	manifest, err := NewRequirementsReader().ReadManifest(context.TODO(), "testdata/requirements-loose.txt")
	require.NoError(t, err)
	assert.Equal(t, []domain.Requirement{
		{Package: "fastapi", Constraint: ">=0.100,<1.0", Line: 3},
		{Package: "uvicorn", Extras: "[standard]", Constraint: "~=0.24", Line: 4},
		{Package: "httpx", Constraint: "==0.25.2", Line: 5},
		{Package: "tomli", Constraint: "==2.0.1", Marker: `python_version < "3.11"`, Line: 7},
	}, manifest.Requirements)
	assert.False(t, manifest.Pinned())
}

func TestRequirementsReader_Errors(t *testing.T) {
	r := NewRequirementsReader()
	_, err := r.ReadManifest(context.TODO(), "testdata/missing.txt")
	assert.ErrorIs(t, err, domain.ErrManifestNotFound)
	_, err = r.ReadManifest(context.TODO(), "testdata/requirements-nested.txt")
	assert.ErrorIs(t, err, domain.ErrManifestMalformed)
	assert.ErrorContains(t, err, "line 2")
}

func TestParseRequirements(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr bool
		want    []domain.Requirement
	}{
		{
			name:    "empty",
			content: "\n# nothing here\n",
			wantErr: true,
		},
		{
			name:    "bare name",
			content: "httpx",
			want:    []domain.Requirement{{Package: "httpx", Line: 1}},
		},
		{
			name:    "trailing comment",
			content: "httpx==0.25.2 # pinned",
			want:    []domain.Requirement{{Package: "httpx", Constraint: "==0.25.2", Line: 1}},
		},
		{
			name:    "editable install",
			content: "-e .",
			wantErr: true,
		},
		{
			name:    "direct reference",
			content: "httpx @ https://example.com/httpx.whl",
			wantErr: true,
		},
		{
			name:    "bad clause",
			content: "httpx=0.25",
			wantErr: true,
		},
		{
			name:    "duplicate after normalization",
			content: "pydantic_settings==2.1.0\npydantic-settings==2.1.0",
			wantErr: true,
		},
		{
			name:    "dangling continuation",
			content: "httpx==0.25.2 \\",
			wantErr: true,
		},
		{
			name:    "empty marker",
			content: "httpx==0.25.2;",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequirements(strings.NewReader(tt.content))
			if tt.wantErr {
				assert.ErrorIs(t, err, domain.ErrManifestMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Requirements)
		})
	}
}
