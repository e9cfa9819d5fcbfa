package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Advance(t *testing.T) {
	p := Plan{}
	for _, s := range []Stage{StageManifestDeclared, StageDependenciesResolved, StageEnvironmentTransplanted, StageIdentityDropped, StageConfigured, StageLaunched} {
		require.NoError(t, p.Advance(s), s.String())
	}
	assert.Equal(t, StageLaunched, p.Stage)
	assert.ErrorIs(t, p.Advance(StageLaunched), ErrInvalidTransition)
}

func TestPlan_AdvanceRejectsBackwardAndSkip(t *testing.T) {
	tests := []struct {
		name string
		from Stage
		to   Stage
	}{
		{name: "skip", from: StageManifestDeclared, to: StageEnvironmentTransplanted},
		{name: "backward", from: StageIdentityDropped, to: StageEnvironmentTransplanted},
		{name: "same", from: StageConfigured, to: StageConfigured},
		{name: "regain privilege", from: StageConfigured, to: StagePending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Plan{Stage: tt.from}
			assert.ErrorIs(t, p.Advance(tt.to), ErrInvalidTransition)
			assert.Equal(t, tt.from, p.Stage)
		})
	}
}

func TestStage_Privileged(t *testing.T) {
	assert.True(t, StageEnvironmentTransplanted.Privileged())
	assert.False(t, StageIdentityDropped.Privileged())
	assert.False(t, StageLaunched.Privileged())
}

func TestStage_JSON(t *testing.T) {
	b, err := json.Marshal(struct{ S Stage }{StageIdentityDropped})
	require.NoError(t, err)
	assert.JSONEq(t, `{"S":"identity-dropped"}`, string(b))
	var out struct{ S Stage }
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, StageIdentityDropped, out.S)
	assert.Error(t, json.Unmarshal([]byte(`{"S":"nope"}`), &out))
	assert.Equal(t, "stage(42)", Stage(42).String())
}
