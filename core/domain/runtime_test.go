package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRuntimeConfig_Defaults(t *testing.T) {
	r := DefaultRuntimeConfig()
	host, _ := r.Lookup(EnvAppHost)
	assert.Equal(t, "0.0.0.0", host)
	port, err := r.Port()
	require.NoError(t, err)
	assert.Equal(t, 8000, port)
	v, _ := r.Lookup(EnvNoBytecode)
	assert.Equal(t, "1", v)
	v, _ = r.Lookup(EnvUnbuffered)
	assert.Equal(t, "1", v)
}

func TestRuntimeConfig_WithOverrides(t *testing.T) {
	base := DefaultRuntimeConfig()
	over := base.WithOverrides(map[string]string{EnvAppPort: "9000", "ZZZ": "z", "AAA": "a"})

	port, err := over.Port()
	require.NoError(t, err)
	assert.Equal(t, 9000, port)
	// the original is untouched
	port, _ = base.Port()
	assert.Equal(t, 8000, port)

	vars := over.Vars()
	assert.Equal(t, EnvAppHost, vars[0].Name)
	assert.Equal(t, "AAA", vars[len(vars)-2].Name)
	assert.Equal(t, "ZZZ", vars[len(vars)-1].Name)
}

func TestRuntimeConfig_Port(t *testing.T) {
	tests := []struct {
		name    string
		value   string
		want    int
		wantErr bool
	}{
		{name: "default", value: "", want: 8000},
		{name: "override", value: "9000", want: 9000},
		{name: "not a number", value: "http", wantErr: true},
		{name: "out of range", value: "70000", wantErr: true},
		{name: "zero", value: "0", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := RuntimeConfig{}.WithOverrides(map[string]string{EnvAppPort: tt.value})
			got, err := r.Port()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDescriptor)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewRuntimeConfig(t *testing.T) {
	_, err := NewRuntimeConfig(EnvVar{Name: "1BAD", Value: "x"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	_, err = NewRuntimeConfig(EnvVar{Name: "A", Value: "1"}, EnvVar{Name: "A", Value: "2"})
	assert.ErrorIs(t, err, ErrInvalidDescriptor)
	r, err := NewRuntimeConfig(EnvVar{Name: "A", Value: "1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A=1"}, r.Environ())
}

func TestRuntimeConfig_JSON(t *testing.T) {
	r := DefaultRuntimeConfig()
	b, err := r.MarshalJSON()
	require.NoError(t, err)
	var out RuntimeConfig
	require.NoError(t, out.UnmarshalJSON(b))
	assert.Equal(t, r.Environ(), out.Environ())
}

func TestParseEnviron(t *testing.T) {
	got := ParseEnviron([]string{"A=1", "B=x=y", "A=2", "EMPTY"})
	assert.Equal(t, map[string]string{"A": "2", "B": "x=y", "EMPTY": ""}, got)
}
