package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	EnvAppHost     = "APP_HOST"
	EnvAppPort     = "APP_PORT"
	EnvAppName     = "APP_NAME"
	EnvAppVersion  = "APP_VERSION"
	EnvDebug       = "DEBUG"
	EnvNoBytecode  = "PYTHONDONTWRITEBYTECODE"
	EnvUnbuffered  = "PYTHONUNBUFFERED"
	DefaultAppHost = "0.0.0.0"
	DefaultAppPort = 8000
)

type EnvVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RuntimeConfig holds the environment defaults baked into the image.
// Values are fixed at build time; the container runtime may still
// override any of them at start.
type RuntimeConfig struct {
	vars []EnvVar
}

func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{vars: []EnvVar{
		{Name: EnvAppHost, Value: DefaultAppHost},
		{Name: EnvAppPort, Value: strconv.Itoa(DefaultAppPort)},
		{Name: EnvAppName, Value: "Crypto Tracker"},
		{Name: EnvAppVersion, Value: "1.0.0"},
		{Name: EnvDebug, Value: "false"},
		{Name: EnvNoBytecode, Value: "1"},
		{Name: EnvUnbuffered, Value: "1"},
	}}
}

// NewRuntimeConfig validates names and rejects duplicates
func NewRuntimeConfig(vars ...EnvVar) (RuntimeConfig, error) {
	seen := map[string]struct{}{}
	out := make([]EnvVar, 0, len(vars))
	for _, v := range vars {
		if errs := validation.IsEnvVarName(v.Name); len(errs) != 0 {
			return RuntimeConfig{}, fmt.Errorf("%w: env %q: %s", ErrInvalidDescriptor, v.Name, strings.Join(errs, "; "))
		}
		if _, ok := seen[v.Name]; ok {
			return RuntimeConfig{}, fmt.Errorf("%w: duplicate env %q", ErrInvalidDescriptor, v.Name)
		}
		seen[v.Name] = struct{}{}
		out = append(out, v)
	}
	return RuntimeConfig{vars: out}, nil
}

// Vars returns a copy of the entries in declaration order
func (r RuntimeConfig) Vars() []EnvVar {
	out := make([]EnvVar, len(r.vars))
	copy(out, r.vars)
	return out
}

func (r RuntimeConfig) Lookup(name string) (string, bool) {
	for _, v := range r.vars {
		if v.Name == name {
			return v.Value, true
		}
	}
	return "", false
}

// WithOverrides returns a new config where existing entries keep their
// position and unknown names are appended in lexical order.
func (r RuntimeConfig) WithOverrides(overrides map[string]string) RuntimeConfig {
	out := r.Vars()
	var extra []string
	for name := range overrides {
		found := false
		for i := range out {
			if out[i].Name == name {
				out[i].Value = overrides[name]
				found = true
				break
			}
		}
		if !found {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		out = append(out, EnvVar{Name: name, Value: overrides[name]})
	}
	return RuntimeConfig{vars: out}
}

func (r RuntimeConfig) Host() string {
	if h, ok := r.Lookup(EnvAppHost); ok && h != "" {
		return h
	}
	return DefaultAppHost
}

// Port parses APP_PORT, falling back to the default when unset
func (r RuntimeConfig) Port() (int, error) {
	raw, ok := r.Lookup(EnvAppPort)
	if !ok || raw == "" {
		return DefaultAppPort, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidDescriptor, EnvAppPort, raw)
	}
	if errs := validation.IsValidPortNum(port); len(errs) != 0 {
		return 0, fmt.Errorf("%w: %s=%d: %s", ErrInvalidDescriptor, EnvAppPort, port, strings.Join(errs, "; "))
	}
	return port, nil
}

// Environ renders NAME=value pairs
func (r RuntimeConfig) Environ() []string {
	out := make([]string, 0, len(r.vars))
	for _, v := range r.vars {
		out = append(out, v.Name+"="+v.Value)
	}
	return out
}

func (r RuntimeConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.vars)
}

func (r *RuntimeConfig) UnmarshalJSON(data []byte) error {
	var vars []EnvVar
	if err := json.Unmarshal(data, &vars); err != nil {
		return err
	}
	cfg, err := NewRuntimeConfig(vars...)
	if err != nil {
		return err
	}
	*r = cfg
	return nil
}

// ParseEnviron turns NAME=value strings into a map, the last duplicate wins
func ParseEnviron(environ []string) map[string]string {
	out := make(map[string]string, len(environ))
	for _, kv := range environ {
		name, value, _ := strings.Cut(kv, "=")
		out[name] = value
	}
	return out
}
