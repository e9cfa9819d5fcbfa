package domain

import (
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/opencontainers/go-digest"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	BuilderTarget    = "builder"
	ProductionTarget = "production"
)

// Descriptor is the immutable configuration of the image, constructed once
// and passed by value into planning.
type Descriptor struct {
	BuilderImage     string            `json:"builderImage"`
	RuntimeImage     string            `json:"runtimeImage"`
	Toolchain        []string          `json:"toolchain"`
	ManifestPath     string            `json:"manifestPath"`
	RequiredPackages []string          `json:"requiredPackages"`
	EnvironmentPath  string            `json:"environmentPath"`
	SourcePath       string            `json:"sourcePath"`
	WorkDir          string            `json:"workDir"`
	Identity         ExecutionIdentity `json:"identity"`
	Runtime          RuntimeConfig     `json:"runtime"`
	Port             int               `json:"port"`
	Probe            HealthProbeSpec   `json:"probe"`
	ReadinessPath    string            `json:"readinessPath"`
	Launch           LaunchCommand     `json:"launch"`
	Metadata         ImageMetadata     `json:"metadata"`
}

func DefaultDescriptor() Descriptor {
	return Descriptor{
		BuilderImage:     "python:3.11-slim",
		RuntimeImage:     "python:3.11-slim",
		Toolchain:        []string{"build-essential"},
		ManifestPath:     "requirements.txt",
		RequiredPackages: []string{"fastapi", "uvicorn", "httpx"},
		EnvironmentPath:  "/opt/venv",
		SourcePath:       "app",
		WorkDir:          "/app",
		Identity:         DefaultIdentity(),
		Runtime:          DefaultRuntimeConfig(),
		Port:             DefaultAppPort,
		Probe:            DefaultHealthProbe(),
		ReadinessPath:    DefaultReadinessPath,
		Launch:           DefaultLaunchCommand(),
		Metadata:         DefaultMetadata(),
	}
}

// AppDest is where the application source lands in the image
func (d Descriptor) AppDest() string {
	return path.Join(d.WorkDir, d.SourcePath)
}

// ExposedPort is the port key used in image configs, e.g. "8000/tcp"
func (d Descriptor) ExposedPort() string {
	return strconv.Itoa(d.Port) + "/tcp"
}

// WithRuntime returns a copy of d using the given runtime config
func (d Descriptor) WithRuntime(r RuntimeConfig) Descriptor {
	d.Toolchain = append([]string(nil), d.Toolchain...)
	d.RequiredPackages = append([]string(nil), d.RequiredPackages...)
	d.Runtime = r
	return d
}

// WithOverrides applies env overrides given at build or container start. An
// APP_PORT override also moves the exposed port. The result is validated.
func (d Descriptor) WithOverrides(overrides map[string]string) (Descriptor, error) {
	if len(overrides) > 0 {
		d = d.WithRuntime(d.Runtime.WithOverrides(overrides))
		if raw, ok := overrides[EnvAppPort]; ok {
			port, err := strconv.Atoi(raw)
			if err != nil {
				return Descriptor{}, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidDescriptor, EnvAppPort, raw)
			}
			d.Port = port
		}
	}
	return d, d.Validate()
}

// WatchURL points target at the readiness endpoint, or at the liveness
// endpoint when target carries no path of its own
func (d Descriptor) WatchURL(target string, readiness bool) (string, error) {
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("watch target %q needs a scheme and a host", target)
	}
	switch {
	case readiness:
		u.Path = d.ReadinessPath
	case u.Path == "" || u.Path == "/":
		u.Path = d.Probe.Path
	}
	return u.String(), nil
}

// Validate reports every problem at once
func (d Descriptor) Validate() error {
	var err error
	if d.BuilderImage == "" || d.RuntimeImage == "" {
		err = multierror.Append(err, fmt.Errorf("%w: builder and runtime base images are required", ErrInvalidDescriptor))
	}
	if d.ManifestPath == "" {
		err = multierror.Append(err, fmt.Errorf("%w: manifest path is required", ErrInvalidDescriptor))
	}
	if !path.IsAbs(d.EnvironmentPath) || !path.IsAbs(d.WorkDir) {
		err = multierror.Append(err, fmt.Errorf("%w: environment path and workdir must be absolute", ErrInvalidDescriptor))
	}
	if d.SourcePath == "" || path.IsAbs(d.SourcePath) || strings.HasPrefix(path.Clean(d.SourcePath), "..") {
		err = multierror.Append(err, fmt.Errorf("%w: source path %q must be relative to the build context", ErrInvalidDescriptor, d.SourcePath))
	}
	if e := d.Identity.Validate(); e != nil {
		err = multierror.Append(err, e)
	}
	if errs := validation.IsValidPortNum(d.Port); len(errs) != 0 {
		err = multierror.Append(err, fmt.Errorf("%w: port %d: %s", ErrInvalidDescriptor, d.Port, strings.Join(errs, "; ")))
	}
	if p, e := d.Runtime.Port(); e != nil {
		err = multierror.Append(err, e)
	} else if p != d.Port {
		err = multierror.Append(err, fmt.Errorf("%w: %s=%d does not match exposed port %d", ErrInvalidDescriptor, EnvAppPort, p, d.Port))
	}
	if e := d.Probe.Validate(); e != nil {
		err = multierror.Append(err, e)
	}
	if !strings.HasPrefix(d.ReadinessPath, "/") {
		err = multierror.Append(err, fmt.Errorf("%w: readiness path %q must be absolute", ErrInvalidDescriptor, d.ReadinessPath))
	}
	if e := d.Launch.Validate(); e != nil {
		err = multierror.Append(err, e)
	}
	if e := d.Metadata.Validate(); e != nil {
		err = multierror.Append(err, e)
	}
	if v, ok := d.Runtime.Lookup(EnvAppVersion); ok && v != d.Metadata.Version {
		err = multierror.Append(err, fmt.Errorf("%w: %s=%s differs from metadata version %s", ErrInvalidDescriptor, EnvAppVersion, v, d.Metadata.Version))
	}
	return err
}

// Digest identifies the descriptor content
func (d Descriptor) Digest() digest.Digest {
	b, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return digest.FromBytes(b)
}
