package v1

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

type hclDescriptorFile struct {
	BuilderImage     *string           `hcl:"builder_image,optional"`
	RuntimeImage     *string           `hcl:"runtime_image,optional"`
	Toolchain        *[]string         `hcl:"toolchain,optional"`
	Manifest         *string           `hcl:"manifest,optional"`
	RequiredPackages *[]string         `hcl:"required_packages,optional"`
	Environment      *string           `hcl:"environment,optional"`
	Source           *string           `hcl:"source,optional"`
	WorkDir          *string           `hcl:"workdir,optional"`
	Port             *int              `hcl:"port,optional"`
	ReadinessPath    *string           `hcl:"readiness_path,optional"`
	Env              map[string]string `hcl:"env,optional"`
	Identity         *hclIdentity      `hcl:"identity,block"`
	Probe            *hclProbe         `hcl:"probe,block"`
	Launch           *hclLaunch        `hcl:"launch,block"`
	Metadata         *hclMetadata      `hcl:"metadata,block"`
}

type hclIdentity struct {
	UID   *int    `hcl:"uid,optional"`
	GID   *int    `hcl:"gid,optional"`
	User  *string `hcl:"user,optional"`
	Group *string `hcl:"group,optional"`
}

type hclProbe struct {
	Interval    *string `hcl:"interval,optional"`
	Timeout     *string `hcl:"timeout,optional"`
	StartPeriod *string `hcl:"start_period,optional"`
	Retries     *int    `hcl:"retries,optional"`
	Path        *string `hcl:"path,optional"`
}

type hclLaunch struct {
	Server *string `hcl:"server,optional"`
	App    *string `hcl:"app,optional"`
}

type hclMetadata struct {
	Maintainer  *string `hcl:"maintainer,optional"`
	Description *string `hcl:"description,optional"`
	Version     *string `hcl:"version,optional"`
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// LoadDescriptorFile overlays the HCL file at path onto base. Only the
// attributes present in the file change; the result is validated.
func LoadDescriptorFile(path string, base domain.Descriptor) (domain.Descriptor, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return domain.Descriptor{}, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	var f hclDescriptorFile
	diags = gohcl.DecodeBody(file.Body, nil, &f)
	if diags.HasErrors() {
		return domain.Descriptor{}, fmt.Errorf("failed to decode HCL file %s: %w", path, diags)
	}

	d := base.WithRuntime(base.Runtime)
	set(&d.BuilderImage, f.BuilderImage)
	set(&d.RuntimeImage, f.RuntimeImage)
	set(&d.Toolchain, f.Toolchain)
	set(&d.ManifestPath, f.Manifest)
	set(&d.RequiredPackages, f.RequiredPackages)
	set(&d.EnvironmentPath, f.Environment)
	set(&d.SourcePath, f.Source)
	set(&d.WorkDir, f.WorkDir)
	set(&d.ReadinessPath, f.ReadinessPath)
	if id := f.Identity; id != nil {
		set(&d.Identity.UID, id.UID)
		set(&d.Identity.GID, id.GID)
		set(&d.Identity.User, id.User)
		set(&d.Identity.Group, id.Group)
	}
	if l := f.Launch; l != nil {
		set(&d.Launch.Server, l.Server)
		set(&d.Launch.App, l.App)
	}
	if m := f.Metadata; m != nil {
		set(&d.Metadata.Maintainer, m.Maintainer)
		set(&d.Metadata.Description, m.Description)
		set(&d.Metadata.Version, m.Version)
	}
	if p := f.Probe; p != nil {
		for _, dur := range []struct {
			dst *time.Duration
			src *string
		}{{&d.Probe.Interval, p.Interval}, {&d.Probe.Timeout, p.Timeout}, {&d.Probe.StartPeriod, p.StartPeriod}} {
			if dur.src == nil {
				continue
			}
			v, err := time.ParseDuration(*dur.src)
			if err != nil {
				return domain.Descriptor{}, fmt.Errorf("%w: %s: %w", domain.ErrInvalidDescriptor, path, err)
			}
			*dur.dst = v
		}
		set(&d.Probe.Retries, p.Retries)
		set(&d.Probe.Path, p.Path)
		d.Probe.Command = domain.PythonProbeCommand(d.Probe.Path, d.Probe.Timeout)
	}

	// the port and version are stated once and mirrored into the env defaults
	overrides := map[string]string{}
	if f.Port != nil {
		d.Port = *f.Port
		overrides[domain.EnvAppPort] = strconv.Itoa(*f.Port)
	}
	if f.Metadata != nil && f.Metadata.Version != nil {
		overrides[domain.EnvAppVersion] = *f.Metadata.Version
	}
	for k, v := range f.Env {
		overrides[k] = v
	}
	if len(overrides) > 0 {
		d.Runtime = d.Runtime.WithOverrides(overrides)
	}
	if err := d.Validate(); err != nil {
		return domain.Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
