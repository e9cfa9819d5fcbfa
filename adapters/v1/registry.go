package v1

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	containerv1 "github.com/google/go-containerregistry/pkg/v1"
	"github.com/google/go-containerregistry/pkg/v1/daemon"
	"github.com/google/go-containerregistry/pkg/v1/mutate"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/google/go-containerregistry/pkg/v1/tarball"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

// ImageSource selects where the inspector loads images from
type ImageSource string

const (
	// SourceAuto tries the local daemon first and then the registry
	SourceAuto   ImageSource = "auto"
	SourceDaemon ImageSource = "daemon"
	SourceRemote ImageSource = "remote"
)

// RegistryInspector reads image configs and flattened filesystems with
// go-containerregistry. References ending in .tar are read as docker save
// tarballs.
type RegistryInspector struct {
	source ImageSource
}

var _ ports.ImageInspector = (*RegistryInspector)(nil)

func NewRegistryInspector(source ImageSource) *RegistryInspector {
	if source == "" {
		source = SourceAuto
	}
	return &RegistryInspector{source: source}
}

func (r *RegistryInspector) load(ctx context.Context, reference string) (containerv1.Image, error) {
	if strings.HasSuffix(reference, ".tar") {
		if _, err := os.Stat(reference); err == nil {
			return tarball.ImageFromPath(reference, nil)
		}
	}
	ref, err := name.ParseReference(reference)
	if err != nil {
		return nil, fmt.Errorf("failed to parse image reference %s: %w", reference, err)
	}
	switch r.source {
	case SourceDaemon:
		return daemon.Image(ref, daemon.WithContext(ctx))
	case SourceRemote:
		return remote.Image(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
	}
	img, err := daemon.Image(ref, daemon.WithContext(ctx))
	if err == nil {
		return img, nil
	}
	logger.L().Ctx(ctx).Debug("image not in local daemon, trying registry",
		helpers.String("reference", reference),
		helpers.Error(err))
	return remote.Image(ref, remote.WithContext(ctx), remote.WithAuthFromKeychain(authn.DefaultKeychain))
}

func (r *RegistryInspector) Inspect(ctx context.Context, reference string, withFiles bool) (domain.ImageInspection, error) {
	ctx, span := otel.Tracer("").Start(ctx, "RegistryInspector.Inspect")
	defer span.End()

	img, err := r.load(ctx, reference)
	if err != nil {
		return domain.ImageInspection{}, err
	}
	inspection, err := inspectImage(img)
	if err != nil {
		return domain.ImageInspection{}, err
	}
	inspection.Reference = reference
	if withFiles {
		inspection.Files, err = listFiles(img)
		if err != nil {
			return domain.ImageInspection{}, fmt.Errorf("reading filesystem of %s: %w", reference, err)
		}
	}
	logger.L().Ctx(ctx).Debug("image inspected",
		helpers.String("reference", reference),
		helpers.Int("files", len(inspection.Files)))
	return inspection, nil
}

func inspectImage(img containerv1.Image) (domain.ImageInspection, error) {
	cfg, err := img.ConfigFile()
	if err != nil {
		return domain.ImageInspection{}, err
	}
	if cfg == nil {
		return domain.ImageInspection{}, errors.New("image has no config")
	}
	c := cfg.Config
	inspection := domain.ImageInspection{
		User:       c.User,
		Env:        c.Env,
		Cmd:        c.Cmd,
		Entrypoint: c.Entrypoint,
		Labels:     c.Labels,
		WorkDir:    c.WorkingDir,
	}
	for port := range c.ExposedPorts {
		inspection.ExposedPorts = append(inspection.ExposedPorts, port)
	}
	sort.Strings(inspection.ExposedPorts)
	inspection.Healthcheck = healthcheckFromConfig(c.Healthcheck)
	return inspection, nil
}

func healthcheckFromConfig(hc *containerv1.HealthConfig) *domain.HealthProbeSpec {
	if hc == nil || len(hc.Test) == 0 {
		return nil
	}
	probe := domain.HealthProbeSpec{
		Interval:    hc.Interval,
		Timeout:     hc.Timeout,
		StartPeriod: hc.StartPeriod,
		Retries:     hc.Retries,
	}
	switch hc.Test[0] {
	case "NONE":
		return nil
	case "CMD":
		probe.Command = hc.Test[1:]
	case "CMD-SHELL":
		probe.Command = []string{"/bin/sh", "-c", strings.Join(hc.Test[1:], " ")}
	default:
		probe.Command = hc.Test
	}
	return &probe
}

// listFiles walks the flattened filesystem, whiteouts already applied
func listFiles(img containerv1.Image) ([]domain.FileEntry, error) {
	rc := mutate.Extract(img)
	defer rc.Close()
	var files []domain.FileEntry
	tr := tar.NewReader(rc)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		files = append(files, domain.FileEntry{
			Path: path.Clean("/" + hdr.Name),
			UID:  hdr.Uid,
			GID:  hdr.Gid,
			Dir:  hdr.Typeflag == tar.TypeDir,
		})
	}
	return files, nil
}
