package adapters

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

// MockImageInspector returns canned inspections keyed by reference
type MockImageInspector struct {
	images map[string]domain.ImageInspection
	calls  atomic.Int32
}

var _ ports.ImageInspector = (*MockImageInspector)(nil)

func NewMockImageInspector(images map[string]domain.ImageInspection) *MockImageInspector {
	return &MockImageInspector{images: images}
}

func (m *MockImageInspector) Inspect(_ context.Context, reference string, withFiles bool) (domain.ImageInspection, error) {
	m.calls.Add(1)
	inspection, ok := m.images[reference]
	if !ok {
		return domain.ImageInspection{}, fmt.Errorf("%w: no image %s", domain.ErrMockError, reference)
	}
	if !withFiles {
		inspection.Files = nil
	}
	return inspection, nil
}

// Calls is the number of Inspect invocations
func (m *MockImageInspector) Calls() int {
	return int(m.calls.Load())
}

// CompliantInspection describes an image built from d exactly as planned
func CompliantInspection(reference string, d domain.Descriptor) domain.ImageInspection {
	probe := d.Probe
	labels := map[string]string{}
	for _, l := range d.Metadata.Labels() {
		labels[l.Name] = l.Value
	}
	app := d.AppDest()
	return domain.ImageInspection{
		Reference:    reference,
		User:         d.Identity.Owner(),
		Env:          append([]string{"PATH=/opt/venv/bin:/usr/local/bin:/usr/bin:/bin"}, d.Runtime.Environ()...),
		ExposedPorts: []string{d.ExposedPort()},
		Healthcheck:  &probe,
		Cmd:          d.Launch.Argv(),
		Labels:       labels,
		WorkDir:      d.WorkDir,
		Files: []domain.FileEntry{
			{Path: "usr/local/bin/python3.11"},
			{Path: "opt/venv/bin/uvicorn"},
			{Path: app, UID: d.Identity.UID, GID: d.Identity.GID, Dir: true},
			{Path: app + "/main.py", UID: d.Identity.UID, GID: d.Identity.GID},
		},
	}
}
