package adapters

import (
	"bytes"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

// MockDockerfileRenderer writes one line per instruction, op and args only
type MockDockerfileRenderer struct {
	fail bool
}

var _ ports.DockerfileRenderer = (*MockDockerfileRenderer)(nil)

func NewMockDockerfileRenderer(fail bool) *MockDockerfileRenderer {
	return &MockDockerfileRenderer{fail: fail}
}

func (m MockDockerfileRenderer) Render(plan domain.Plan) ([]byte, error) {
	if m.fail {
		return nil, domain.ErrMockError
	}
	var b bytes.Buffer
	for _, inst := range append(plan.Builder, plan.Runtime...) {
		b.WriteString(inst.Op)
		if len(inst.Flags) > 0 {
			b.WriteString(" " + strings.Join(inst.Flags, " "))
		}
		if len(inst.Args) > 0 {
			b.WriteString(" " + strings.Join(inst.Args, " "))
		}
		for _, p := range inst.Pairs {
			b.WriteString(" " + p.Name + "=" + p.Value)
		}
		b.WriteByte('\n')
	}
	return b.Bytes(), nil
}
