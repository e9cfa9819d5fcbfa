package v1

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
)

const syntaxDirective = "# syntax=docker/dockerfile:1"

// DockerfileRenderer serializes a plan into Dockerfile text
type DockerfileRenderer struct{}

var _ ports.DockerfileRenderer = (*DockerfileRenderer)(nil)

func NewDockerfileRenderer() *DockerfileRenderer {
	return &DockerfileRenderer{}
}

func (r *DockerfileRenderer) Render(plan domain.Plan) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(syntaxDirective + "\n")
	for _, stage := range [][]domain.Instruction{plan.Builder, plan.Runtime} {
		for _, inst := range stage {
			if inst.Op == domain.OpFrom {
				b.WriteByte('\n')
			}
			if inst.Comment != "" {
				for _, line := range strings.Split(inst.Comment, "\n") {
					b.WriteString("# " + line + "\n")
				}
			}
			line, err := renderInstruction(inst)
			if err != nil {
				return nil, err
			}
			b.WriteString(line + "\n")
		}
	}
	return b.Bytes(), nil
}

func renderInstruction(inst domain.Instruction) (string, error) {
	parts := []string{inst.Op}
	parts = append(parts, inst.Flags...)
	switch inst.Op {
	case domain.OpRun:
		if len(inst.Args) == 0 {
			return "", errors.New("RUN without commands")
		}
		parts = append(parts, strings.Join(inst.Args, " && \\\n    "))
	case domain.OpEnv, domain.OpLabel:
		if len(inst.Pairs) == 0 {
			return "", fmt.Errorf("%s without pairs", inst.Op)
		}
		pairs := make([]string, 0, len(inst.Pairs))
		for _, p := range inst.Pairs {
			if strings.ContainsAny(p.Value, "\r\n") {
				return "", fmt.Errorf("%s %s: value spans lines", inst.Op, p.Name)
			}
			pairs = append(pairs, p.Name+"="+quote(p.Value, inst.Expand))
		}
		parts = append(parts, strings.Join(pairs, " \\\n    "))
	case domain.OpHealthcheck:
		if len(inst.Args) == 0 {
			parts = append(parts, "NONE")
			break
		}
		args, err := execForm(inst.Args)
		if err != nil {
			return "", err
		}
		parts = append(parts, "CMD", args)
	default:
		if inst.Exec {
			args, err := execForm(inst.Args)
			if err != nil {
				return "", err
			}
			parts = append(parts, args)
		} else {
			parts = append(parts, inst.Args...)
		}
	}
	return strings.Join(parts, " "), nil
}

// execForm renders a JSON array without HTML escaping so scripts stay readable
func execForm(args []string) (string, error) {
	elems := make([]string, 0, len(args))
	for _, arg := range args {
		var b bytes.Buffer
		enc := json.NewEncoder(&b)
		enc.SetEscapeHTML(false)
		if err := enc.Encode(arg); err != nil {
			return "", err
		}
		elems = append(elems, strings.TrimSuffix(b.String(), "\n"))
	}
	return "[" + strings.Join(elems, ", ") + "]", nil
}

var (
	literalEscaper  = strings.NewReplacer(`\`, `\\`, `"`, `\"`, `$`, `\$`)
	expandedEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)
)

// quote leaves simple values bare and double-quotes the rest. Inside double
// quotes the builder only understands \" \\ and \$; $ stays live only when
// expand is set.
func quote(v string, expand bool) string {
	special := " \t\"'\\#="
	if !expand {
		special += "$"
	}
	if v != "" && !strings.ContainsAny(v, special) {
		return v
	}
	if expand {
		return `"` + expandedEscaper.Replace(v) + `"`
	}
	return `"` + literalEscaper.Replace(v) + `"`
}
