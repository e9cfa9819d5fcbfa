package domain

import (
	"fmt"
)

// Dockerfile operations emitted by the planner
const (
	OpFrom        = "FROM"
	OpRun         = "RUN"
	OpCopy        = "COPY"
	OpWorkdir     = "WORKDIR"
	OpUser        = "USER"
	OpEnv         = "ENV"
	OpExpose      = "EXPOSE"
	OpHealthcheck = "HEALTHCHECK"
	OpLabel       = "LABEL"
	OpCmd         = "CMD"
)

type Instruction struct {
	Op      string   `json:"op"`
	Flags   []string `json:"flags,omitempty"`
	Args    []string `json:"args,omitempty"`
	Pairs   []EnvVar `json:"pairs,omitempty"`
	Exec    bool     `json:"exec,omitempty"`
	// Expand lets the builder substitute $VAR references in Pairs
	Expand  bool     `json:"expand,omitempty"`
	Comment string   `json:"comment,omitempty"`
}

// Plan is the ordered instruction list of both stages
type Plan struct {
	Builder []Instruction `json:"builder"`
	Runtime []Instruction `json:"runtime"`
	Stage   Stage         `json:"stage"`
}

// Advance moves the plan exactly one stage forward
func (p *Plan) Advance(to Stage) error {
	next, err := p.Stage.Next()
	if err != nil {
		return err
	}
	if to != next {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Stage, to)
	}
	p.Stage = to
	return nil
}

// BuilderOnly returns a copy of the plan without the runtime stage
func (p Plan) BuilderOnly() Plan {
	return Plan{Builder: append([]Instruction(nil), p.Builder...), Stage: p.Stage}
}
