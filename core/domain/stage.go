package domain

import (
	"fmt"
)

// Stage is a step of the image lifecycle. Stages only ever move forward,
// one at a time.
type Stage int

const (
	StagePending Stage = iota
	StageManifestDeclared
	StageDependenciesResolved
	StageEnvironmentTransplanted
	StageIdentityDropped
	StageConfigured
	StageLaunched
)

var stageNames = [...]string{
	"pending",
	"manifest-declared",
	"dependencies-resolved",
	"environment-transplanted",
	"identity-dropped",
	"configured",
	"launched",
}

func (s Stage) String() string {
	if s < StagePending || s > StageLaunched {
		return fmt.Sprintf("stage(%d)", int(s))
	}
	return stageNames[s]
}

// Next returns the stage directly following s
func (s Stage) Next() (Stage, error) {
	if s >= StageLaunched || s < StagePending {
		return s, fmt.Errorf("%w: no stage after %s", ErrInvalidTransition, s)
	}
	return s + 1, nil
}

// Privileged reports whether steps at this stage still run as the build identity
func (s Stage) Privileged() bool {
	return s < StageIdentityDropped
}

func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Stage) UnmarshalText(text []byte) error {
	for i, name := range stageNames {
		if name == string(text) {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", string(text))
}
