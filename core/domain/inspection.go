package domain

import (
	"time"
)

type FileEntry struct {
	Path string `json:"path"`
	UID  int    `json:"uid"`
	GID  int    `json:"gid"`
	Dir  bool   `json:"dir,omitempty"`
}

// ImageInspection is the subset of an image config and filesystem the verifier needs
type ImageInspection struct {
	Reference    string            `json:"reference"`
	User         string            `json:"user"`
	Env          []string          `json:"env"`
	ExposedPorts []string          `json:"exposedPorts"`
	Healthcheck  *HealthProbeSpec  `json:"healthcheck,omitempty"`
	Cmd          []string          `json:"cmd"`
	Entrypoint   []string          `json:"entrypoint,omitempty"`
	Labels       map[string]string `json:"labels,omitempty"`
	WorkDir      string            `json:"workDir"`
	Files        []FileEntry       `json:"files,omitempty"`
}

type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

func (v Violation) Error() string {
	return v.Rule + ": " + v.Detail
}

type VerificationReport struct {
	Reference  string      `json:"reference"`
	Compliant  bool        `json:"compliant"`
	Violations []Violation `json:"violations"`
	Checked    time.Time   `json:"checked"`
}

// DefaultToolchainBinaries are compiler and build tool names that must not
// reach the runtime image
var DefaultToolchainBinaries = []string{"gcc", "g++", "cc", "c++", "cpp", "make", "ld", "as"}

// DefaultToolchainPaths are directories only present when the toolchain was installed
var DefaultToolchainPaths = []string{"/usr/share/doc/build-essential", "/usr/lib/gcc"}
