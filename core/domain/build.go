package domain

import (
	"time"

	"github.com/opencontainers/go-digest"
)

type BuildIDKey struct{}
type CommandKey struct{}
type TimestampKey struct{}

// BuildCommand is a request to assemble and tag the image
type BuildCommand struct {
	ContextDir string
	Tag        string
	Env        map[string]string
}

// BuildRequest is what the image builder receives for one target
type BuildRequest struct {
	ContextDir string
	Dockerfile []byte
	Target     string
	Tags       []string
	Labels     map[string]string
}

type BuildResult struct {
	ImageID string
}

type BuildStatus string

const (
	BuildQueued    BuildStatus = "queued"
	BuildRunning   BuildStatus = "running"
	BuildSucceeded BuildStatus = "succeeded"
	BuildFailed    BuildStatus = "failed"
)

// BuildRecord tracks one assembly. Stage is the last stage the engine
// actually realized, not the last one planned.
type BuildRecord struct {
	ID               string        `json:"id"`
	Tag              string        `json:"tag"`
	DescriptorDigest digest.Digest `json:"descriptorDigest"`
	ManifestDigest   digest.Digest `json:"manifestDigest,omitempty"`
	Pinned           bool          `json:"pinned"`
	Stage            Stage         `json:"stage"`
	Status           BuildStatus   `json:"status"`
	ImageID          string        `json:"imageID,omitempty"`
	Error            string        `json:"error,omitempty"`
	Started          time.Time     `json:"started"`
	Finished         time.Time     `json:"finished,omitempty"`
}
