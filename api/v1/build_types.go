package v1

import (
	"github.com/cryptotracker/imagebuild/core/domain"
)

// BuildCommand is the payload of POST /v1/build
type BuildCommand struct {
	// Context is the build context directory on the builder host; empty
	// means the configured default
	Context string `json:"context,omitempty"`
	// Tag is the image reference to produce
	Tag string `json:"tag" binding:"required"`
	// Env overrides runtime defaults baked into the image
	Env map[string]string `json:"env,omitempty"`
}

// ToDomain fills in the default context directory
func (b BuildCommand) ToDomain(defaultContext string) domain.BuildCommand {
	dir := b.Context
	if dir == "" {
		dir = defaultContext
	}
	return domain.BuildCommand{ContextDir: dir, Tag: b.Tag, Env: b.Env}
}

// VerifyCommand is the payload of POST /v1/verify
type VerifyCommand struct {
	Image string `json:"image" binding:"required"`
	// Env repeats the overrides the image was built with
	Env map[string]string `json:"env,omitempty"`
}
