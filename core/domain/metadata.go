package domain

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ImageMetadata is informational only
type ImageMetadata struct {
	Maintainer  string `json:"maintainer"`
	Description string `json:"description"`
	Version     string `json:"version"`
}

func DefaultMetadata() ImageMetadata {
	return ImageMetadata{
		Maintainer:  "Crypto Tracker Team",
		Description: "Crypto Tracker API - real-time cryptocurrency prices",
		Version:     "1.0.0",
	}
}

func (m ImageMetadata) Validate() error {
	if _, err := semver.StrictNewVersion(m.Version); err != nil {
		return fmt.Errorf("%w: metadata version %q: %v", ErrInvalidDescriptor, m.Version, err)
	}
	return nil
}

func (m ImageMetadata) Labels() []EnvVar {
	return []EnvVar{
		{Name: "maintainer", Value: m.Maintainer},
		{Name: "description", Value: m.Description},
		{Name: "version", Value: m.Version},
	}
}
