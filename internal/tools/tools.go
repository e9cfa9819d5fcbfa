package tools

import (
	"errors"
	"regexp"
	"runtime/debug"

	"github.com/aquilax/truncate"
	"github.com/distribution/distribution/reference"
	"k8s.io/apimachinery/pkg/util/validation"
)

const (
	ImageNameLabelKey = "imagebuild.image-name"
	ImageTagLabelKey  = "imagebuild.image-tag"
	ImageRefLabelKey  = "imagebuild.image-ref"
)

func PackageVersion(name string) string {
	bi, ok := debug.ReadBuildInfo()
	if ok {
		for _, dep := range bi.Deps {
			if dep.Path == name {
				return dep.Version
			}
		}
	}
	return "unknown"
}

var offendingChars = regexp.MustCompile("[@:/ ._]")

func sanitize(s string) string {
	s2 := truncate.Truncate(offendingChars.ReplaceAllString(s, "-"), 63, "", truncate.PositionEnd)
	// remove trailing dash
	if len(s2) > 0 && s2[len(s2)-1] == '-' {
		return s2[:len(s2)-1]
	}
	return s2
}

// LabelsFromReference returns a map of labels from an image reference.
// Values are sanitized; any that is still not a DNS1123 label is dropped.
func LabelsFromReference(ref string) map[string]string {
	labels := map[string]string{}
	parsed, err := reference.Parse(ref)
	if err != nil {
		return labels
	}
	if named, ok := parsed.(reference.Named); ok {
		labels[ImageRefLabelKey] = sanitize(named.String())
		labels[ImageNameLabelKey] = sanitize(named.Name())
	}
	if tagged, ok := parsed.(reference.Tagged); ok {
		labels[ImageTagLabelKey] = sanitize(tagged.Tag())
	}
	// prune invalid labels
	for key, value := range labels {
		if errs := validation.IsDNS1123Label(value); len(errs) != 0 {
			delete(labels, key)
		}
	}
	return labels
}

// NormalizeReference expands short names such as crypto-tracker:1.0.0 to
// their fully qualified form; unparsable input is returned unchanged
func NormalizeReference(ref string) string {
	n, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return ref
	}
	return n.String()
}

// ParseTag normalizes the target of a build. Digests are rejected since the
// digest of an image being built is not known yet; a missing tag means latest.
func ParseTag(ref string) (string, error) {
	n, err := reference.ParseNormalizedNamed(ref)
	if err != nil {
		return "", err
	}
	if _, ok := n.(reference.Digested); ok {
		return "", errors.New("build target cannot be pinned to a digest")
	}
	return reference.TagNameOnly(n).String(), nil
}
