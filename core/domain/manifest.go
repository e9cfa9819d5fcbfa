package domain

import (
	"fmt"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/opencontainers/go-digest"
)

// Requirement is one line of the dependency manifest
type Requirement struct {
	Package    string `json:"package"`
	Extras     string `json:"extras,omitempty"`
	Constraint string `json:"constraint,omitempty"`
	Marker     string `json:"marker,omitempty"`
	Line       int    `json:"line"`
}

// Pinned is true for a single exact "==" clause without wildcards
func (r Requirement) Pinned() bool {
	c := strings.TrimSpace(r.Constraint)
	if !strings.HasPrefix(c, "==") || strings.HasPrefix(c, "===") {
		return false
	}
	return !strings.ContainsAny(c[2:], ",*")
}

// Name is the normalized distribution name (lowercase, runs of -_. folded to -)
func (r Requirement) Name() string {
	return NormalizePackageName(r.Package)
}

func (r Requirement) String() string {
	s := r.Package + r.Extras + r.Constraint
	if r.Marker != "" {
		s += "; " + r.Marker
	}
	return s
}

func NormalizePackageName(name string) string {
	var b strings.Builder
	lastSep := false
	for _, c := range strings.ToLower(name) {
		if c == '-' || c == '_' || c == '.' {
			if !lastSep {
				b.WriteRune('-')
			}
			lastSep = true
			continue
		}
		lastSep = false
		b.WriteRune(c)
	}
	return b.String()
}

// Manifest is the ordered, immutable input of the builder stage
type Manifest struct {
	Path         string        `json:"path"`
	Requirements []Requirement `json:"requirements"`
}

// Pinned reports whether resolving the manifest is deterministic
func (m Manifest) Pinned() bool {
	if len(m.Requirements) == 0 {
		return false
	}
	for _, r := range m.Requirements {
		if !r.Pinned() {
			return false
		}
	}
	return true
}

func (m Manifest) Packages() mapset.Set[string] {
	s := mapset.NewSet[string]()
	for _, r := range m.Requirements {
		s.Add(r.Name())
	}
	return s
}

// Require fails with ErrMissingRequirement naming every absent package
func (m Manifest) Require(packages ...string) error {
	have := m.Packages()
	var missing []string
	for _, p := range packages {
		if !have.Contains(NormalizePackageName(p)) {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: %s", ErrMissingRequirement, strings.Join(missing, ", "))
	}
	return nil
}

// Digest identifies the resolved content; requirement order does not matter
// since disjoint packages resolve independently.
func (m Manifest) Digest() digest.Digest {
	lines := make([]string, 0, len(m.Requirements))
	for _, r := range m.Requirements {
		lines = append(lines, r.Name()+r.Extras+r.Constraint+";"+r.Marker)
	}
	sort.Strings(lines)
	return digest.FromString(strings.Join(lines, "\n"))
}

// Environment is the materialized dependency tree produced by the builder stage
type Environment struct {
	Path           string        `json:"path"`
	ManifestDigest digest.Digest `json:"manifestDigest"`
}
