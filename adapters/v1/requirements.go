package v1

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"slices"
	"strings"

	"github.com/cryptotracker/imagebuild/core/domain"
	"github.com/cryptotracker/imagebuild/core/ports"
	"github.com/kubescape/go-logger"
	"github.com/kubescape/go-logger/helpers"
	"go.opentelemetry.io/otel"
)

// RequirementsReader parses pip requirements files
type RequirementsReader struct{}

var _ ports.ManifestReader = (*RequirementsReader)(nil)

func NewRequirementsReader() *RequirementsReader {
	return &RequirementsReader{}
}

var (
	requirementLine = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[A-Za-z0-9._,\s-]*\])?\s*(.*)$`)
	versionClause   = regexp.MustCompile(`^(===|==|!=|~=|<=|>=|<|>)\s*([A-Za-z0-9.*+!_-]+)$`)
	// options that only change where packages come from
	sourceOptions = []string{"--index-url", "-i", "--extra-index-url", "--find-links", "-f", "--trusted-host", "--pre", "--prefer-binary", "--only-binary", "--no-binary", "--require-hashes"}
)

// ReadManifest loads and parses the manifest at path
func (r *RequirementsReader) ReadManifest(ctx context.Context, path string) (domain.Manifest, error) {
	ctx, span := otel.Tracer("").Start(ctx, "RequirementsReader.ReadManifest")
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Manifest{}, fmt.Errorf("%w: %s", domain.ErrManifestNotFound, path)
		}
		return domain.Manifest{}, err
	}
	defer f.Close()
	manifest, err := ParseRequirements(f)
	if err != nil {
		return domain.Manifest{}, fmt.Errorf("%s: %w", path, err)
	}
	manifest.Path = path
	logger.L().Ctx(ctx).Debug("manifest parsed",
		helpers.String("path", path),
		helpers.Int("requirements", len(manifest.Requirements)))
	return manifest, nil
}

// ParseRequirements reads the pip requirements format. Nested files and
// editable installs are refused since the builder stage only receives the
// manifest itself.
func ParseRequirements(reader io.Reader) (domain.Manifest, error) {
	var manifest domain.Manifest
	seen := map[string]int{}
	scanner := bufio.NewScanner(reader)
	lineNo, start := 0, 0
	var pending strings.Builder
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if pending.Len() == 0 {
			start = lineNo
		}
		if strings.HasSuffix(line, `\`) {
			pending.WriteString(strings.TrimSuffix(line, `\`))
			pending.WriteByte(' ')
			continue
		}
		pending.WriteString(line)
		text := stripComment(pending.String())
		pending.Reset()
		if text == "" {
			continue
		}
		requirement, skip, err := parseLine(text)
		if err != nil {
			return domain.Manifest{}, fmt.Errorf("%w: line %d: %w", domain.ErrManifestMalformed, start, err)
		}
		if skip {
			continue
		}
		requirement.Line = start
		if prev, ok := seen[requirement.Name()]; ok {
			return domain.Manifest{}, fmt.Errorf("%w: line %d: %s already required on line %d", domain.ErrManifestMalformed, start, requirement.Package, prev)
		}
		seen[requirement.Name()] = start
		manifest.Requirements = append(manifest.Requirements, requirement)
	}
	if err := scanner.Err(); err != nil {
		return domain.Manifest{}, err
	}
	if pending.Len() > 0 {
		return domain.Manifest{}, fmt.Errorf("%w: line %d: dangling line continuation", domain.ErrManifestMalformed, start)
	}
	if len(manifest.Requirements) == 0 {
		return domain.Manifest{}, fmt.Errorf("%w: no requirements", domain.ErrManifestMalformed)
	}
	return manifest, nil
}

func stripComment(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "#") {
		return ""
	}
	if i := strings.Index(s, " #"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, "\t#"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func parseLine(text string) (domain.Requirement, bool, error) {
	if strings.HasPrefix(text, "-") {
		option, _, _ := strings.Cut(strings.ReplaceAll(text, "=", " "), " ")
		if slices.Contains(sourceOptions, option) {
			return domain.Requirement{}, true, nil
		}
		return domain.Requirement{}, false, fmt.Errorf("unsupported option %s", option)
	}
	// per-requirement options such as --hash only affect verification
	if i := strings.Index(text, " --"); i >= 0 {
		text = strings.TrimSpace(text[:i])
	}
	spec, marker, hasMarker := strings.Cut(text, ";")
	m := requirementLine.FindStringSubmatch(strings.TrimSpace(spec))
	if m == nil {
		return domain.Requirement{}, false, fmt.Errorf("invalid requirement %q", text)
	}
	requirement := domain.Requirement{
		Package: m[1],
		Extras:  strings.ReplaceAll(m[2], " ", ""),
		Marker:  strings.TrimSpace(marker),
	}
	if hasMarker && requirement.Marker == "" {
		return domain.Requirement{}, false, fmt.Errorf("empty environment marker in %q", text)
	}
	constraint := strings.TrimSpace(m[3])
	if strings.HasPrefix(constraint, "@") {
		return domain.Requirement{}, false, fmt.Errorf("direct reference %q is not supported", text)
	}
	if constraint != "" {
		var clauses []string
		for _, clause := range strings.Split(constraint, ",") {
			c := versionClause.FindStringSubmatch(strings.TrimSpace(clause))
			if c == nil {
				return domain.Requirement{}, false, fmt.Errorf("invalid version clause %q in %q", clause, text)
			}
			clauses = append(clauses, c[1]+c[2])
		}
		requirement.Constraint = strings.Join(clauses, ",")
	}
	return requirement, false, nil
}
