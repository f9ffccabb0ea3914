package pathpolicy

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PathVar names the environment variable pointing DTIO processes at the policy document.
const PathVar = "DTIO_PATHS_CONF_PATH"

// DefaultInclude are the mount roots routed to DTIO when no include list is given.
var DefaultInclude = []string{"/tmp", "/scratch", "/shared", "/data"}

// DefaultExclude are carved out of the default include roots.
var DefaultExclude = []string{"/tmp/systemd", "/tmp/.X11-unix", "/scratch/logs"}

// Policy is a compiled include/exclude policy. It is immutable once compiled.
type Policy struct {
	include []Pattern
	exclude []Pattern
}

// Compile validates the pattern lists and returns the policy.
// Order is preserved and identical duplicates within a list are kept.
// A pattern present in both lists fails with *ConflictingPatternError.
func Compile(include, exclude []string) (*Policy, error) {
	inc, err := parseAll(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := parseAll(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}

	excluded := make(map[string]bool, len(exc))
	for _, p := range exc {
		excluded[p.Key()] = true
	}
	for _, p := range inc {
		if excluded[p.Key()] {
			return nil, &ConflictingPatternError{Pattern: p.Raw}
		}
	}

	return &Policy{include: inc, exclude: exc}, nil
}

// Default returns the policy built from DefaultInclude and DefaultExclude.
func Default() *Policy {
	p, err := Compile(DefaultInclude, DefaultExclude)
	if err != nil {
		panic(err)
	}
	return p
}

func parseAll(raw []string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(raw))
	for _, r := range raw {
		p, err := ParsePattern(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// ShouldIntercept reports whether I/O on candidate is routed to DTIO.
// Exclusion is a hard veto regardless of how specific the include match is.
func (p *Policy) ShouldIntercept(candidate string) bool {
	for _, pat := range p.exclude {
		if pat.Matches(candidate) {
			return false
		}
	}
	for _, pat := range p.include {
		if pat.Matches(candidate) {
			return true
		}
	}
	return false
}

// Include returns the include patterns verbatim.
func (p *Policy) Include() []string {
	return raws(p.include)
}

// Exclude returns the exclude patterns verbatim.
func (p *Policy) Exclude() []string {
	return raws(p.exclude)
}

func raws(ps []Pattern) []string {
	out := make([]string, len(ps))
	for i, pat := range ps {
		out[i] = pat.Raw
	}
	return out
}

// Document is the serialized form read by the DTIO runtime.
type Document struct {
	Include []string `yaml:"include"`
	Exclude []string `yaml:"exclude"`
}

// Marshal serializes the policy.
func (p *Policy) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(Document{Include: p.Include(), Exclude: p.Exclude()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal path policy: %w", err)
	}
	return data, nil
}

// Parse reads a serialized policy and recompiles it.
func Parse(data []byte) (*Policy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return Compile(doc.Include, doc.Exclude)
}
