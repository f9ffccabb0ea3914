// Package pathpolicy compiles the include/exclude path policy that decides
// which I/O operations the DTIO runtime intercepts.
package pathpolicy

import (
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Kind distinguishes plain prefixes from glob expressions.
type Kind int

const (
	Prefix Kind = iota
	Glob
)

func (k Kind) String() string {
	if k == Glob {
		return "glob"
	}
	return "prefix"
}

// Pattern is one entry of an include or exclude list.
type Pattern struct {
	Kind  Kind
	Raw   string // verbatim text, as serialized
	clean string
}

// ParsePattern classifies raw as a glob when it contains glob metacharacters,
// otherwise as a path prefix.
func ParsePattern(raw string) (Pattern, error) {
	if strings.TrimSpace(raw) == "" {
		return Pattern{}, &InvalidPatternError{Pattern: raw, Reason: "pattern is empty"}
	}

	if strings.ContainsAny(raw, "*?[{") {
		if !doublestar.ValidatePattern(raw) {
			return Pattern{}, &InvalidPatternError{Pattern: raw, Reason: "malformed glob"}
		}
		return Pattern{Kind: Glob, Raw: raw, clean: raw}, nil
	}

	return Pattern{Kind: Prefix, Raw: raw, clean: path.Clean(raw)}, nil
}

// Key is the normalized form used to detect conflicts between lists.
func (p Pattern) Key() string {
	return p.clean
}

// Matches reports whether candidate is covered by the pattern.
//
// A prefix matches the path itself and anything beneath it, so "/tmp" matches
// "/tmp" and "/tmp/a" but not "/tmp2". A glob matches any path it matches
// directly, and any descendant of such a path.
func (p Pattern) Matches(candidate string) bool {
	candidate = path.Clean(candidate)

	if p.Kind == Glob {
		if ok, _ := doublestar.Match(p.clean, candidate); ok {
			return true
		}
		ok, _ := doublestar.Match(strings.TrimSuffix(p.clean, "/")+"/**", candidate)
		return ok
	}

	if p.clean == "/" {
		return strings.HasPrefix(candidate, "/")
	}
	return candidate == p.clean || strings.HasPrefix(candidate, p.clean+"/")
}

// InvalidPatternError reports a pattern that cannot be compiled.
type InvalidPatternError struct {
	Pattern string
	Reason  string
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid path pattern '%s': %s", e.Pattern, e.Reason)
}

// ConflictingPatternError reports a pattern present in both the include and exclude lists.
type ConflictingPatternError struct {
	Pattern string
}

func (e *ConflictingPatternError) Error() string {
	return fmt.Sprintf("path pattern '%s' appears in both include and exclude", e.Pattern)
}
