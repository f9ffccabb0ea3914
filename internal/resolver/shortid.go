package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dyluth/dtioctl/internal/registry"
)

// MinShortIDLength is the minimum required length for short run ID prefixes.
const MinShortIDLength = 6

// ResolveRunID resolves a short ID prefix to a full run ID.
//
// A full UUID (36 chars, 4 hyphens) is checked for existence and returned
// as-is. Shorter input must be at least MinShortIDLength characters and match
// exactly one recorded run.
func ResolveRunID(ctx context.Context, client *registry.Client, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		_, err := client.GetRun(ctx, shortID)
		if err != nil {
			if registry.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify run existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := client.ScanRuns(ctx, strings.ToLower(shortID))
	if err != nil {
		return "", fmt.Errorf("failed to search for run: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		sort.Strings(matches)
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no runs matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no runs found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple runs matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d runs", e.ShortID, len(e.Matches))
}

// FormatMatches lists the matching IDs, up to 10, then "...and N more".
func (e *AmbiguousError) FormatMatches() string {
	displayCount := len(e.Matches)
	if displayCount > 10 {
		displayCount = 10
	}

	lines := make([]string, 0, displayCount+1)
	lines = append(lines, e.Matches[:displayCount]...)
	if len(e.Matches) > 10 {
		lines = append(lines, fmt.Sprintf("...and %d more", len(e.Matches)-10))
	}
	return strings.Join(lines, "\n")
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	_, ok := err.(*AmbiguousError)
	return ok
}
