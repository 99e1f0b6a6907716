// Package resolver expands abbreviated fingerprints.
package resolver

import (
	"context"
	"fmt"
	"regexp"

	"github.com/dyluth/appraise/pkg/ledger"
)

// MinShortFingerprintLength is the minimum accepted prefix length.
const MinShortFingerprintLength = 6

var hexPrefix = regexp.MustCompile(`^[0-9a-f]+$`)

// FingerprintScanner finds recorded fingerprints by prefix.
type FingerprintScanner interface {
	EvaluationExists(ctx context.Context, fingerprint string) (bool, error)
	ScanFingerprints(ctx context.Context, prefix string) ([]string, error)
}

// ResolveFingerprint resolves a fingerprint prefix to a full fingerprint.
// Returns the full fingerprint if exactly one match found.
// Returns error if zero or multiple matches found.
//
// A full 64-character fingerprint is checked for existence and returned as-is.
func ResolveFingerprint(ctx context.Context, scanner FingerprintScanner, prefix string) (string, error) {
	if ledger.IsFingerprint(prefix) {
		exists, err := scanner.EvaluationExists(ctx, prefix)
		if err != nil {
			return "", fmt.Errorf("failed to verify evaluation existence: %w", err)
		}
		if !exists {
			return "", &NotFoundError{Prefix: prefix}
		}
		return prefix, nil
	}

	if err := CheckPrefix(prefix); err != nil {
		return "", err
	}

	matches, err := scanner.ScanFingerprints(ctx, prefix)
	if err != nil {
		return "", fmt.Errorf("failed to search for evaluation: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{Prefix: prefix}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{Prefix: prefix, Matches: matches}
	}
}

// CheckPrefix reports whether prefix is usable as an abbreviated fingerprint.
func CheckPrefix(prefix string) error {
	if len(prefix) < MinShortFingerprintLength {
		return fmt.Errorf("fingerprint prefix must be at least %d characters (got %d)", MinShortFingerprintLength, len(prefix))
	}
	if len(prefix) > 64 || !hexPrefix.MatchString(prefix) {
		return fmt.Errorf("fingerprint prefix must be at most 64 lowercase hex characters: %q", prefix)
	}
	return nil
}

// NotFoundError indicates no evaluation matched the prefix.
type NotFoundError struct {
	Prefix string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no evaluations found matching '%s'", e.Prefix)
}

// AmbiguousError indicates multiple evaluations matched the prefix.
type AmbiguousError struct {
	Prefix  string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous fingerprint prefix '%s' matches %d evaluations", e.Prefix, len(e.Matches))
}

// Describe lists the matching fingerprints (up to 10, then "...and N more").
func (e *AmbiguousError) Describe() string {
	msg := fmt.Sprintf("'%s' matches %d evaluations:\n", e.Prefix, len(e.Matches))

	shown := min(len(e.Matches), 10)
	for _, fp := range e.Matches[:shown] {
		msg += fmt.Sprintf("  %s\n", fp)
	}
	if len(e.Matches) > shown {
		msg += fmt.Sprintf("  ...and %d more\n", len(e.Matches)-shown)
	}

	return msg
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
