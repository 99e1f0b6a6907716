package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ValidationError reports a malformed contribution. It is surfaced to the caller
// before any agent sees the contribution.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid contribution: %s %s", e.Field, e.Reason)
}

// IsValidation returns true if err is, or wraps, a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks that the required fields of the contribution are present.
func (c *Contribution) Validate() error {
	if c == nil {
		return &ValidationError{Field: "contribution", Reason: "is required"}
	}

	if strings.TrimSpace(c.Developer) == "" {
		return &ValidationError{Field: "developer", Reason: "is required"}
	}

	if c.Code == "" {
		return &ValidationError{Field: "code", Reason: "is required"}
	}

	if strings.TrimSpace(string(c.Timestamp)) == "" {
		return &ValidationError{Field: "timestamp", Reason: "is required"}
	}

	return nil
}

// IsNotFound returns true if the error is a Redis "key not found" error (redis.Nil).
// Use this to check if GetEvaluation or GetProjectPopularity returned "not found".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}
