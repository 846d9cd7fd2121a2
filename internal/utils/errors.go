package utils

import "fmt"

// ErrorWithSuggestion wraps an error with a hint for the operator.
type ErrorWithSuggestion struct {
	Err        error
	Suggestion string
}

// Error implements the error interface.
func (e *ErrorWithSuggestion) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%v\n\nSuggestion: %s", e.Err, e.Suggestion)
	}
	return e.Err.Error()
}

// Unwrap allows errors.Is and errors.As to work.
func (e *ErrorWithSuggestion) Unwrap() error {
	return e.Err
}

// ErrDatabaseURLMissing is returned when no remote connection string is
// configured anywhere.
func ErrDatabaseURLMissing() error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("no database URL configured"),
		Suggestion: "Set DATABASE_URL (or database_url in the config file) to the hosted Postgres connection string",
	}
}

// ErrConfigInvalid is returned when the config file fails validation.
func ErrConfigInvalid(field, reason string) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("invalid configuration for %q: %s", field, reason),
		Suggestion: fmt.Sprintf("Check the config file and fix the %q field", field),
	}
}

// ErrMigrationFailed is returned when the schema migration cannot be
// applied.
func ErrMigrationFailed(err error) error {
	return &ErrorWithSuggestion{
		Err:        fmt.Errorf("schema migration failed: %w", err),
		Suggestion: "Check that DATABASE_URL points at a reachable Postgres instance and the role can create tables",
	}
}

// WrapWithSuggestion wraps an existing error with a suggestion.
func WrapWithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}
	return &ErrorWithSuggestion{Err: err, Suggestion: suggestion}
}
