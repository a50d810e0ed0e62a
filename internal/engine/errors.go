package engine

import "fmt"

// ValidationError marks malformed or missing input; no write has happened
// when it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// InvariantError names the specific invariant a mutation would break. The
// enclosing transaction is rolled back.
type InvariantError struct {
	Invariant string
	Message   string
}

func (e InvariantError) Error() string { return e.Message }

func invariant(name, format string, args ...any) InvariantError {
	return InvariantError{Invariant: name, Message: fmt.Sprintf(format, args...)}
}

func validation(field, format string, args ...any) ValidationError {
	return ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
