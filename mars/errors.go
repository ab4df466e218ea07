package mars

import "fmt"

// Sentinel errors for the taxonomy spec.md §7 lists for the request side:
// parse, validation, and expansion errors. Callers distinguish them with
// errors.Is.
var (
	// ErrUnknownKey is returned (or downgraded to a warning in non-strict
	// mode) when a parameter name has no entry in the Type registry.
	ErrUnknownKey = fmt.Errorf("mars: unknown key")
	// ErrInvalidValue is returned when a Type rejects one of a parameter's
	// values outright.
	ErrInvalidValue = fmt.Errorf("mars: invalid value")
	// ErrConstraintViolated is returned when a cross-key only/never
	// constraint rules out a parameter's current values.
	ErrConstraintViolated = fmt.Errorf("mars: cross-key constraint violated")
	// ErrDuplicateKey reports a parameter name already present on a
	// request. Request.Set and SetTyped replace an existing parameter
	// instead, and no function in this package returns this error.
	ErrDuplicateKey = fmt.Errorf("mars: duplicate key")
)

// ParseError carries the line/column of a syntax error in MARS request
// text, wrapped with github.com/pkg/errors at the tokenizer boundary so the
// inner cause survives alongside the position.
type ParseError struct {
	Line, Column int
	Msg          string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("mars: parse error at %d:%d: %s", e.Line, e.Column, e.Msg)
}
