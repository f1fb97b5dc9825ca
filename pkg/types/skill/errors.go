package skill

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// ParseError indicates a malformed skill definition. It is fatal and surfaced
// to the skill author; a definition is never partially applied.
type ParseError struct {
	Line    int
	Heading string
	Message string
}

func (e *ParseError) Error() string {
	switch {
	case e.Heading != "" && e.Line > 0:
		return fmt.Sprintf("parse error at line %d (%s): %s", e.Line, e.Heading, e.Message)
	case e.Heading != "":
		return fmt.Sprintf("parse error in %q: %s", e.Heading, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Message)
	default:
		return "parse error: " + e.Message
	}
}

// CapabilityDeniedError indicates a requested action outside the skill's
// declared allowlist. It is always surfaced to the caller, never downgraded.
type CapabilityDeniedError struct {
	Denied string
	Reason string
}

func (e *CapabilityDeniedError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("capability denied: %q %s", e.Denied, e.Reason)
	}
	return fmt.Sprintf("capability denied: %q is not in the declared allowlist", e.Denied)
}

// MissingParameterError indicates the caller omitted a required parameter.
type MissingParameterError struct {
	Parameter string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("missing required parameter %q", e.Parameter)
}

// TypeMismatchError indicates a caller-supplied value could not be coerced to
// the declared parameter type.
type TypeMismatchError struct {
	Parameter string
	Expected  ParameterType
	Value     any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("parameter %q: cannot use %v (%T) as %s", e.Parameter, e.Value, e.Value, e.Expected)
}

// SubstitutionError indicates a template token that is not declared in the
// tool's parameter schema. It is a skill-definition defect, not a caller error.
type SubstitutionError struct {
	Token string
}

func (e *SubstitutionError) Error() string {
	return fmt.Sprintf("template references undeclared parameter %q", e.Token)
}

// ExecutionError carries a non-zero exit or module-reported failure. It is
// reported as success=false on the result, not raised as a host fault.
type ExecutionError struct {
	Message  string
	ExitCode int
}

func (e *ExecutionError) Error() string {
	if e.ExitCode != 0 {
		return fmt.Sprintf("execution failed (exit %d): %s", e.ExitCode, e.Message)
	}
	return "execution failed: " + e.Message
}

// TimeoutError indicates the invocation exceeded its bound. Distinct from
// ExecutionError so callers can decide whether to retry.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("invocation timed out after %s", e.Timeout)
}

// ClassifyError maps an error to its ErrorKind. Unknown errors are treated as
// internal defects.
func ClassifyError(err error) ErrorKind {
	var (
		parseErr   *ParseError
		capErr     *CapabilityDeniedError
		missingErr *MissingParameterError
		typeErr    *TypeMismatchError
		substErr   *SubstitutionError
		execErr    *ExecutionError
		timeoutErr *TimeoutError
	)
	switch {
	case errors.As(err, &parseErr):
		return ErrKindParse
	case errors.As(err, &capErr):
		return ErrKindCapabilityDenied
	case errors.As(err, &missingErr):
		return ErrKindMissingParameter
	case errors.As(err, &typeErr):
		return ErrKindTypeMismatch
	case errors.As(err, &substErr):
		return ErrKindSubstitution
	case errors.As(err, &timeoutErr):
		return ErrKindTimeout
	case errors.As(err, &execErr):
		return ErrKindExecution
	default:
		return ErrKindInternal
	}
}
