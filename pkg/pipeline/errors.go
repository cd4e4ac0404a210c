package pipeline

import "fmt"

// Kind classifies pipeline failures into the closed taxonomy the HTTP layer
// maps to status codes.
type Kind int

const (
	// KindValidation covers malformed input, rejected before any side effect.
	KindValidation Kind = iota + 1
	// KindSizeLimit covers clones exceeding the configured on-disk cap.
	// Treated as a validation-class failure at the boundary.
	KindSizeLimit
	// KindExecution covers external command failures and timeouts, and
	// failed API calls. Partial remote state may remain.
	KindExecution
	// KindConfig covers missing or unusable configuration.
	KindConfig
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSizeLimit:
		return "size_limit"
	case KindExecution:
		return "execution"
	case KindConfig:
		return "config"
	}
	return "unknown"
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// executionErrorf builds a KindExecution error wrapping err.
func executionErrorf(err error, format string, args ...any) *Error {
	return &Error{Kind: KindExecution, Err: fmt.Errorf(format+": %w", append(args, err)...)}
}
