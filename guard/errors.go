package guard

import "fmt"

// Kind classifies which network invariant a rejected input violated.
type Kind uint8

const (
	InvalidRandomness Kind = iota + 1
	InvalidTimestamp
	OversizedBlobRequest
	ForkFieldBeforeActivation
	WrongSidecarScheme
	TooManySidecars
)

func (k Kind) String() string {
	switch k {
	case InvalidRandomness:
		return "invalid-randomness"
	case InvalidTimestamp:
		return "invalid-timestamp"
	case OversizedBlobRequest:
		return "oversized-blob-request"
	case ForkFieldBeforeActivation:
		return "fork-field-before-activation"
	case WrongSidecarScheme:
		return "wrong-sidecar-scheme"
	case TooManySidecars:
		return "too-many-sidecars"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Error is a structured validation failure. Callers branch on Kind, or use
// errors.Is against the sentinel values below.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return e.Msg
}

// Is matches any *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidRandomness    = &Error{Kind: InvalidRandomness}
	ErrInvalidTimestamp     = &Error{Kind: InvalidTimestamp}
	ErrOversizedBlobRequest = &Error{Kind: OversizedBlobRequest}
	ErrForkFieldInactive    = &Error{Kind: ForkFieldBeforeActivation}
	ErrWrongSidecarScheme   = &Error{Kind: WrongSidecarScheme}
	ErrTooManySidecars      = &Error{Kind: TooManySidecars}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}
