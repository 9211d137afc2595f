package ledger

import "errors"

// Kind classifies an aborted call.
type Kind uint8

const (
	KindValidation Kind = iota + 1
	KindAuthorization
	KindGating
	KindCapacity
	KindExecution
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthorization:
		return "authorization"
	case KindGating:
		return "gating"
	case KindCapacity:
		return "capacity"
	case KindExecution:
		return "execution"
	default:
		return "unknown"
	}
}

// Failure aborts a call. Error returns the stable tag only so that callers
// can match on it the same way they would match a revert reason.
type Failure struct {
	Kind Kind
	Tag  string
}

// Fail builds a Failure.
func Fail(kind Kind, tag string) *Failure {
	return &Failure{Kind: kind, Tag: tag}
}

func (f *Failure) Error() string {
	return f.Tag
}

// Is matches failures by tag so that a freshly built Failure compares equal
// to the exported sentinel with the same tag.
func (f *Failure) Is(target error) bool {
	var other *Failure
	if !errors.As(target, &other) {
		return false
	}
	return other.Tag == f.Tag && other.Kind == f.Kind
}

// KindOf returns the failure kind carried by err.
func KindOf(err error) (Kind, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind, true
	}
	return 0, false
}

// TagOf returns the failure tag carried by err, or "" when err is not a Failure.
func TagOf(err error) string {
	var f *Failure
	if errors.As(err, &f) {
		return f.Tag
	}
	return ""
}

// IsTransient reports whether retrying the same call later may succeed
// without changing its inputs.
func IsTransient(err error) bool {
	kind, ok := KindOf(err)
	return ok && (kind == KindGating || kind == KindCapacity)
}

var (
	ErrInsufficientBalance   = Fail(KindExecution, "transfer amount exceeds balance")
	ErrInsufficientAllowance = Fail(KindExecution, "transfer amount exceeds allowance")
	ErrBalanceOverflow       = Fail(KindExecution, "balance overflow")
	ErrUnknownToken          = Fail(KindExecution, "unknown token")
	ErrZeroAddress           = Fail(KindValidation, "zero address")
	ErrReadOnly              = Fail(KindExecution, "write in read-only call")
)
