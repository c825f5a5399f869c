package distlimiter

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
)

// Kind classifies the fixed set of ways an acquire or release can fail.
type Kind int

const (
	// KindMaxSleepExceeded means the operation would have waited longer
	// than the caller's configured max-sleep.
	KindMaxSleepExceeded Kind = iota + 1

	// KindRedis means the coordination server (or its URL) produced an
	// error: connection failures, script errors, malformed connection_url.
	KindRedis

	// KindValue means the primitive was misconfigured at construction time.
	KindValue

	// KindRuntime means an internal invariant was violated (the schedule
	// script returned a value of the wrong shape or an unparsable slot), or
	// ctx was done while an acquire was waiting.
	KindRuntime
)

func (k Kind) String() string {
	switch k {
	case KindMaxSleepExceeded:
		return "MaxSleepExceeded"
	case KindRedis:
		return "Redis"
	case KindValue:
		return "Value"
	case KindRuntime:
		return "Runtime"
	default:
		return "Unknown"
	}
}

// Error is the error type returned by every exported operation in this
// package. Callers should switch on Kind rather than matching message text.
type Error struct {
	Kind Kind
	Op   string
	Name string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("distlimiter: %s %s: %s: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("distlimiter: %s %s: %s", e.Op, e.Name, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, ErrMaxSleepExceeded) and similar sentinel checks
// to work against the Kind alone, independent of Op/Name/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind == 0 {
		return false
	}
	return e.Kind == t.Kind
}

func newErr(kind Kind, op, name string, err error) *Error {
	return &Error{Kind: kind, Op: op, Name: name, Err: err}
}

// Shared configuration-validation errors, wrapped as KindValue by callers.
var errEmptyName = errors.New("name must not be empty")

// errUnexpectedScriptResult means the schedule script returned a value of
// the wrong shape, which would indicate the embedded Lua drifted from what
// the Go side expects - an internal invariant violation, not an operator
// error.
var errUnexpectedScriptResult = errors.New("token bucket schedule script returned an unexpected value")

func errNegativeDuration(field string) error {
	return fmt.Errorf("%s must not be negative", field)
}

func errNonPositiveDuration(field string) error {
	return fmt.Errorf("%s must be positive", field)
}

func errNonPositiveInt(field string) error {
	return fmt.Errorf("%s must be positive", field)
}

// Sentinel values usable with errors.Is. Only Kind is compared.
var (
	ErrMaxSleepExceeded = &Error{Kind: KindMaxSleepExceeded}
	ErrRedis            = &Error{Kind: KindRedis}
	ErrValue            = &Error{Kind: KindValue}
	ErrRuntime          = &Error{Kind: KindRuntime}
)

// joinRedisErrors aggregates the per-command errors of a pipelined batch
// (release's push+expire+expire) into a single KindRedis *Error, using
// go-multierror rather than surfacing only the first failure.
func joinRedisErrors(op, name string, errs ...error) error {
	var merr *multierror.Error
	for _, err := range errs {
		if err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if merr == nil || merr.Len() == 0 {
		return nil
	}
	return newErr(KindRedis, op, name, merr.ErrorOrNil())
}
