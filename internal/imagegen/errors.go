package imagegen

import (
	"fmt"
	"strings"
)

// Kind classifies generation failures.
type Kind string

const (
	KindInsufficientBalance Kind = "insufficient_balance"
	KindUpstream            Kind = "upstream_error"
	KindInvalidResponse     Kind = "invalid_response"
	KindNetwork             Kind = "network_error"
	KindCancelled           Kind = "cancelled"
	KindLedger              Kind = "ledger_error"
)

// Sentinels for errors.Is matching on the failure kind.
var (
	ErrInsufficientBalance = &Error{Kind: KindInsufficientBalance}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrInvalidResponse     = &Error{Kind: KindInvalidResponse}
	ErrNetwork             = &Error{Kind: KindNetwork}
	ErrCancelled           = &Error{Kind: KindCancelled}
	ErrLedger              = &Error{Kind: KindLedger}
)

// Error is the terminal failure of a generation request. Detail keeps the
// last upstream message so it can be shown to the user.
type Error struct {
	Kind     Kind
	Stage    Stage
	Detail   string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("imagegen: ")
	b.WriteString(string(e.Kind))
	if e.Stage != "" {
		fmt.Fprintf(&b, " (%s stage", e.Stage)
		if e.Attempts > 0 {
			fmt.Fprintf(&b, ", %d attempts", e.Attempts)
		}
		b.WriteString(")")
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can write
// errors.Is(err, imagegen.ErrUpstream).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// attemptError is the failure of a single attempt inside the retry loop.
type attemptError struct {
	kind   Kind
	detail string
	err    error
}

func (e *attemptError) Error() string {
	if e.detail != "" {
		return string(e.kind) + ": " + e.detail
	}
	return string(e.kind)
}

func (e *attemptError) Unwrap() error { return e.err }
