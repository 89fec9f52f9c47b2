package gateway

import (
	"errors"
	"fmt"
)

// Error kinds, used by the API layer to map failures to responses.
const (
	KindConfig       = "config_error"
	KindUnauthorized = "unauthorized_upstream"
	KindUnreachable  = "gateway_unreachable"
	KindQRTimeout    = "qr_timeout"
	KindUpstream     = "upstream_error"
)

// Error is a classified gateway failure. Status is the upstream HTTP status
// when one was received, zero otherwise. Hint is a short operator-facing
// suggestion; Body carries a truncated upstream response for diagnostics.
type Error struct {
	Kind   string
	Status int
	Hint   string
	Body   string
	err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("gateway %s (status %d): %s", e.Kind, e.Status, e.Hint)
	}
	if e.err != nil {
		return fmt.Sprintf("gateway %s: %v", e.Kind, e.err)
	}
	return fmt.Sprintf("gateway %s: %s", e.Kind, e.Hint)
}

func (e *Error) Unwrap() error { return e.err }

func configErr(hint string) *Error {
	return &Error{Kind: KindConfig, Hint: hint}
}

// AsError extracts a *Error from err, or wraps it as an upstream error.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return ge
	}
	return &Error{Kind: KindUpstream, Hint: "unexpected gateway failure", err: err}
}
