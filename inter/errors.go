package inter

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures for the transport layer.
type Kind uint8

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = iota
	// KindRejectedInput covers requests refused before any I/O.
	KindRejectedInput
	// KindUpstreamTransport covers provider, index and cache failures.
	KindUpstreamTransport
	// KindNotFound covers unknown strategy or validation names.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRejectedInput:
		return "rejected-input"
	case KindUpstreamTransport:
		return "upstream-transport"
	case KindNotFound:
		return "not-found"
	default:
		return "unknown"
	}
}

// Error carries a Kind alongside a human-readable reason.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Msg
	}
	if e.Msg == "" {
		return e.Err.Error()
	}
	return e.Msg + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Rejected builds a RejectedInput error.
func Rejected(format string, args ...interface{}) error {
	return &Error{Kind: KindRejectedInput, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error.
func NotFound(format string, args ...interface{}) error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps a collaborator failure as UpstreamTransport.
func Upstream(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindUpstreamTransport, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
