// Package apierr defines the error taxonomy shared by the signer, the API
// client and the mapper. Every failure leaving those packages is an *Error
// carrying one Kind, so callers can branch on the kind instead of on strings.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a failure.
type Kind string

const (
	// KindTransport is a connectivity, timeout or cancellation failure.
	KindTransport Kind = "transport"
	// KindProtocol is a handshake step invoked out of order or a missing
	// OAuth response field.
	KindProtocol Kind = "protocol"
	// KindHTTP is a non-2xx response other than 401.
	KindHTTP Kind = "http"
	// KindParsing is a JSON decode failure or a missing required field.
	KindParsing Kind = "parsing"
	// KindAuthentication is a signed call without a credential, or a 401.
	KindAuthentication Kind = "authentication"
)

// Error is the structured error returned by the client core.
type Error struct {
	Kind       Kind
	Op         string        // operation, e.g. "home_timeline"
	Status     int           // HTTP status when known
	RetryAfter time.Duration // parsed from rate-limit headers, zero if absent
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: KindParsing})
// works as a kind test.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// Constructors.

func Transport(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func Protocol(op, msg string) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: msg}
}

func HTTP(op string, status int, msg string) *Error {
	return &Error{Kind: KindHTTP, Op: op, Status: status, Message: msg}
}

func Parsing(op, msg string, err error) *Error {
	return &Error{Kind: KindParsing, Op: op, Message: msg, Err: err}
}

func Auth(op, msg string) *Error {
	return &Error{Kind: KindAuthentication, Op: op, Message: msg}
}

// FromStatus classifies a non-2xx HTTP status. 401 is an authentication
// failure; everything else keeps its status for the caller to inspect.
func FromStatus(op string, status int, msg string) *Error {
	if status == http.StatusUnauthorized {
		e := Auth(op, msg)
		e.Status = status
		return e
	}
	return HTTP(op, status, msg)
}

// WithOp returns err with Op set when it is an *Error lacking one.
func WithOp(err error, op string) error {
	var e *Error
	if errors.As(err, &e) && e.Op == "" {
		cp := *e
		cp.Op = op
		return &cp
	}
	return err
}

// KindOf returns the kind of err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// RetryAfterOf returns the back-off carried by a rate-limited err, or 0.
func RetryAfterOf(err error) time.Duration {
	var e *Error
	if errors.As(err, &e) {
		return e.RetryAfter
	}
	return 0
}

func IsTransport(err error) bool      { return KindOf(err) == KindTransport }
func IsProtocol(err error) bool       { return KindOf(err) == KindProtocol }
func IsHTTP(err error) bool           { return KindOf(err) == KindHTTP }
func IsParsing(err error) bool        { return KindOf(err) == KindParsing }
func IsAuthentication(err error) bool { return KindOf(err) == KindAuthentication }

// IsRateLimited reports whether err is an HTTP 429 so callers can back off.
func IsRateLimited(err error) bool {
	return KindOf(err) == KindHTTP && StatusOf(err) == http.StatusTooManyRequests
}

// Exit codes for the CLI host, one per kind.
const (
	ExitOK             = 0
	ExitUsage          = 1
	ExitAuthentication = 3
	ExitRateLimit      = 5
	ExitTransport      = 6
	ExitHTTP           = 7
	ExitProtocol       = 8
	ExitParsing        = 9
)

// ExitCode maps err to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	if IsRateLimited(err) {
		return ExitRateLimit
	}
	switch KindOf(err) {
	case KindAuthentication:
		return ExitAuthentication
	case KindTransport:
		return ExitTransport
	case KindHTTP:
		return ExitHTTP
	case KindProtocol:
		return ExitProtocol
	case KindParsing:
		return ExitParsing
	default:
		return ExitUsage
	}
}
