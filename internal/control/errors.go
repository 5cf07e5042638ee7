package control

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a per-request failure.
type Kind string

const (
	KindTimeout      Kind = "timeout"
	KindUpstream     Kind = "upstream"
	KindPresentation Kind = "presentation"
	KindStore        Kind = "store"
	KindUnknown      Kind = "unknown"
)

// Replies shown to the end user. Nothing else about a failure ever leaves the process.
const (
	TimeoutReply = "Time out, please retry!"
	GenericReply = "Something went wrong, please retry!"
)

// Error is a classified failure. Op names the failing operation for logs.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Timeout marks err as an exceeded call bound.
func Timeout(op string, err error) error { return wrap(KindTimeout, op, err) }

// Upstream marks err as a model or image backend failure.
func Upstream(op string, err error) error { return wrap(KindUpstream, op, err) }

// Presentation marks err as an outward edit that failed after its retry.
func Presentation(op string, err error) error { return wrap(KindPresentation, op, err) }

// Store marks err as a cache or database failure.
func Store(op string, err error) error { return wrap(KindStore, op, err) }

// KindOf returns the kind of the outermost classified error in the chain.
// An unclassified deadline is reported as a timeout.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return KindOf(err) == KindTimeout
}

// UserReply maps any failure to one of the two generic user-facing replies.
func UserReply(err error) string {
	if IsTimeout(err) {
		return TimeoutReply
	}
	return GenericReply
}
