package verify

import (
	"errors"
	"fmt"
)

// Kind classifies why a verification could not produce a score.
type Kind int

const (
	KindNone Kind = iota
	KindDecode
	KindPreprocess
	KindInsufficientFeatures
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return ""
	case KindDecode:
		return "decode"
	case KindPreprocess:
		return "preprocess"
	case KindInsufficientFeatures:
		return "insufficient_features"
	case KindInternal:
		return "internal"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is the failure attached to a degraded Outcome.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("verify: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("verify: %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind carried by err, KindInternal for foreign errors
// and KindNone for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

func newError(kind Kind, op string, err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
