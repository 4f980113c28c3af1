package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies ingestion failures so a routing layer can map them to
// response codes without string matching.
type Kind string

const (
	KindInvalidRequest Kind = "invalid_request"
	KindRateLimited    Kind = "rate_limited"
	KindNetwork        Kind = "network"
	KindInvalidData    Kind = "invalid_data"
	KindTransform      Kind = "transform"
	KindCache          Kind = "cache"
)

// Error is a typed ingestion failure carrying enough context to diagnose
// without the stack: the source and dataset it happened for, and for
// rate-limit denials the time the window resets.
type Error struct {
	Kind    Kind
	Source  string
	Dataset string
	ResetAt time.Time
	Err     error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s/%s", e.Kind, e.Source, e.Dataset)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf extracts the failure kind, or "" for untyped errors.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
