package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies why a dispatch failed.
type Kind string

const (
	KindInvalidEndpoint   Kind = "INVALID_ENDPOINT"
	KindProtocolViolation Kind = "PROTOCOL_VIOLATION"
	KindIOFailure         Kind = "IO_FAILURE"
	KindMalformedResponse Kind = "MALFORMED_RESPONSE"
)

func (k Kind) String() string { return string(k) }

// DispatchError is returned for every failed provider call.
type DispatchError struct {
	Kind       Kind
	StatusCode int
	Message    string
	Cause      error
}

func (e *DispatchError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, fmt.Sprintf("dispatch error (%s)", strings.ToLower(string(e.Kind))))

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *DispatchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// KindOf returns the dispatch error kind carried by err, if any.
func KindOf(err error) (Kind, bool) {
	var dispatchErr *DispatchError
	if errors.As(err, &dispatchErr) && dispatchErr != nil {
		return dispatchErr.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a DispatchError of the given kind.
func IsKind(err error, kind Kind) bool {
	got, ok := KindOf(err)
	return ok && got == kind
}

// IsRetryable reports whether a dispatch may be attempted again. Only
// transport failures qualify; a caller-canceled context never does.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return IsKind(err, KindIOFailure)
}
