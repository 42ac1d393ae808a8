// Package ldkerr defines the typed error kinds shared by every engine and
// wire-protocol adapter. Engines raise a *ldkerr.Error; adapters translate it
// into the dialect-appropriate wire envelope (see internal/wire).
package ldkerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for wire translation and retry policy purposes.
type Kind int

const (
	// KindClient covers malformed requests, unknown operations, missing fields.
	KindClient Kind = iota
	// KindNotFound covers missing named resources (table, queue, bucket, key...).
	KindNotFound
	// KindConflict covers uniqueness/condition violations.
	KindConflict
	// KindPolicyDenial covers IAM-evaluator deny decisions in enforce mode.
	KindPolicyDenial
	// KindChaos covers synthetic errors injected by the chaos middleware.
	KindChaos
	// KindTransient covers I/O hiccups and compute-invocation failures.
	KindTransient
	// KindFatal covers bind failures and corrupted persisted state.
	KindFatal
	// KindInternal covers unexpected panics/errors caught at the outermost handler.
	KindInternal
)

// Error is the typed error every engine operation returns on failure.
type Error struct {
	Kind Kind
	// Code is the dialect-agnostic distinguished error name, e.g.
	// "ResourceNotFoundException", "ConditionalCheckFailedException",
	// "NoSuchBucket", "NonExistentQueue".
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Wrap(kind Kind, code string, cause error) *Error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &Error{Kind: kind, Code: code, Message: msg, Cause: cause}
}

func NotFound(code, message string) *Error  { return New(KindNotFound, code, message) }
func Conflict(code, message string) *Error  { return New(KindConflict, code, message) }
func Client(code, message string) *Error    { return New(KindClient, code, message) }
func Transient(code, message string) *Error { return New(KindTransient, code, message) }
func Fatal(code, message string) *Error     { return New(KindFatal, code, message) }

// PolicyDenied builds the distinguished access-denied error a policy-evaluation
// deny decision surfaces in enforce mode.
func PolicyDenied(reason string) *Error {
	return New(KindPolicyDenial, "AccessDeniedException", reason)
}

// As reports whether err (or something it wraps) is a *Error and returns it.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
