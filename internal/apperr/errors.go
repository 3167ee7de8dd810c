// Package apperr holds the error taxonomy shared by services and handlers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindInvariantViolation
	KindPartialProcessingFailure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindInvariantViolation:
		return "invariant_violation"
	case KindPartialProcessingFailure:
		return "partial_processing_failure"
	default:
		return "internal"
	}
}

// Error is a classified error. Two errors are equal under errors.Is when their codes match,
// so callers can wrap sentinels with extra detail and still test against them.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// With returns a copy of e carrying a more specific message.
func (e *Error) With(format string, args ...any) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return New(KindValidation, "validation_error", message)
}

// KindOf reports the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

var (
	ErrInvalidMediaType = New(KindValidation, "invalid_media_type", "unsupported image type")
	ErrPayloadTooLarge  = New(KindValidation, "payload_too_large", "image too large")
	ErrUndecodableImage = New(KindValidation, "undecodable_image", "failed to process image")

	ErrCostumeNotFound   = New(KindNotFound, "costume_not_found", "costume not found")
	ErrDuplicateName     = New(KindConflict, "duplicate_name", "costume with this name already exists")
	ErrNegativeInventory = New(KindInvariantViolation, "negative_inventory", "cannot reduce amount below zero")

	ErrVariantFailed = New(KindPartialProcessingFailure, "variant_failed", "image variant could not be generated")

	ErrUserNotFound       = New(KindNotFound, "user_not_found", "user not found")
	ErrEmailTaken         = New(KindConflict, "email_taken", "email already registered")
	ErrUsernameTaken      = New(KindConflict, "username_taken", "username already taken")
	ErrInvalidCredentials = New(KindUnauthorized, "invalid_credentials", "incorrect email/username or password")
	ErrInactiveUser       = New(KindUnauthorized, "inactive_user", "user not found or inactive")
	ErrInvalidToken       = New(KindUnauthorized, "invalid_token", "invalid authentication credentials")
	ErrCannotManage       = New(KindForbidden, "cannot_manage", "not enough permissions")
	ErrSelfAction         = New(KindValidation, "self_action", "cannot perform this action on yourself")
)
