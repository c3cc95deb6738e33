// Package apperr describes the failure kinds of the send pipeline.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindDeviceAccess Kind = "DEVICE_ACCESS"
	KindUpload       Kind = "UPLOAD"
	KindTranslation  Kind = "TRANSLATION"
	KindMetadataSync Kind = "METADATA_SYNC"
	KindNotFound     Kind = "NOT_FOUND"
	KindBlocked      Kind = "BLOCKED"
	KindInvalid      Kind = "INVALID_ARGUMENT"
)

type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error of the same kind, so errors.Is(err, apperr.ErrBlocked) works
// for wrapped instances with a different message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrNotFound = &Error{Kind: KindNotFound, Message: "not found"}
	ErrBlocked  = &Error{Kind: KindBlocked, Message: "conversation is blocked"}
)

// Constructors
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func DeviceAccess(cause error) error {
	return Wrap(KindDeviceAccess, "audio device unavailable", cause)
}

func Upload(cause error) error {
	return Wrap(KindUpload, "upload failed", cause)
}

func Translation(cause error) error {
	return Wrap(KindTranslation, "translation failed", cause)
}

func MetadataSync(userID string, cause error) error {
	return Wrap(KindMetadataSync, "chat summary update for user "+userID, cause)
}

func Invalid(msg string) error {
	return New(KindInvalid, msg)
}

// KindOf returns the kind of the first *Error in the chain, or "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}
