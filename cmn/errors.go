// Package cmn provides the shared constants, error taxonomy, configuration,
// and id/partition utilities used by every node role.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Kind is the normative error taxonomy of §7: every failure a node surfaces
// collapses into exactly one of these, regardless of which collaborator
// raised it.
type Kind int

const (
	KindBadRequest Kind = iota
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindGone
	KindConflict
	KindPayloadTooLarge
	KindServiceUnavailable
	KindInternal
)

func (k Kind) Status() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindGone:
		return http.StatusGone
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the one error type every handler in this module returns or
// wraps; it resolves spec.md §9's Open Question in favor of a single
// taxonomy rather than preserving either of the source's exception-name
// lineages.
type Error struct {
	kind Kind
	msg  string
	goid string // object id implicated, if any; empty otherwise
}

func (e *Error) Error() string {
	if e.goid != "" {
		return fmt.Sprintf("%s: %s", e.goid, e.msg)
	}
	return e.msg
}

func (e *Error) Status() int { return e.kind.Status() }
func (e *Error) Kind() Kind  { return e.kind }

func newErr(k Kind, id, format string, a ...interface{}) *Error {
	return &Error{kind: k, goid: id, msg: fmt.Sprintf(format, a...)}
}

func NewBadRequestError(format string, a ...interface{}) error {
	return newErr(KindBadRequest, "", format, a...)
}

func NewUnauthorizedError(format string, a ...interface{}) error {
	return newErr(KindUnauthorized, "", format, a...)
}

func NewForbiddenError(format string, a ...interface{}) error {
	return newErr(KindForbidden, "", format, a...)
}

func NewNotFoundError(id, format string, a ...interface{}) error {
	return newErr(KindNotFound, id, format, a...)
}

func NewGoneError(id string) error {
	return newErr(KindGone, id, "%q is tombstoned", id)
}

func NewConflictError(format string, a ...interface{}) error {
	return newErr(KindConflict, "", format, a...)
}

func NewPayloadTooLargeError(format string, a ...interface{}) error {
	return newErr(KindPayloadTooLarge, "", format, a...)
}

func NewServiceUnavailableError(format string, a ...interface{}) error {
	return newErr(KindServiceUnavailable, "", format, a...)
}

func NewInternalError(format string, a ...interface{}) error {
	return newErr(KindInternal, "", format, a...)
}

// kindForStatus is the inverse of Kind.Status, used when an SN must
// reconstruct a Kind from a DN's raw HTTP response (§7: "SN handlers pass
// the first failed sub-request's status through unchanged").
func kindForStatus(status int) Kind {
	switch status {
	case http.StatusBadRequest:
		return KindBadRequest
	case http.StatusUnauthorized:
		return KindUnauthorized
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusGone:
		return KindGone
	case http.StatusConflict:
		return KindConflict
	case http.StatusRequestEntityTooLarge:
		return KindPayloadTooLarge
	case http.StatusServiceUnavailable:
		return KindServiceUnavailable
	default:
		return KindInternal
	}
}

// NewErrorWithStatus mints an Error from a raw HTTP status code, for the SN
// passing a failed DN sub-request's status straight through to its own
// caller.
func NewErrorWithStatus(status int, msg string) error {
	return &Error{kind: kindForStatus(status), msg: msg}
}

// Wrap preserves err's Kind (if it is one of ours) while adding context,
// using pkg/errors so the original cause remains retrievable via Cause().
func Wrap(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	wrapped := errors.Wrapf(err, format, a...)
	if e, ok := err.(*Error); ok {
		return &Error{kind: e.kind, goid: e.goid, msg: wrapped.Error()}
	}
	return &Error{kind: KindInternal, msg: wrapped.Error()}
}

// StatusOf maps any error to the HTTP status an SN/DN handler should
// return for it; errors not minted by this package are treated as 500s.
func StatusOf(err error) int {
	if err == nil {
		return http.StatusOK
	}
	if e, ok := err.(*Error); ok {
		return e.Status()
	}
	return http.StatusInternalServerError
}

func IsNotFound(err error) bool { return kindOf(err) == KindNotFound }
func IsGone(err error) bool     { return kindOf(err) == KindGone }
func IsConflict(err error) bool { return kindOf(err) == KindConflict }

func kindOf(err error) Kind {
	if e, ok := err.(*Error); ok {
		return e.kind
	}
	return KindInternal
}
