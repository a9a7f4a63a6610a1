// Package apperr defines the error kinds workflows return to callers.
//
// Handlers map a Kind to a short user-facing reply; loops use it to decide
// whether to continue or abort a pass.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindStateConflict
	KindExternal
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindStateConflict:
		return "state_conflict"
	case KindExternal:
		return "external_service"
	default:
		return "unknown"
	}
}

// ValidationError is malformed user input. Field names the offending input;
// Line is the 1-based line of a batch, 0 otherwise.
type ValidationError struct {
	Field string
	Line  int
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("Строка %d: %s", e.Line, e.Msg)
	}
	return e.Msg
}

// NotFoundError is a missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.Key)
}

// StateConflictError is an action on an entity that already left the state the action needs.
type StateConflictError struct {
	Entity string
	Key    string
	State  string
}

func (e *StateConflictError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s %s already processed (%s)", e.Entity, e.Key, e.State)
	}
	return fmt.Sprintf("%s %s already processed", e.Entity, e.Key)
}

// ExternalServiceError wraps a failing collaborator (roster, messaging platform).
type ExternalServiceError struct {
	Service string
	Err     error
}

func (e *ExternalServiceError) Error() string {
	if e.Err == nil {
		return e.Service + " unavailable"
	}
	return e.Service + ": " + e.Err.Error()
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

func Validation(field, msg string) error { return &ValidationError{Field: field, Msg: msg} }

func NotFound(entity, key string) error { return &NotFoundError{Entity: entity, Key: key} }

func Conflict(entity, key, state string) error {
	return &StateConflictError{Entity: entity, Key: key, State: state}
}

func External(service string, err error) error {
	return &ExternalServiceError{Service: service, Err: err}
}

// KindOf classifies err by the first typed error in its chain.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		nf *NotFoundError
		sc *StateConflictError
		ex *ExternalServiceError
	)
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &sc):
		return KindStateConflict
	case errors.As(err, &ex):
		return KindExternal
	default:
		return KindUnknown
	}
}

func IsValidation(err error) bool { return KindOf(err) == KindValidation }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsConflict(err error) bool   { return KindOf(err) == KindStateConflict }
func IsExternal(err error) bool   { return KindOf(err) == KindExternal }

// UserMessage is the reply shown in chat for err. Validation messages are
// written for users and pass through; everything else is generic.
func UserMessage(err error) string {
	var ve *ValidationError
	switch KindOf(err) {
	case KindValidation:
		if errors.As(err, &ve) {
			return "❌ " + ve.Error()
		}
		return "❌ " + err.Error()
	case KindNotFound:
		return "❌ Не найдено."
	case KindStateConflict:
		return "ℹ️ Это уже обработано."
	case KindExternal:
		return "⚠️ Внешний сервис недоступен, попробуйте позже."
	default:
		return "❌ Произошла ошибка, попробуйте позже."
	}
}
