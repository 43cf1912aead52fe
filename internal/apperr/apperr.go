// Package apperr define la taxonomía de errores del servicio de sincronización.
// Cada error lleva un Kind estable que se muestra al administrador y se
// traduce a un código HTTP en la API.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind clasifica un error
type Kind string

const (
	KindConnection     Kind = "connection"
	KindAuthentication Kind = "authentication"
	KindTimeout        Kind = "timeout"
	KindProtocol       Kind = "protocol"
	KindPersistence    Kind = "persistence"
	KindValidation     Kind = "validation"
	KindNotFound       Kind = "not_found"
	KindSyncInProgress Kind = "sync_in_progress"
	KindInternal       Kind = "internal"
)

// Error es un error con clasificación y operación de origen
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New crea un error clasificado
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf crea un error clasificado con un mensaje formateado
func Newf(kind Kind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf devuelve el Kind del primer *Error de la cadena, o KindInternal
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reporta si err pertenece a kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus traduce un Kind al código HTTP que la API devuelve
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindSyncInProgress:
		return http.StatusConflict
	case KindConnection, KindAuthentication, KindProtocol:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
