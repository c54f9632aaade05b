package identity

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind класс ошибки клиента.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindNotLoggedIn         Kind = "not_logged_in"
	KindUserNotFound        Kind = "user_not_found"
	KindUpstream            Kind = "upstream"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUnauthorized        Kind = "unauthorized"
)

// Сентинелы для errors.Is по классу ошибки.
var (
	ErrValidation          = &Error{Kind: KindValidation}
	ErrNotLoggedIn         = &Error{Kind: KindNotLoggedIn}
	ErrUserNotFound        = &Error{Kind: KindUserNotFound}
	ErrUpstream            = &Error{Kind: KindUpstream}
	ErrUpstreamUnavailable = &Error{Kind: KindUpstreamUnavailable}
	ErrUnauthorized        = &Error{Kind: KindUnauthorized}
)

// Error ошибка API идентификации. StatusCode повторяет HTTP-код ответа
// или код, назначенный клиентом, Detail хранит сырое тело ответа.
type Error struct {
	Kind       Kind
	StatusCode int
	Message    string
	Detail     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// KindOf возвращает класс ошибки или пустую строку, если это не *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func validationError(msg string, err error) *Error {
	return &Error{Kind: KindValidation, StatusCode: http.StatusBadRequest, Message: msg, Err: err}
}

func unauthorizedError(err error) *Error {
	return &Error{Kind: KindUnauthorized, StatusCode: http.StatusUnauthorized, Message: "failed to get ID token", Err: err}
}

func unavailableError(err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, StatusCode: http.StatusServiceUnavailable, Message: "request failed", Err: err}
}

func upstreamError(status int, body []byte) *Error {
	return &Error{
		Kind:       KindUpstream,
		StatusCode: status,
		Message:    fmt.Sprintf("HTTP error occurred: %d", status),
		Detail:     string(body),
	}
}

// unexpectedError всё, что не удалось классифицировать.
func unexpectedError(err error) *Error {
	return &Error{Kind: KindUpstream, StatusCode: http.StatusInternalServerError, Message: "unexpected error", Err: err}
}
