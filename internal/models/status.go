package models

import "fmt"

// Status статус подписки у платёжного провайдера.
type Status string

const (
	StatusActive            Status = "active"
	StatusCanceled          Status = "canceled"
	StatusPastDue           Status = "past_due"
	StatusUnpaid            Status = "unpaid"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusTrialing          Status = "trialing"
)

// ParseStatus преобразует строку в Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusActive, StatusCanceled, StatusPastDue, StatusUnpaid,
		StatusIncomplete, StatusIncompleteExpired, StatusTrialing:
		return st, nil
	default:
		return "", fmt.Errorf("%w: invalid subscription status %q", ErrValidation, s)
	}
}

// IsActive true только для active.
func (s Status) IsActive() bool {
	return s == StatusActive
}

func (s Status) String() string {
	return string(s)
}
