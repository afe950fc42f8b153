package domain

import (
	"context"
	"errors"
)

var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrInvalidOperation       = errors.New("invalid operation")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrInvalidInput           = errors.New("invalid input")
	ErrPublish                = errors.New("publish failed")
)

type Kind int

const (
	KindInfrastructure Kind = iota
	KindBusiness
	KindInvalid
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindBusiness:
		return "business"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	default:
		return "infrastructure"
	}
}

// KindOf classifies err. Anything that is not one of the domain sentinels
// is an infrastructure failure.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return KindBusiness
	case errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrInvalidStateTransition),
		errors.Is(err, ErrInvalidInput):
		return KindInvalid
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInfrastructure
	}
}

// Retryable reports whether a consumer should expect a later redelivery of the
// same event to succeed. Cancellation is not retryable: the worker is stopping.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	k := KindOf(err)
	return k == KindNotFound || k == KindInfrastructure
}
