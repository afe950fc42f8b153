package domain_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind domain.Kind
	}{
		{"insufficient stock", domain.ErrInsufficientStock, domain.KindBusiness},
		{"wrapped insufficient stock", fmt.Errorf("reserve sku-1: %w", domain.ErrInsufficientStock), domain.KindBusiness},
		{"invalid operation", domain.ErrInvalidOperation, domain.KindInvalid},
		{"invalid transition", domain.ErrInvalidStateTransition, domain.KindInvalid},
		{"invalid input", domain.ErrInvalidInput, domain.KindInvalid},
		{"not found", fmt.Errorf("order o-1: %w", domain.ErrNotFound), domain.KindNotFound},
		{"publish", fmt.Errorf("%w: broker down", domain.ErrPublish), domain.KindInfrastructure},
		{"unknown", errors.New("connection reset"), domain.KindInfrastructure},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.kind, domain.KindOf(tc.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, domain.Retryable(domain.ErrNotFound))
	assert.True(t, domain.Retryable(errors.New("i/o timeout")))
	assert.False(t, domain.Retryable(domain.ErrInsufficientStock))
	assert.False(t, domain.Retryable(domain.ErrInvalidStateTransition))
	assert.False(t, domain.Retryable(context.Canceled))
	assert.False(t, domain.Retryable(nil))
}
