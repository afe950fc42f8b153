package postgres

import (
	"context"
	"fmt"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
)

var _ idempotency.Store = (*ProcessedRepo)(nil)

type ProcessedRepo struct{ q Querier }

func NewProcessedRepo(q Querier) *ProcessedRepo { return &ProcessedRepo{q: q} }

// TryBeginProcessing relies on the (event_id, tenant_id) primary key: a
// concurrent insert of the same key blocks until the other transaction ends
// and then affects zero rows.
func (r *ProcessedRepo) TryBeginProcessing(ctx context.Context, rec idempotency.Record) (idempotency.Outcome, error) {
	tag, err := r.q.Exec(ctx, `
		INSERT INTO processed_events (event_id, tenant_id, event_type, processed_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id, tenant_id) DO NOTHING`,
		rec.EventID, rec.TenantID, rec.EventType, rec.ProcessedAt)
	if isUniqueViolation(err) {
		return idempotency.AlreadyProcessed, nil
	}
	if err != nil {
		return idempotency.Fresh, fmt.Errorf("insert processed event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return idempotency.AlreadyProcessed, nil
	}
	return idempotency.Fresh, nil
}
