package memstore

import (
	"context"

	"github.com/ariefcatur/order-ledger/internal/idempotency"
)

type processedStore struct{ v *view }

func (p processedStore) TryBeginProcessing(ctx context.Context, rec idempotency.Record) (idempotency.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return idempotency.Fresh, err
	}
	defer p.v.lock()()

	k := rec.Key()
	if _, ok := p.v.s.processed[k]; ok {
		return idempotency.AlreadyProcessed, nil
	}
	p.v.s.processed[k] = rec
	p.v.onRollback(func() { delete(p.v.s.processed, k) })
	return idempotency.Fresh, nil
}

// ProcessedCount is the number of recorded events for a tenant.
func (s *Store) ProcessedCount(tenantID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.processed {
		if k.TenantID == tenantID {
			n++
		}
	}
	return n
}
