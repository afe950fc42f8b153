package idempotency

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/order-ledger/internal/domain"
)

// fakeDB holds processed keys plus a counter standing in for business state.
// A unit stages writes and applies them only on commit.
type fakeDB struct {
	mu      sync.Mutex
	records map[Key]Record
	applied int
}

type fakeTx struct {
	db      *fakeDB
	pending map[Key]Record
	bumps   int
}

func (t *fakeTx) Processed() Store { return t }

func (t *fakeTx) TryBeginProcessing(_ context.Context, rec Record) (Outcome, error) {
	if _, ok := t.db.records[rec.Key()]; ok {
		return AlreadyProcessed, nil
	}
	if _, ok := t.pending[rec.Key()]; ok {
		return AlreadyProcessed, nil
	}
	t.pending[rec.Key()] = rec
	return Fresh, nil
}

func (db *fakeDB) InTx(ctx context.Context, fn func(context.Context, *fakeTx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	tx := &fakeTx{db: db, pending: map[Key]Record{}}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for k, r := range tx.pending {
		db.records[k] = r
	}
	db.applied += tx.bumps
	return nil
}

type fakeFast struct {
	seen   map[Key]bool
	err    error
	marked int
}

func (f *fakeFast) Seen(_ context.Context, k Key) (bool, error) { return f.seen[k], f.err }
func (f *fakeFast) Mark(_ context.Context, k Key) error {
	f.marked++
	f.seen[k] = true
	return nil
}

func newDB() *fakeDB { return &fakeDB{records: map[Key]Record{}} }

func bump(_ context.Context, tx *fakeTx) error {
	tx.bumps++
	return nil
}

func TestProcess_SecondDeliveryIsSkipped(t *testing.T) {
	db := newDB()
	p := NewProcessor[*fakeTx](db, zerolog.Nop())
	key := Key{EventID: "e-1", TenantID: "t1"}

	out, err := p.Process(context.Background(), key, "OrderCreated", bump)
	require.NoError(t, err)
	assert.Equal(t, Fresh, out)

	out, err = p.Process(context.Background(), key, "OrderCreated", bump)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, out)

	assert.Equal(t, 1, db.applied)
	assert.Len(t, db.records, 1)
	assert.Equal(t, "OrderCreated", db.records[key].EventType)
}

func TestProcess_SameEventIDDifferentTenants(t *testing.T) {
	db := newDB()
	p := NewProcessor[*fakeTx](db, zerolog.Nop())

	for _, tenant := range []string{"t1", "t2"} {
		out, err := p.Process(context.Background(), Key{EventID: "e-1", TenantID: tenant}, "OrderCreated", bump)
		require.NoError(t, err)
		assert.Equal(t, Fresh, out)
	}
	assert.Equal(t, 2, db.applied)
}

func TestProcess_FailedEffectLeavesNoRecord(t *testing.T) {
	db := newDB()
	p := NewProcessor[*fakeTx](db, zerolog.Nop())
	key := Key{EventID: "e-1", TenantID: "t1"}
	boom := errors.New("boom")

	_, err := p.Process(context.Background(), key, "OrderCancelled", func(ctx context.Context, tx *fakeTx) error {
		tx.bumps++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Empty(t, db.records)
	assert.Zero(t, db.applied)

	out, err := p.Process(context.Background(), key, "OrderCancelled", bump)
	require.NoError(t, err)
	assert.Equal(t, Fresh, out)
	assert.Equal(t, 1, db.applied)
}

func TestProcess_ConcurrentDeliveriesApplyOnce(t *testing.T) {
	db := newDB()
	p := NewProcessor[*fakeTx](db, zerolog.Nop())
	key := Key{EventID: "e-1", TenantID: "t1"}

	var fresh atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := p.Process(context.Background(), key, "OrderCreated", bump)
			assert.NoError(t, err)
			if out == Fresh {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), fresh.Load())
	assert.Equal(t, 1, db.applied)
}

func TestProcess_RejectsEmptyKey(t *testing.T) {
	p := NewProcessor[*fakeTx](newDB(), zerolog.Nop())
	_, err := p.Process(context.Background(), Key{TenantID: "t1"}, "OrderCreated", bump)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestProcess_FastPath(t *testing.T) {
	db := newDB()
	fast := &fakeFast{seen: map[Key]bool{}}
	p := NewProcessor[*fakeTx](db, zerolog.Nop(), WithFastPath(fast))
	key := Key{EventID: "e-1", TenantID: "t1"}

	out, err := p.Process(context.Background(), key, "OrderCreated", bump)
	require.NoError(t, err)
	assert.Equal(t, Fresh, out)
	assert.Equal(t, 1, fast.marked)

	// cache hit short-circuits before the store is touched
	delete(db.records, key)
	out, err = p.Process(context.Background(), key, "OrderCreated", bump)
	require.NoError(t, err)
	assert.Equal(t, AlreadyProcessed, out)
	assert.Equal(t, 1, db.applied)
}

func TestProcess_FastPathErrorFallsBackToStore(t *testing.T) {
	db := newDB()
	fast := &fakeFast{seen: map[Key]bool{}, err: errors.New("redis down")}
	p := NewProcessor[*fakeTx](db, zerolog.Nop(), WithFastPath(fast))
	key := Key{EventID: "e-1", TenantID: "t1"}

	for i := 0; i < 2; i++ {
		_, err := p.Process(context.Background(), key, "OrderCreated", bump)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, db.applied)
}
