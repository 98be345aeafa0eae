package paymentsrepo

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCreateEnforcesUniqueTransactionCode(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	rec, err := m.Create(ctx, &Record{TransactionCode: "T1", Provider: "kashier", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.NotZero(t, rec.ID)

	_, err = m.Create(ctx, &Record{TransactionCode: "T1", Provider: "kashier", Amount: 10})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestMemoryConcurrentCreateInsertsOnce(t *testing.T) {
	m := NewMemory()
	var (
		wg      sync.WaitGroup
		created atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create(context.Background(), &Record{TransactionCode: "RACE"}); err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), created.Load())
}

func TestMemoryMarkPaidIsIdempotent(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, err := m.Create(ctx, &Record{TransactionCode: "T1"})
	require.NoError(t, err)

	moved, err := m.MarkPaid(ctx, "T1")
	require.NoError(t, err)
	assert.True(t, moved)

	moved, err = m.MarkPaid(ctx, "T1")
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = m.MarkPaid(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPaidIsTerminal(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	_, _ = m.Create(ctx, &Record{TransactionCode: "T1"})
	_, _ = m.MarkPaid(ctx, "T1")

	assert.ErrorIs(t, m.SetStatus(ctx, "T1", StatusFailed), ErrNotFound)
	rec, err := m.GetByTransactionCode(ctx, "T1")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, rec.Status)
}

func TestMemoryListFiltersAndPaginates(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	for _, code := range []string{"A", "B", "C"} {
		_, _ = m.Create(ctx, &Record{TransactionCode: code})
	}
	_, _ = m.MarkPaid(ctx, "B")

	paid, total, err := m.List(ctx, StatusPaid, nil, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, paid, 1)
	assert.Equal(t, "B", paid[0].TransactionCode)

	all, total, err := m.List(ctx, "", nil, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, all, 2)
	assert.Equal(t, "C", all[0].TransactionCode)

	rest, _, _ := m.List(ctx, "", nil, 2, 2)
	require.Len(t, rest, 1)
	assert.Equal(t, "A", rest[0].TransactionCode)
}

func TestMemoryFailures(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	require.NoError(t, m.InsertFailure(ctx, &FailureLog{TransactionCode: "T1", Provider: "tap", Stage: "pay", Message: "x"}))
	require.NoError(t, m.InsertFailure(ctx, &FailureLog{TransactionCode: "T2", Provider: "tap", Stage: "verify", Message: "y"}))

	logs, total, err := m.ListFailures(ctx, "T2", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "y", logs[0].Message)

	logs, total, _ = m.ListFailures(ctx, "", 10, 0)
	assert.Equal(t, 2, total)
	assert.Equal(t, "T2", logs[0].TransactionCode)
}
