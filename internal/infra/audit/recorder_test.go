package audit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brandcraft/server/internal/adapter/outbound/memory"
	"github.com/brandcraft/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type blockingStore struct {
	release chan struct{}
	count   atomic.Int32
}

func (s *blockingStore) Append(ctx context.Context, _ *model.CostRecord) error {
	<-s.release
	s.count.Add(1)
	return nil
}

type failingStore struct{}

func (failingStore) Append(context.Context, *model.CostRecord) error {
	return errors.New("database unavailable")
}

func record(id string) *model.CostRecord {
	return &model.CostRecord{DispatchID: id, CallerID: "c1", Kind: model.CostKindDirect, AmountCredits: 1}
}

func TestRecorder_FlushOnClose(t *testing.T) {
	store := memory.NewAuditStore()
	r := NewRecorder(store, zap.NewNop(), 100)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Append(context.Background(), record(fmt.Sprintf("d%d", i))))
	}
	r.Close()

	assert.Len(t, store.Records(), 10)
}

func TestRecorder_AppendCopiesRecord(t *testing.T) {
	store := memory.NewAuditStore()
	r := NewRecorder(store, zap.NewNop(), 10)

	rec := record("d1")
	require.NoError(t, r.Append(context.Background(), rec))
	rec.DispatchID = "mutated"
	r.Close()

	require.Len(t, store.Records(), 1)
	assert.Equal(t, "d1", store.Records()[0].DispatchID)
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	store := &blockingStore{release: make(chan struct{})}
	var dropped atomic.Int32
	r := NewRecorder(store, zap.NewNop(), 1, WithDropHook(func() { dropped.Add(1) }))

	// The writer holds the first record, the buffer holds the second.
	require.NoError(t, r.Append(context.Background(), record("d1")))
	require.Eventually(t, func() bool { return len(r.buffer) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, r.Append(context.Background(), record("d2")))

	err := r.Append(context.Background(), record("d3"))
	assert.NoError(t, err, "appending never fails")
	assert.Equal(t, int32(1), dropped.Load())

	close(store.release)
	r.Close()
	assert.Equal(t, int32(2), store.count.Load())
}

func TestRecorder_StoreErrorsAreLogged(t *testing.T) {
	r := NewRecorder(failingStore{}, zap.NewNop(), 10, WithWriteTimeout(time.Second))
	require.NoError(t, r.Append(context.Background(), record("d1")))
	assert.NotPanics(t, r.Close)
	assert.NotPanics(t, r.Close)
}
