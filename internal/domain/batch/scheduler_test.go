package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/brandcraft/server/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	calls []*model.Task
	ids   []string

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
	block       chan struct{}
	fail        map[string]bool
}

func (d *recordingDispatcher) DispatchQueued(ctx context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error) {
	n := d.inFlight.Add(1)
	defer d.inFlight.Add(-1)
	for {
		cur := d.maxInFlight.Load()
		if n <= cur || d.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	if d.block != nil {
		<-d.block
	}
	if d.delay > 0 {
		time.Sleep(d.delay)
	}

	d.mu.Lock()
	d.calls = append(d.calls, task)
	d.ids = append(d.ids, dispatchID)
	d.mu.Unlock()

	if d.fail[dispatchID] {
		return nil, errors.New("provider down")
	}
	return &model.DispatchResult{DispatchID: dispatchID, Status: model.DispatchStatusDone}, nil
}

func (d *recordingDispatcher) Calls() []*model.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*model.Task(nil), d.calls...)
}

func lowTask(kind string) *model.Task {
	return &model.Task{
		CallerID:   "c1",
		Kind:       kind,
		BudgetTier: model.BudgetTierLow,
		Priority:   model.PriorityLow,
	}
}

func TestScheduler_Enqueue(t *testing.T) {
	t.Run("rejects non-low priority", func(t *testing.T) {
		s := NewScheduler(&recordingDispatcher{}, nil, zap.NewNop())
		task := lowTask("post")
		task.Priority = model.PriorityNormal

		_, err := s.Enqueue("d1", task)
		assert.ErrorIs(t, err, ErrNotLowPriority)
		assert.Equal(t, 0, s.Len())
	})

	t.Run("reports position", func(t *testing.T) {
		s := NewScheduler(&recordingDispatcher{}, nil, zap.NewNop())

		ack, err := s.Enqueue("d1", lowTask("post"))
		require.NoError(t, err)
		assert.Equal(t, "d1", ack.DispatchID)
		assert.Equal(t, 1, ack.Position)

		ack, err = s.Enqueue("d2", lowTask("post"))
		require.NoError(t, err)
		assert.Equal(t, 2, ack.Position)
	})

	t.Run("queue full", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxQueue = 2
		s := NewScheduler(&recordingDispatcher{}, cfg, zap.NewNop())

		_, err := s.Enqueue("d1", lowTask("a"))
		require.NoError(t, err)
		_, err = s.Enqueue("d2", lowTask("b"))
		require.NoError(t, err)
		_, err = s.Enqueue("d3", lowTask("c"))
		assert.ErrorIs(t, err, ErrQueueFull)
	})

	t.Run("depth observer", func(t *testing.T) {
		var depth atomic.Int32
		s := NewScheduler(&recordingDispatcher{}, nil, zap.NewNop(), WithDepthObserver(func(d int) {
			depth.Store(int32(d))
		}))

		_, _ = s.Enqueue("d1", lowTask("a"))
		_, _ = s.Enqueue("d2", lowTask("b"))
		assert.Equal(t, int32(2), depth.Load())

		s.Drain(context.Background())
		assert.Equal(t, int32(0), depth.Load())
	})
}

func TestScheduler_DispatcherFunc(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]model.Priority{}
	d := DispatcherFunc(func(_ context.Context, dispatchID string, task *model.Task) (*model.DispatchResult, error) {
		mu.Lock()
		seen[dispatchID] = task.Priority
		mu.Unlock()
		if dispatchID == "d2" {
			return nil, errors.New("upstream down")
		}
		return &model.DispatchResult{DispatchID: dispatchID}, nil
	})
	s := NewScheduler(d, nil, zap.NewNop())

	for _, id := range []string{"d1", "d2", "d3"} {
		_, err := s.Enqueue(id, lowTask("post"))
		require.NoError(t, err)
	}
	report := s.Drain(context.Background())

	assert.Equal(t, 3, report.Drained)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, map[string]model.Priority{
		"d1": model.PriorityNormal,
		"d2": model.PriorityNormal,
		"d3": model.PriorityNormal,
	}, seen)
}

func TestScheduler_Threshold(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(d, nil, zap.NewNop())

	for i := 0; i < 4; i++ {
		_, err := s.Enqueue(fmt.Sprintf("d%d", i), lowTask(fmt.Sprintf("k%d", i)))
		require.NoError(t, err)
		assert.False(t, s.ShouldDrain(), "no drain before the threshold")
	}
	assert.Empty(t, d.Calls())

	_, err := s.Enqueue("d4", lowTask("k4"))
	require.NoError(t, err)
	require.True(t, s.ShouldDrain())

	report := s.Drain(context.Background())
	assert.Equal(t, 5, report.Drained)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, s.Len())

	calls := d.Calls()
	require.Len(t, calls, 5)
	for _, task := range calls {
		assert.Equal(t, model.PriorityNormal, task.Priority)
	}
}

func TestScheduler_DrainDoesNotMutateQueuedTask(t *testing.T) {
	d := &recordingDispatcher{}
	s := NewScheduler(d, nil, zap.NewNop())
	task := lowTask("post")

	_, err := s.Enqueue("d1", task)
	require.NoError(t, err)
	s.Drain(context.Background())

	assert.Equal(t, model.PriorityLow, task.Priority)
}

func TestScheduler_ConcurrencyBound(t *testing.T) {
	d := &recordingDispatcher{delay: 10 * time.Millisecond}
	cfg := DefaultConfig()
	cfg.MaxQueue = 100
	s := NewScheduler(d, cfg, zap.NewNop())

	for i := 0; i < 10; i++ {
		_, err := s.Enqueue(fmt.Sprintf("d%d", i), lowTask("post"))
		require.NoError(t, err)
	}

	report := s.Drain(context.Background())
	assert.Equal(t, 10, report.Drained)
	assert.LessOrEqual(t, d.maxInFlight.Load(), int32(3))
	assert.Len(t, d.Calls(), 10)
}

func TestScheduler_FailuresAreIsolated(t *testing.T) {
	d := &recordingDispatcher{fail: map[string]bool{"d1": true}}
	s := NewScheduler(d, nil, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := s.Enqueue(fmt.Sprintf("d%d", i), lowTask("post"))
		require.NoError(t, err)
	}

	report := s.Drain(context.Background())
	assert.Equal(t, 3, report.Drained)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, d.Calls(), 3)
}

func TestScheduler_EnqueueDuringDrain(t *testing.T) {
	d := &recordingDispatcher{block: make(chan struct{})}
	s := NewScheduler(d, nil, zap.NewNop())

	_, err := s.Enqueue("d1", lowTask("a"))
	require.NoError(t, err)

	done := make(chan DrainReport)
	go func() {
		done <- s.Drain(context.Background())
	}()

	require.Eventually(t, func() bool { return d.inFlight.Load() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, s.Len(), "queue is swapped out before dispatching")

	_, err = s.Enqueue("d2", lowTask("b"))
	require.NoError(t, err)

	close(d.block)
	report := <-done
	assert.Equal(t, 1, report.Drained)
	assert.Equal(t, 1, s.Len(), "item enqueued during a drain waits for the next one")
}

func TestScheduler_PeriodicFlush(t *testing.T) {
	d := &recordingDispatcher{}
	cfg := DefaultConfig()
	cfg.FlushInterval = 5 * time.Millisecond
	s := NewScheduler(d, cfg, zap.NewNop())
	s.Start()
	defer s.Stop(context.Background())

	_, err := s.Enqueue("d1", lowTask("a"))
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return len(d.Calls()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_StopFlushes(t *testing.T) {
	d := &recordingDispatcher{}
	cfg := DefaultConfig()
	cfg.FlushInterval = time.Hour
	s := NewScheduler(d, cfg, zap.NewNop())
	s.Start()

	_, err := s.Enqueue("d1", lowTask("a"))
	require.NoError(t, err)
	s.DrainAsync()
	_, err = s.Enqueue("d2", lowTask("b"))
	require.NoError(t, err)

	s.Stop(context.Background())
	assert.Len(t, d.Calls(), 2)

	_, err = s.Enqueue("d3", lowTask("c"))
	assert.ErrorIs(t, err, ErrStopped)
}
