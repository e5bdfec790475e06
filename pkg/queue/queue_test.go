package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBoundedInvalidCapacity(t *testing.T) {
	for _, capacity := range []int{0, -1} {
		_, err := NewBounded[int](capacity)
		assert.Error(t, err)
	}
}

func TestFIFOOrder(t *testing.T) {
	ctx := context.Background()
	q, err := NewBounded[int](5)
	require.NoError(t, err)

	for i := 1; i <= 5; i++ {
		require.NoError(t, q.Put(ctx, i))
	}

	for i := 1; i <= 5; i++ {
		got, err := q.Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, got, "items must come out in admission order")
	}
}

func TestPutBlocksWhenFull(t *testing.T) {
	ctx := context.Background()
	q, err := NewBounded[int](2)
	require.NoError(t, err)

	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Put(ctx, 2))

	unblocked := make(chan error, 1)
	go func() {
		unblocked <- q.Put(ctx, 3)
	}()

	select {
	case <-unblocked:
		t.Fatal("Put on a full queue should block")
	case <-time.After(50 * time.Millisecond):
	}

	// Freeing one slot lets the blocked Put complete.
	_, err = q.Get(ctx)
	require.NoError(t, err)

	select {
	case err := <-unblocked:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Put should complete once a slot frees up")
	}
}

func TestDrainUnblocksWhenOutstandingReachesZero(t *testing.T) {
	ctx := context.Background()
	q, err := NewBounded[int](5)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Put(ctx, i))
	}
	for i := 0; i < 5; i++ {
		_, err := q.Get(ctx)
		require.NoError(t, err)
	}

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Done())
	}

	drained := make(chan error, 1)
	go func() {
		drained <- q.Drain(ctx)
	}()

	select {
	case <-drained:
		t.Fatal("Drain should still block with one item outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.Done())

	select {
	case err := <-drained:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Drain should unblock after the last Done")
	}
}

func TestDrainReturnsImmediatelyWhenIdle(t *testing.T) {
	q, err := NewBounded[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, q.Drain(ctx))
}

func TestDoneWithoutAdmissionIsProtocolError(t *testing.T) {
	ctx := context.Background()
	q, err := NewBounded[int](1)
	require.NoError(t, err)

	assert.ErrorIs(t, q.Done(), ErrProtocol)

	require.NoError(t, q.Put(ctx, 1))
	require.NoError(t, q.Done())
	assert.ErrorIs(t, q.Done(), ErrProtocol)
}

func TestPutCancelledWhileBlocked(t *testing.T) {
	q, err := NewBounded[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- q.Put(ctx, 2)
	}()

	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Put should return")
	}

	// The cancelled Put must not leave a phantom outstanding reservation.
	assert.Equal(t, 1, q.Outstanding())
}

func TestGetCancelledWhileBlocked(t *testing.T) {
	q, err := NewBounded[int](1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := q.Get(ctx)
		errc <- err
	}()

	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Get should return")
	}
}

func TestDrainCancelledWhileBlocked(t *testing.T) {
	q, err := NewBounded[int](1)
	require.NoError(t, err)
	require.NoError(t, q.Put(context.Background(), 1))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		errc <- q.Drain(ctx)
	}()

	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("cancelled Drain should return")
	}
}

func TestGaugesAggregateAcrossLiveQueues(t *testing.T) {
	ctx := context.Background()
	depthBase := promtestutil.ToFloat64(queueDepth)
	outstandingBase := promtestutil.ToFloat64(queueOutstanding)

	q1, err := NewBounded[int](2)
	require.NoError(t, err)
	q2, err := NewBounded[int](2)
	require.NoError(t, err)

	// One buffered item in each queue: the shared gauges must carry the
	// sum, not the last writer's local count.
	require.NoError(t, q1.Put(ctx, 1))
	require.NoError(t, q2.Put(ctx, 2))
	assert.Equal(t, depthBase+2, promtestutil.ToFloat64(queueDepth))
	assert.Equal(t, outstandingBase+2, promtestutil.ToFloat64(queueOutstanding))

	_, err = q1.Get(ctx)
	require.NoError(t, err)
	_, err = q2.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, depthBase, promtestutil.ToFloat64(queueDepth))

	require.NoError(t, q1.Done())
	require.NoError(t, q2.Done())
	assert.Equal(t, outstandingBase, promtestutil.ToFloat64(queueOutstanding))
}

func TestConcurrentGetsReceiveDistinctItems(t *testing.T) {
	ctx := context.Background()
	const total = 50

	q, err := NewBounded[int](total)
	require.NoError(t, err)
	for i := 0; i < total; i++ {
		require.NoError(t, q.Put(ctx, i))
	}

	var mu sync.Mutex
	seen := make(map[int]int)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				getCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
				item, err := q.Get(getCtx)
				cancel()
				if err != nil {
					return
				}
				mu.Lock()
				seen[item]++
				mu.Unlock()
				require.NoError(t, q.Done())
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, total)
	for item, count := range seen {
		assert.Equal(t, 1, count, "item %d delivered more than once", item)
	}
}
