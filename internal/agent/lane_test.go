// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package agent_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/modelsmith-dev/modelsmith/internal/agent"
	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

func TestLane_SerializesTurns(t *testing.T) {
	lane := agent.NewLane("s1")
	defer lane.Close()

	var mu sync.Mutex
	var order []int

	// Staggered submission makes the queue order deterministic.
	var wg sync.WaitGroup
	for i := range 3 {
		time.Sleep(5 * time.Millisecond)
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lane.Submit(context.Background(), func(_ context.Context) error {
				time.Sleep(10 * time.Millisecond)
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestLane_ReturnsTurnError(t *testing.T) {
	lane := agent.NewLane("s1")
	defer lane.Close()

	want := errors.New("boom")
	err := lane.Submit(context.Background(), func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestLane_PanicBecomesError(t *testing.T) {
	lane := agent.NewLane("s1")
	defer lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error { panic("kaboom") })
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeAgentLanePanic))
	assert.Contains(t, err.Error(), "kaboom")

	// The worker survives the panic.
	assert.NoError(t, lane.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestLane_CancelledContextSkipsWork(t *testing.T) {
	lane := agent.NewLane("s1")
	defer lane.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	err := lane.Submit(ctx, func(context.Context) error {
		ran = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestLane_SubmitAfterClose(t *testing.T) {
	lane := agent.NewLane("s1")
	lane.Close()
	lane.Close()

	err := lane.Submit(context.Background(), func(context.Context) error { return nil })
	require.Error(t, err)
	assert.True(t, mserr.HasCode(err, mserr.CodeAgentLaneClosed))
}

func TestLanePool_SessionsRunConcurrently(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	var peak, running atomic.Int32
	var wg sync.WaitGroup
	for _, id := range []string{"s1", "s2", "s3"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pool.Submit(context.Background(), id, func(context.Context) error {
				cur := running.Add(1)
				for {
					old := peak.Load()
					if cur <= old || peak.CompareAndSwap(old, cur) {
						break
					}
				}
				time.Sleep(50 * time.Millisecond)
				running.Add(-1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Greater(t, peak.Load(), int32(1))
	assert.Equal(t, 3, pool.Len())
}

func TestLanePool_SameSessionIsSerialized(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	var running, overlaps atomic.Int32
	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = pool.Submit(context.Background(), "s1", func(context.Context) error {
				if running.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load())
	assert.Equal(t, 1, pool.Len())
}

func TestLanePool_GetReturnsSameLane(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	assert.Same(t, pool.Get("s1"), pool.Get("s1"))
	assert.NotSame(t, pool.Get("s1"), pool.Get("s2"))
}

func TestLanePool_ReleaseFromInsideTurn(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	err := pool.Submit(context.Background(), "s1", func(context.Context) error {
		// Running work keeps the lane; the release lands when it returns.
		pool.Release("s1")
		assert.Equal(t, 1, pool.Len())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 0, pool.Len())

	// A released session gets a fresh lane on its next turn.
	require.NoError(t, pool.Submit(context.Background(), "s1", func(context.Context) error { return nil }))
	assert.Equal(t, 1, pool.Len())
}

func TestLanePool_ReleaseUnknownIsNoop(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	pool.Release("missing")
	assert.Equal(t, 0, pool.Len())
}

func TestLanePool_AbandonedTurnKeepsLane(t *testing.T) {
	pool := agent.NewLanePool()
	defer pool.Close()

	var running, peak atomic.Int32
	turn := func(context.Context) error {
		cur := running.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		// Hosting calls do not all honour cancellation.
		time.Sleep(200 * time.Millisecond)
		running.Add(-1)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.Submit(ctx, "s1", turn)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The caller gave up; the first turn is still running.
	pool.Release("s1")
	assert.Equal(t, 1, pool.Len())

	require.NoError(t, pool.Submit(context.Background(), "s1", turn))
	assert.Equal(t, int32(1), peak.Load())

	pool.Release("s1")
	assert.Equal(t, 0, pool.Len())
}

func TestLane_CancelWhileRunningStillSerializes(t *testing.T) {
	lane := agent.NewLane("s1")
	defer lane.Close()

	started := make(chan struct{})
	var firstDone atomic.Bool
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-started
		cancel()
	}()
	err := lane.Submit(ctx, func(context.Context) error {
		close(started)
		time.Sleep(50 * time.Millisecond)
		firstDone.Store(true)
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)

	require.NoError(t, lane.Submit(context.Background(), func(context.Context) error {
		assert.True(t, firstDone.Load())
		return nil
	}))
}
