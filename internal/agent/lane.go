// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Modelsmith Contributors

package agent

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	mserr "github.com/modelsmith-dev/modelsmith/pkg/errors"
)

// workItem is a unit of work submitted to a Lane.
type workItem struct {
	fn     func(context.Context) error
	ctx    context.Context
	result chan<- error
	// onDone runs on the worker after fn returns or is skipped.
	onDone func()
}

// Lane serialises turns for a single session. Submitted work runs one item
// at a time in FIFO order on a background goroutine.
type Lane struct {
	sessionID string
	queue     chan workItem
	done      chan struct{}
	closing   chan struct{}

	once sync.Once

	// pending and releaseRequested are guarded by the owning LanePool's
	// mutex. pending counts submitted items that have not finished running,
	// including those whose caller has already given up waiting.
	pending          int
	releaseRequested bool
}

// NewLane creates a Lane and starts its worker. Call Close when done.
func NewLane(sessionID string) *Lane {
	l := &Lane{
		sessionID: sessionID,
		queue:     make(chan workItem, 64),
		done:      make(chan struct{}),
		closing:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		select {
		case w := <-l.queue:
			l.execute(w)
		case <-l.closing:
			for {
				select {
				case w := <-l.queue:
					l.execute(w)
				default:
					return
				}
			}
		}
	}
}

// execute runs a work item unless its context is already done.
func (l *Lane) execute(w workItem) {
	err := w.ctx.Err()
	if err == nil {
		err = l.call(w)
	}
	if w.onDone != nil {
		w.onDone()
	}
	w.result <- err
}

// call runs w.fn, turning a panic into an error.
func (l *Lane) call(w workItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("lane worker panic recovered",
				"session_id", l.sessionID,
				"panic", r,
				"stack", string(debug.Stack()))
			err = mserr.Errorf(mserr.CodeAgentLanePanic, "turn panicked: %v", r)
		}
	}()
	return w.fn(w.ctx)
}

// Submit enqueues fn and blocks until it has run. A context that is done
// before fn starts returns ctx.Err() without running fn. A context that is
// done while fn runs returns ctx.Err() at once; fn keeps the lane until it
// returns.
func (l *Lane) Submit(ctx context.Context, fn func(context.Context) error) error {
	return l.submit(ctx, fn, nil)
}

// submit is Submit with a completion hook. onDone runs exactly once: on the
// worker after fn has finished, or before submit returns when fn was never
// queued.
func (l *Lane) submit(ctx context.Context, fn func(context.Context) error, onDone func()) error {
	queued := false
	defer func() {
		if !queued && onDone != nil {
			onDone()
		}
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	closed := func() error {
		return mserr.New(mserr.CodeAgentLaneClosed, "lane is closed", mserr.FieldSessionID(l.sessionID))
	}
	select {
	case <-l.closing:
		return closed()
	default:
	}

	result := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closing:
		return closed()
	case l.queue <- workItem{fn: fn, ctx: ctx, result: result, onDone: onDone}:
		queued = true
	}

	// Close drains the queue, so a queued item always reports back.
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Close stops accepting work, finishes queued items and waits for the
// worker. It is idempotent.
func (l *Lane) Close() {
	l.once.Do(func() {
		close(l.closing)
		<-l.done
	})
}

// LanePool keys Lanes by session ID, creating them on first use.
type LanePool struct {
	mu    sync.Mutex
	lanes map[string]*Lane
}

func NewLanePool() *LanePool {
	return &LanePool{lanes: make(map[string]*Lane)}
}

// Get returns the Lane for sessionID, creating it if needed.
func (p *LanePool) Get(sessionID string) *Lane {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getLocked(sessionID)
}

func (p *LanePool) getLocked(sessionID string) *Lane {
	if l, ok := p.lanes[sessionID]; ok {
		return l
	}
	l := NewLane(sessionID)
	p.lanes[sessionID] = l
	return l
}

// Submit runs fn on the session's lane. The lane cannot be released while
// fn runs, even after ctx is done and Submit has returned, so a retried
// turn always queues behind an abandoned one.
func (p *LanePool) Submit(ctx context.Context, sessionID string, fn func(context.Context) error) error {
	p.mu.Lock()
	l := p.getLocked(sessionID)
	l.pending++
	p.mu.Unlock()

	return l.submit(ctx, fn, func() { p.finished(l) })
}

func (p *LanePool) finished(l *Lane) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l.pending--
	if l.pending == 0 && l.releaseRequested {
		p.dropLocked(l)
	}
}

// Release drops the lane of a finished session. With work still running
// the drop happens when the last item finishes. It never blocks, so it is
// safe to call from inside a turn.
func (p *LanePool) Release(sessionID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	l, ok := p.lanes[sessionID]
	if !ok {
		return
	}
	if l.pending > 0 {
		l.releaseRequested = true
		return
	}
	p.dropLocked(l)
}

func (p *LanePool) dropLocked(l *Lane) {
	if p.lanes[l.sessionID] == l {
		delete(p.lanes, l.sessionID)
	}
	go l.Close()
}

// Len returns the number of live lanes.
func (p *LanePool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.lanes)
}

// Close shuts down every lane.
func (p *LanePool) Close() {
	p.mu.Lock()
	lanes := p.lanes
	p.lanes = make(map[string]*Lane)
	p.mu.Unlock()

	for _, l := range lanes {
		l.Close()
	}
}
