package core

import (
	"context"
	"sync"

	"pkt.systems/pslog"
	"pkt.systems/streamfx/schema"
)

// Op is a UI command applied on the queue goroutine. It should return quickly.
type Op func(ctx context.Context) error

type queuedOp struct {
	op     Op
	name   string
	result chan error
}

// CommandQueue serializes UI commands (toggle, shutdown) onto one goroutine,
// standing in for a single UI thread.
type CommandQueue struct {
	ch     chan queuedOp
	ctx    context.Context
	cancel context.CancelFunc
	log    pslog.Logger
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewCommandQueue starts the queue goroutine. Ops run with a context derived
// from ctx that is canceled once the queue is closed and drained.
func NewCommandQueue(ctx context.Context, buffer int) *CommandQueue {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = 16
	}
	qctx, cancel := context.WithCancel(ctx)
	q := &CommandQueue{
		ch:     make(chan queuedOp, buffer),
		ctx:    qctx,
		cancel: cancel,
		log:    pslog.Ctx(ctx),
	}
	q.wg.Add(1)
	go q.loop()
	return q
}

func (q *CommandQueue) loop() {
	defer q.wg.Done()
	for cmd := range q.ch {
		err := cmd.op(q.ctx)
		if err != nil {
			q.log.Warn("command failed", "command", cmd.name, "err", err)
		}
		if cmd.result != nil {
			cmd.result <- err
		}
	}
}

// Enqueue schedules op without waiting for it to run.
func (q *CommandQueue) Enqueue(name string, op Op) error {
	_, err := q.push(name, op, false)
	return err
}

// Submit schedules op and waits for its result or ctx.
func (q *CommandQueue) Submit(ctx context.Context, name string, op Op) error {
	result, err := q.push(name, op, true)
	if err != nil || result == nil {
		return err
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *CommandQueue) push(name string, op Op, wait bool) (chan error, error) {
	if op == nil {
		return nil, nil
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, schema.ErrQueueClosed
	}
	cmd := queuedOp{op: op, name: name}
	if wait {
		cmd.result = make(chan error, 1)
	}
	select {
	case q.ch <- cmd:
		return cmd.result, nil
	default:
		return nil, schema.ErrQueueFull
	}
}

// Close stops accepting commands, runs everything already queued, and waits
// for the queue goroutine to exit. Safe to call multiple times.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()
	q.wg.Wait()
	q.cancel()
}
