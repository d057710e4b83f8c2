// Package publisher emits audit events to an audit.Store.
//
// In sync mode Emit blocks until the store accepted the event; use it inside
// transactions so the outbox row commits with the state change. Async mode
// buffers events on a channel drained by a single goroutine and is meant for
// operational events only.
package publisher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	audit "esfe/pkg/platform/audit"
	"esfe/pkg/requestcontext"
)

type Publisher struct {
	store  audit.Store
	logger *slog.Logger

	buffer int
	inbox  chan queued
	wg     sync.WaitGroup
	once   sync.Once
}

type queued struct {
	ctx   context.Context
	event audit.Event
}

type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to async mode with the given buffer.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		p.buffer = size
	}
}

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.buffer > 0 {
		p.inbox = make(chan queued, p.buffer)
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit fills in timestamp, category and request id, then stores the event.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}
	p.inbox <- queued{ctx: context.WithoutCancel(ctx), event: event}
	return nil
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for q := range p.inbox {
		if err := p.store.Append(q.ctx, q.event); err != nil && p.logger != nil {
			p.logger.ErrorContext(q.ctx, "audit append failed",
				"action", q.event.Action,
				"enrollment_id", q.event.EnrollmentID,
				"error", err,
			)
		}
	}
}

// Close drains buffered events. Emit must not be called after Close.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}

// defaultFlushTimeout bounds how long shutdown waits for async drains.
const defaultFlushTimeout = 5 * time.Second

// CloseWithTimeout drains like Close but gives up after the timeout.
func (p *Publisher) CloseWithTimeout(timeout time.Duration) bool {
	if timeout <= 0 {
		timeout = defaultFlushTimeout
	}
	done := make(chan struct{})
	go func() {
		p.Close()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}
