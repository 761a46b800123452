package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Handler processes one object-created notification.
type Handler func(ctx context.Context, key string) error

// Subscription binds a handler to the subset of keys it cares about.
type Subscription struct {
	// Name identifies the subscriber in logs.
	Name string
	// Match reports whether the subscriber wants the key.
	Match func(key string) bool
	// Handle is invoked for each matching key.
	Handle Handler
}

type delivery struct {
	sub *Subscription
	key string
}

// Dispatcher fans object-created keys out to matching subscribers from a
// pool of worker goroutines. A failing handler is retried with exponential
// backoff before the event is dropped with an error log.
type Dispatcher struct {
	logger      *slog.Logger
	subs        []Subscription
	workers     int
	maxAttempts int
	retryDelay  time.Duration

	queue  chan delivery
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher with the given worker pool size.
func NewDispatcher(logger *slog.Logger, workers, queueSize, maxAttempts int, retryDelay time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		logger:      logger,
		workers:     workers,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		queue:       make(chan delivery, queueSize),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a subscription. Must be called before Start.
func (d *Dispatcher) Subscribe(sub Subscription) {
	d.subs = append(d.subs, sub)
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	d.logger.Info("event dispatcher started",
		slog.Int("workers", d.workers),
		slog.Int("subscribers", len(d.subs)))
}

// Stop cancels in-flight deliveries and waits for the workers to exit.
func (d *Dispatcher) Stop() {
	d.cancel()
	d.wg.Wait()
}

// Emit queues the key for every matching subscriber. Emit never blocks the
// caller beyond queue capacity; after Stop it is a no-op.
func (d *Dispatcher) Emit(key string) {
	for i := range d.subs {
		sub := &d.subs[i]
		if !sub.Match(key) {
			continue
		}
		select {
		case d.queue <- delivery{sub: sub, key: key}:
		case <-d.ctx.Done():
			return
		}
	}
}

// NotifyFunc adapts Emit for storage decorators.
func (d *Dispatcher) NotifyFunc() func(key string) {
	return d.Emit
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case del := <-d.queue:
			d.deliver(del)
		}
	}
}

func (d *Dispatcher) deliver(del delivery) {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		if err := del.sub.Handle(d.ctx, del.key); err == nil {
			return
		} else {
			lastErr = err
		}

		if attempt == d.maxAttempts {
			break
		}

		backoff := d.retryDelay * time.Duration(1<<(attempt-1))
		d.logger.Warn("event delivery failed, retrying",
			slog.String("subscriber", del.sub.Name),
			slog.String("key", del.key),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", backoff),
			slog.String("error", lastErr.Error()))

		select {
		case <-d.ctx.Done():
			return
		case <-time.After(backoff):
		}
	}

	d.logger.Error("event dropped after max attempts",
		slog.String("subscriber", del.sub.Name),
		slog.String("key", del.key),
		slog.Int("attempts", d.maxAttempts),
		slog.String("error", lastErr.Error()))
}
