package audit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"cisline/internal/domain"
)

// Sink persists one event.
type Sink interface {
	Write(ctx context.Context, e domain.Event) error
}

type OutboxOptions struct {
	// Buffer is the queue capacity. Intents beyond it are dropped and logged.
	Buffer int
	// MaxTries bounds write attempts per intent.
	MaxTries uint
	// InitialInterval and MaxInterval shape the exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// WriteTimeout caps a single attempt.
	WriteTimeout time.Duration
	Logger       zerolog.Logger
	Registerer   prometheus.Registerer
}

func (o OutboxOptions) withDefaults() OutboxOptions {
	if o.Buffer <= 0 {
		o.Buffer = 1024
	}
	if o.MaxTries == 0 {
		o.MaxTries = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = 50 * time.Millisecond
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 2 * time.Second
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 5 * time.Second
	}
	return o
}

type outboxMetrics struct {
	written prometheus.Counter
	failed  prometheus.Counter
	dropped prometheus.Counter
	retries prometheus.Counter
}

func newOutboxMetrics(reg prometheus.Registerer) outboxMetrics {
	m := outboxMetrics{
		written: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cisline", Subsystem: "audit", Name: "events_written_total",
			Help: "Audit events persisted by the outbox.",
		}),
		failed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cisline", Subsystem: "audit", Name: "events_failed_total",
			Help: "Audit events abandoned after exhausting retries.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cisline", Subsystem: "audit", Name: "events_dropped_total",
			Help: "Audit events dropped because the outbox was full or closed.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cisline", Subsystem: "audit", Name: "write_retries_total",
			Help: "Audit event write attempts that were retried.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.written, m.failed, m.dropped, m.retries} {
			if err := reg.Register(c); err != nil {
				var are prometheus.AlreadyRegisteredError
				if !errors.As(err, &are) {
					panic(err)
				}
			}
		}
	}
	return m
}

// Outbox queues audit intents and drains them on a single worker goroutine.
// Write failures are retried with exponential backoff, then logged and
// counted. Callers never see them.
type Outbox struct {
	sink    Sink
	opts    OutboxOptions
	log     zerolog.Logger
	metrics outboxMetrics

	queue chan queued
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	pending int
	waiters []chan struct{}
}

func NewOutbox(sink Sink, opts OutboxOptions) *Outbox {
	opts = opts.withDefaults()
	o := &Outbox{
		sink:    sink,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "audit_outbox").Logger(),
		metrics: newOutboxMetrics(opts.Registerer),
		queue:   make(chan queued, opts.Buffer),
		done:    make(chan struct{}),
	}
	go o.run()
	return o
}

// queued is one intent plus the batch it was enqueued with.
type queued struct {
	intent Intent
	batch  *batch
}

// batch closes done once each of its intents is written, given up on or
// dropped. left is guarded by Outbox.mu.
type batch struct {
	left int
	done chan struct{}
}

// Enqueue hands intents to the worker without blocking. The returned channel
// closes once all of them have been written or given up on; callers may wait
// on it but never have to.
func (o *Outbox) Enqueue(intents ...Intent) <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := &batch{done: make(chan struct{})}
	for _, in := range intents {
		if o.closed {
			o.drop(in, "closed")
			continue
		}
		select {
		case o.queue <- queued{intent: in, batch: b}:
			o.pending++
			b.left++
		default:
			o.drop(in, "full")
		}
	}
	if b.left == 0 {
		close(b.done)
	}
	return b.done
}

func (o *Outbox) drop(in Intent, reason string) {
	o.metrics.dropped.Inc()
	o.log.Warn().Str("intent_id", in.ID).Str("reason", reason).Str("message", in.Change.Message).Msg("audit intent dropped")
}

// Flush waits until every intent enqueued so far has been written or given up on.
func (o *Outbox) Flush(ctx context.Context) error {
	o.mu.Lock()
	if o.pending == 0 {
		o.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	o.waiters = append(o.waiters, ch)
	o.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting intents, drains the queue and stops the worker.
func (o *Outbox) Close(ctx context.Context) error {
	o.mu.Lock()
	if !o.closed {
		o.closed = true
		close(o.queue)
	}
	o.mu.Unlock()
	select {
	case <-o.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) run() {
	defer close(o.done)
	for q := range o.queue {
		o.write(q.intent)
		o.settle(q.batch)
	}
}

func (o *Outbox) settle(b *batch) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if b.left--; b.left == 0 {
		close(b.done)
	}
	o.pending--
	if o.pending > 0 {
		return
	}
	for _, ch := range o.waiters {
		close(ch)
	}
	o.waiters = nil
}

func (o *Outbox) write(in Intent) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.opts.InitialInterval
	b.MaxInterval = o.opts.MaxInterval
	attempt := 0
	_, err := backoff.Retry(context.Background(), func() (struct{}, error) {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), o.opts.WriteTimeout)
		defer cancel()
		err := o.sink.Write(ctx, in.Event())
		if err != nil && errors.Is(err, errPermanent) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(o.opts.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			o.metrics.retries.Inc()
			o.log.Debug().Err(err).Str("intent_id", in.ID).Dur("retry_in", next).Msg("audit write retry")
		}),
	)
	if err != nil {
		o.metrics.failed.Inc()
		o.log.Error().Err(err).Str("intent_id", in.ID).Int("attempts", attempt).Str("message", in.Change.Message).Msg("audit event lost")
		return
	}
	o.metrics.written.Inc()
}

var errPermanent = errors.New("permanent audit failure")

// Permanent marks a sink error as not worth retrying.
func Permanent(err error) error {
	return errors.Join(errPermanent, err)
}
