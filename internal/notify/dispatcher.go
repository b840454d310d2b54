// Package notify deduplicates, rate-limits, and delivers confluence events
// to the downstream chat sink. Delivery is best-effort: a slow or dead sink
// costs notifications, never ingestion throughput.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

// Notification is one rendered confluence event bound for a destination.
type Notification struct {
	Event       domain.ConfluenceEvent
	Destination string
	Text        string
}

// Sender delivers a rendered notification. Implementations own transport
// concerns; the dispatcher owns retries, limits, and the breaker.
type Sender interface {
	Send(ctx context.Context, n Notification) error
}

// Config tunes the dispatcher.
type Config struct {
	// Cooldown suppresses repeat notifications for the same
	// (rule, token) key.
	Cooldown time.Duration

	// QueueSize bounds the pending queue; when full, the oldest pending
	// notification is dropped in favor of the newest.
	QueueSize int

	GlobalRPS    float64
	GlobalBurst  int
	PerDestRPS   float64
	PerDestBurst int

	// MaxRetries bounds delivery attempts per notification;
	// RetryBackoff is the initial delay, doubled per attempt.
	MaxRetries   int
	RetryBackoff time.Duration

	// Destination identifies the default sink target (chat id).
	Destination string
}

// Dispatcher applies suppression and rate limits in front of a Sender.
// Dispatch never blocks beyond enqueueing; a single worker drains the
// queue through a circuit breaker.
type Dispatcher struct {
	cfg     Config
	sender  Sender
	queue   chan Notification
	global  *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	metrics *metrics.Registry
	log     zerolog.Logger

	destMu sync.RWMutex
	dests  map[string]*rate.Limiter

	supMu    sync.Mutex
	lastSent map[string]time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher in front of the given sender.
func NewDispatcher(cfg Config, sender Sender, reg *metrics.Registry, logger zerolog.Logger) *Dispatcher {
	d := &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		queue:    make(chan Notification, cfg.QueueSize),
		global:   rate.NewLimiter(rate.Limit(cfg.GlobalRPS), cfg.GlobalBurst),
		dests:    make(map[string]*rate.Limiter),
		lastSent: make(map[string]time.Time),
		metrics:  reg,
		log:      logger.With().Str("component", "dispatcher").Logger(),
		now:      time.Now,
		sleep:    sleepCtx,
	}

	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "notify-sink",
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("sink breaker state change")
		},
	})

	return d
}

// Dispatch enqueues the events produced for one trigger, suppressing any
// whose (rule, token) key fired within the cooldown. When the queue is
// full the oldest pending notification is dropped: freshness over
// completeness.
func (d *Dispatcher) Dispatch(ctx context.Context, events []domain.ConfluenceEvent) {
	for _, ev := range events {
		key := suppressionKey(ev)
		if !d.admit(key) {
			d.metrics.NotifySuppressed.Inc()
			d.log.Debug().Str("key", key).Msg("notification suppressed by cooldown")
			continue
		}

		n := Notification{
			Event:       ev,
			Destination: d.cfg.Destination,
			Text:        FormatEvent(ev),
		}
		d.enqueue(n)
	}
}

// admit checks and stamps the suppression key atomically, pruning expired
// entries as a side effect.
func (d *Dispatcher) admit(key string) bool {
	d.supMu.Lock()
	defer d.supMu.Unlock()

	now := d.now()
	for k, t := range d.lastSent {
		if now.Sub(t) > d.cfg.Cooldown {
			delete(d.lastSent, k)
		}
	}

	if last, ok := d.lastSent[key]; ok && now.Sub(last) <= d.cfg.Cooldown {
		return false
	}
	d.lastSent[key] = now
	return true
}

func (d *Dispatcher) enqueue(n Notification) {
	for {
		select {
		case d.queue <- n:
			return
		default:
		}

		// Queue full: evict the oldest pending entry and retry.
		select {
		case old := <-d.queue:
			d.metrics.NotifyDropped.WithLabelValues("queue_full").Inc()
			d.log.Warn().
				Str("rule", string(old.Event.Rule)).
				Str("token", old.Event.Token).
				Msg("queue full, dropping oldest pending notification")
		default:
		}
	}
}

// Run drains the queue until ctx is cancelled. Call it from a dedicated
// goroutine.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-d.queue:
			d.deliver(ctx, n)
		}
	}
}

// deliver pushes one notification through the rate limiters and the
// breaker, retrying with exponential backoff up to the configured bound,
// then dropping.
func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	if err := d.global.Wait(ctx); err != nil {
		return
	}
	if err := d.destLimiter(n.Destination).Wait(ctx); err != nil {
		return
	}

	backoff := d.cfg.RetryBackoff
	for attempt := 0; attempt <= d.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := d.sleep(ctx, backoff); err != nil {
				return
			}
			backoff *= 2
		}

		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.sender.Send(ctx, n)
		})
		if err == nil {
			d.metrics.NotifySent.Inc()
			return
		}

		d.log.Warn().Err(err).
			Int("attempt", attempt+1).
			Str("token", n.Event.Token).
			Msg("notification delivery failed")
	}

	d.metrics.NotifyDropped.WithLabelValues("delivery_failed").Inc()
	d.log.Error().
		Str("rule", string(n.Event.Rule)).
		Str("token", n.Event.Token).
		Msg("dropping notification after repeated delivery failure")
}

// destLimiter returns or creates the limiter for a destination.
func (d *Dispatcher) destLimiter(dest string) *rate.Limiter {
	d.destMu.RLock()
	limiter, ok := d.dests[dest]
	d.destMu.RUnlock()
	if ok {
		return limiter
	}

	d.destMu.Lock()
	defer d.destMu.Unlock()
	if limiter, ok := d.dests[dest]; ok {
		return limiter
	}
	limiter = rate.NewLimiter(rate.Limit(d.cfg.PerDestRPS), d.cfg.PerDestBurst)
	d.dests[dest] = limiter
	return limiter
}

// Pending reports the current queue depth.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

func suppressionKey(ev domain.ConfluenceEvent) string {
	return fmt.Sprintf("%s|%s", ev.Rule, ev.Token)
}

func sleepCtx(ctx context.Context, dur time.Duration) error {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
