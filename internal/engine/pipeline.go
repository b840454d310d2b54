package engine

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/ingest"
	"github.com/alphawatch/alphawatch/internal/metrics"
	"github.com/alphawatch/alphawatch/internal/store"
)

// SnapshotSource supplies the current tracked-set snapshot. The pipeline
// reads it exactly once per webhook so concurrent roster refreshes never
// change classifications mid-flight.
type SnapshotSource interface {
	Snapshot() *domain.TrackedSet
}

// Notifier receives the events produced for one trigger. Implementations
// must not block the caller beyond enqueueing.
type Notifier interface {
	Dispatch(ctx context.Context, events []domain.ConfluenceEvent)
}

// Pipeline is the per-event ingestion path: normalize, append, read back
// the window, evaluate the rules on the fresh snapshot, dispatch. Any
// store failure degrades to an empty window; nothing on this path is fatal.
type Pipeline struct {
	normalizer *ingest.Normalizer
	windows    store.WindowStore
	roster     SnapshotSource
	notifier   Notifier
	params     Params
	metrics    *metrics.Registry
	log        zerolog.Logger
}

// NewPipeline wires the ingestion path together.
func NewPipeline(
	normalizer *ingest.Normalizer,
	windows store.WindowStore,
	roster SnapshotSource,
	notifier Notifier,
	params Params,
	reg *metrics.Registry,
	logger zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		windows:    windows,
		roster:     roster,
		notifier:   notifier,
		params:     params,
		metrics:    reg,
		log:        logger.With().Str("component", "pipeline").Logger(),
	}
}

// HandleWebhook processes one raw webhook body and returns how many records
// were accepted. Decode failures are logged and reported as zero accepted;
// the transport always answers the provider with success so deliveries are
// not retried into a poison loop.
func (p *Pipeline) HandleWebhook(ctx context.Context, payload []byte) int {
	snapshot := p.roster.Snapshot()

	records, err := p.normalizer.Normalize(payload, snapshot)
	if err != nil {
		p.metrics.IngestEvents.WithLabelValues("dropped_invalid").Inc()
		p.log.Warn().Err(err).Msg("undecodable webhook payload")
		return 0
	}

	for _, rec := range records {
		p.Ingest(ctx, rec)
	}
	return len(records)
}

// Ingest runs one canonical record through append, evaluation, and
// dispatch. The record is appended before the window is read so the rules
// see their own trigger as part of the window.
func (p *Pipeline) Ingest(ctx context.Context, rec domain.TransactionRecord) []domain.ConfluenceEvent {
	if err := p.windows.Append(ctx, rec.Token, rec); err != nil {
		// Fail-soft: the read below decides what the rules see.
		p.log.Warn().Err(err).Str("token", rec.Token).Msg("append failed, continuing")
	}

	window, err := p.windows.Read(ctx, rec.Token)
	if err != nil {
		// Unavailable store means an empty window: no confluence
		// detectable for this trigger, never an error upstream.
		window = nil
	}

	events := p.evaluate(window, rec)
	if len(events) > 0 {
		p.notifier.Dispatch(ctx, events)
	}
	return events
}

// Inject feeds a synthetic record into the pipeline, bypassing the webhook
// transport. Used by the admin API and integration tests.
func (p *Pipeline) Inject(ctx context.Context, rec domain.TransactionRecord) ([]domain.ConfluenceEvent, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return p.Ingest(ctx, rec), nil
}

// ForceEvaluate re-runs the rules for a token using its newest record as
// the trigger, without appending anything. Returns nil when the window is
// empty or unavailable.
func (p *Pipeline) ForceEvaluate(ctx context.Context, token string) []domain.ConfluenceEvent {
	window, err := p.windows.Read(ctx, token)
	if err != nil || len(window) == 0 {
		return nil
	}
	trigger := window[len(window)-1]

	events := p.evaluate(window, trigger)
	if len(events) > 0 {
		p.notifier.Dispatch(ctx, events)
	}
	return events
}

func (p *Pipeline) evaluate(window []domain.TransactionRecord, trigger domain.TransactionRecord) []domain.ConfluenceEvent {
	start := time.Now()
	events := Evaluate(window, trigger, p.params)
	p.metrics.EvalDuration.Observe(time.Since(start).Seconds())

	for _, ev := range events {
		p.metrics.RuleHits.WithLabelValues(string(ev.Rule)).Inc()
		p.log.Info().
			Str("rule", string(ev.Rule)).
			Str("token", ev.Token).
			Int("participants", len(ev.Participants)).
			Float64("total_usd", ev.TotalUSDVolume).
			Msg("confluence detected")
	}
	return events
}
