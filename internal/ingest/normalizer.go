// Package ingest converts raw webhook payloads into canonical transaction
// records, dropping malformed events and events from untracked senders
// before anything reaches the window store.
package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

// SwapEvent is one enhanced swap notification as delivered by the webhook
// provider. The service consumes only these fields; provider-specific
// metadata is ignored by the decoder.
type SwapEvent struct {
	WalletAddress string  `json:"wallet_address"`
	TokenAddress  string  `json:"token_address"`
	TokenSymbol   string  `json:"token_symbol"`
	Project       string  `json:"project"`
	IsBuy         bool    `json:"is_buy"`
	USDValue      float64 `json:"usd_value"`
	Timestamp     int64   `json:"timestamp"`
}

// Normalizer turns webhook payloads into TransactionRecords. Normalization
// is a function of the payload and the tracked-set snapshot it is handed;
// it holds no other state.
type Normalizer struct {
	metrics *metrics.Registry
	log     zerolog.Logger
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(reg *metrics.Registry, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		metrics: reg,
		log:     logger.With().Str("component", "normalizer").Logger(),
	}
}

// Normalize decodes a webhook body (a batch of swap events, or a single
// event) against the given roster snapshot. Events that are malformed or
// whose sender is not tracked are dropped with an audit log entry; the
// error return is reserved for bodies that are not decodable at all.
func (n *Normalizer) Normalize(payload []byte, set *domain.TrackedSet) ([]domain.TransactionRecord, error) {
	events, err := decodeBatch(payload)
	if err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	records := make([]domain.TransactionRecord, 0, len(events))
	for _, ev := range events {
		rec, ok := n.normalizeOne(ev, set)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func (n *Normalizer) normalizeOne(ev SwapEvent, set *domain.TrackedSet) (domain.TransactionRecord, bool) {
	if ev.WalletAddress == "" || ev.TokenAddress == "" || ev.Timestamp <= 0 || ev.USDValue < 0 {
		n.metrics.IngestEvents.WithLabelValues("dropped_invalid").Inc()
		n.log.Debug().
			Str("wallet", ev.WalletAddress).
			Str("token", ev.TokenAddress).
			Msg("dropping malformed swap event")
		return domain.TransactionRecord{}, false
	}

	profile, tracked := set.Lookup(ev.WalletAddress)
	if !tracked {
		n.metrics.IngestEvents.WithLabelValues("dropped_untracked").Inc()
		n.log.Debug().
			Str("wallet", ev.WalletAddress).
			Str("token", ev.TokenAddress).
			Msg("dropping swap from untracked wallet")
		return domain.TransactionRecord{}, false
	}

	side := domain.SideSell
	if ev.IsBuy {
		side = domain.SideBuy
	}

	rec := domain.TransactionRecord{
		Wallet:     ev.WalletAddress,
		Token:      ev.TokenAddress,
		Side:       side,
		USDAmount:  ev.USDValue,
		Timestamp:  time.Unix(ev.Timestamp, 0).UTC(),
		TraderType: profile.TraderType,
	}
	if err := rec.Validate(); err != nil {
		n.metrics.IngestEvents.WithLabelValues("dropped_invalid").Inc()
		n.log.Debug().Err(err).Str("wallet", ev.WalletAddress).Msg("dropping invalid record")
		return domain.TransactionRecord{}, false
	}

	n.metrics.IngestEvents.WithLabelValues("accepted").Inc()
	return rec, true
}

// decodeBatch accepts either a JSON array of events or a single event
// object; providers batch deliveries but retries can arrive singly.
func decodeBatch(payload []byte) ([]SwapEvent, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty payload")
	}

	if trimmed[0] == '[' {
		var events []SwapEvent
		if err := json.Unmarshal(trimmed, &events); err != nil {
			return nil, err
		}
		return events, nil
	}

	var ev SwapEvent
	if err := json.Unmarshal(trimmed, &ev); err != nil {
		return nil, err
	}
	return []SwapEvent{ev}, nil
}
