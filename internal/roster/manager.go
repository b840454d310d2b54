// Package roster maintains the tracked-address set: the wallet roster and
// trader classifications fetched from the analytics source on a fixed
// schedule. Refreshes swap an immutable snapshot; a failed refresh never
// empties the set.
package roster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

// Config points the manager at the analytics source and, optionally, at
// the webhook provider whose address list follows the roster.
type Config struct {
	// SourceURL returns the current roster rows as JSON.
	SourceURL string
	// APIKey authenticates against the analytics source.
	APIKey string
	// Interval is the refresh cadence.
	Interval time.Duration

	// WebhookID / WebhookAPIKey / CallbackURL configure the provider
	// webhook whose address list is synced when roster membership
	// changes. Leave WebhookID empty to disable syncing.
	WebhookID     string
	WebhookAPIKey string
	WebhookURL    string
	CallbackURL   string
}

// rosterRow is one entry from the analytics query result.
type rosterRow struct {
	Wallet         string  `json:"wallet"`
	TraderCategory string  `json:"trader_category"`
	WinRate        float64 `json:"win_rate"`
	TradesPerDay   float64 `json:"trades_per_day"`
	TotalProfits   float64 `json:"total_profits"`
}

type rosterResponse struct {
	Result struct {
		Rows []rosterRow `json:"rows"`
	} `json:"result"`
}

// Manager owns the tracked-set snapshot. It is the only writer; all other
// components read through Snapshot.
type Manager struct {
	cfg      Config
	client   *http.Client
	snapshot atomic.Pointer[domain.TrackedSet]
	metrics  *metrics.Registry
	log      zerolog.Logger
}

// NewManager creates a manager with an empty initial snapshot.
func NewManager(cfg Config, reg *metrics.Registry, logger zerolog.Logger) *Manager {
	if cfg.WebhookURL == "" {
		cfg.WebhookURL = "https://api.helius.xyz/v0/webhooks"
	}
	m := &Manager{
		cfg:     cfg,
		client:  &http.Client{Timeout: 30 * time.Second},
		metrics: reg,
		log:     logger.With().Str("component", "roster").Logger(),
	}
	m.snapshot.Store(domain.EmptyTrackedSet())
	return m
}

// Snapshot returns the current tracked set. The returned set is immutable;
// callers may hold it across an in-flight operation without locking.
func (m *Manager) Snapshot() *domain.TrackedSet {
	return m.snapshot.Load()
}

// Run refreshes immediately, then on the configured interval, until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	if err := m.Refresh(ctx); err != nil {
		m.log.Error().Err(err).Msg("initial roster refresh failed, tracking nothing until retry")
	}

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.log.Error().Err(err).Msg("roster refresh failed, keeping previous snapshot")
			}
		}
	}
}

// Refresh fetches the roster and atomically replaces the snapshot on
// success. Any failure leaves the previous snapshot in place.
func (m *Manager) Refresh(ctx context.Context) error {
	rows, err := m.fetchRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("analytics source returned no roster rows")
	}

	profiles := make(map[string]domain.TrackedProfile, len(rows))
	for _, row := range rows {
		traderType, err := domain.ParseTraderType(row.TraderCategory)
		if err != nil {
			m.log.Warn().
				Str("wallet", row.Wallet).
				Str("category", row.TraderCategory).
				Msg("skipping roster row with unknown trader category")
			continue
		}
		profiles[row.Wallet] = domain.TrackedProfile{
			TraderType:   traderType,
			WinRate:      row.WinRate,
			TradesPerDay: row.TradesPerDay,
			TotalProfits: row.TotalProfits,
		}
	}
	if len(profiles) == 0 {
		return fmt.Errorf("no usable roster rows after classification parsing")
	}

	next := domain.NewTrackedSet(profiles)
	prev := m.snapshot.Swap(next)

	m.metrics.RosterSize.Set(float64(next.Len()))
	m.metrics.RosterLastRefresh.Set(float64(time.Now().Unix()))
	m.log.Info().Int("wallets", next.Len()).Msg("tracked-address set refreshed")

	if m.cfg.WebhookID != "" && membershipChanged(prev, next) {
		if err := m.syncWebhook(ctx, next.Wallets()); err != nil {
			// The snapshot already swapped; webhook sync catches up
			// on the next refresh.
			m.log.Error().Err(err).Msg("webhook address sync failed")
		}
	}
	return nil
}

func (m *Manager) fetchRows(ctx context.Context) ([]rosterRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.cfg.SourceURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build roster request: %w", err)
	}
	req.Header.Set("X-Api-Key", m.cfg.APIKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch roster: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("roster source returned %d: %s", resp.StatusCode, detail)
	}

	var parsed rosterResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode roster response: %w", err)
	}
	return parsed.Result.Rows, nil
}

// syncWebhook replaces the provider webhook's address list so the stream
// follows the roster.
func (m *Manager) syncWebhook(ctx context.Context, wallets []string) error {
	payload, err := json.Marshal(map[string]interface{}{
		"webhookURL":       m.cfg.CallbackURL,
		"transactionTypes": []string{"SWAP"},
		"accountAddresses": wallets,
		"webhookType":      "enhanced",
	})
	if err != nil {
		return fmt.Errorf("encode webhook update: %w", err)
	}

	url := fmt.Sprintf("%s/%s?api-key=%s", m.cfg.WebhookURL, m.cfg.WebhookID, m.cfg.WebhookAPIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook update: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("update webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook provider returned %d: %s", resp.StatusCode, detail)
	}

	m.log.Info().Int("wallets", len(wallets)).Msg("webhook address list synced")
	return nil
}

func membershipChanged(prev, next *domain.TrackedSet) bool {
	if prev == nil || prev.Len() != next.Len() {
		return true
	}
	prevWallets := prev.Wallets()
	for i, w := range next.Wallets() {
		if prevWallets[i] != w {
			return true
		}
	}
	return false
}
