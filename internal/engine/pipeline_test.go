package engine

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alphawatch/alphawatch/internal/domain"
	"github.com/alphawatch/alphawatch/internal/ingest"
	"github.com/alphawatch/alphawatch/internal/metrics"
)

// fakeStore is an in-memory WindowStore with injectable failures.
type fakeStore struct {
	windows   map[string][]domain.TransactionRecord
	appendErr error
	readErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{windows: map[string][]domain.TransactionRecord{}}
}

func (f *fakeStore) Append(_ context.Context, token string, rec domain.TransactionRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.windows[token] = append(f.windows[token], rec)
	return nil
}

func (f *fakeStore) Read(_ context.Context, token string) ([]domain.TransactionRecord, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	return f.windows[token], nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }
func (f *fakeStore) Close() error               { return nil }

// fakeNotifier records dispatched events.
type fakeNotifier struct {
	dispatched []domain.ConfluenceEvent
}

func (f *fakeNotifier) Dispatch(_ context.Context, events []domain.ConfluenceEvent) {
	f.dispatched = append(f.dispatched, events...)
}

// fakeRoster serves a fixed snapshot.
type fakeRoster struct {
	set *domain.TrackedSet
}

func (f *fakeRoster) Snapshot() *domain.TrackedSet { return f.set }

func testPipeline(windows *fakeStore, notifier *fakeNotifier, set *domain.TrackedSet) *Pipeline {
	reg := metrics.NewRegistry()
	return NewPipeline(
		ingest.NewNormalizer(reg, zerolog.Nop()),
		windows,
		&fakeRoster{set: set},
		notifier,
		DefaultParams(),
		reg,
		zerolog.Nop(),
	)
}

func trackedSet() *domain.TrackedSet {
	return domain.NewTrackedSet(map[string]domain.TrackedProfile{
		"A1": {TraderType: domain.TraderAlpha},
		"A2": {TraderType: domain.TraderAlpha},
		"V1": {TraderType: domain.TraderVolumeLeader},
	})
}

func TestIngestSeesOwnRecordInWindow(t *testing.T) {
	windows := newFakeStore()
	notifier := &fakeNotifier{}
	p := testPipeline(windows, notifier, trackedSet())

	now := time.Now().UTC().Truncate(time.Second)
	first := rec("A1", domain.TraderAlpha, domain.SideBuy, 1000, now)
	first.Token = "MINT"
	second := rec("A2", domain.TraderAlpha, domain.SideBuy, 2000, now.Add(time.Minute))
	second.Token = "MINT"

	events := p.Ingest(context.Background(), first)
	assert.Empty(t, events, "one alpha alone is not confluence")

	events = p.Ingest(context.Background(), second)
	require.Len(t, events, 1)
	assert.Equal(t, domain.RuleAlphaConfluence, events[0].Rule)
	assert.Len(t, notifier.dispatched, 1)
	assert.Len(t, windows.windows["MINT"], 2)
}

func TestIngestStoreUnavailableFailSoft(t *testing.T) {
	windows := newFakeStore()
	windows.appendErr = errors.New("connection refused")
	windows.readErr = errors.New("connection refused")
	notifier := &fakeNotifier{}
	p := testPipeline(windows, notifier, trackedSet())

	trigger := rec("A1", domain.TraderAlpha, domain.SideBuy, 1000, time.Now().UTC())
	events := p.Ingest(context.Background(), trigger)

	assert.Empty(t, events, "unavailable store degrades to no detection")
	assert.Empty(t, notifier.dispatched)
}

func TestHandleWebhookDropsUntrackedWallet(t *testing.T) {
	windows := newFakeStore()
	notifier := &fakeNotifier{}
	p := testPipeline(windows, notifier, trackedSet())

	now := time.Now().UTC().Unix()
	body, err := json.Marshal([]ingest.SwapEvent{
		{WalletAddress: "A1", TokenAddress: "MINT", IsBuy: true, USDValue: 500, Timestamp: now},
		{WalletAddress: "STRANGER", TokenAddress: "MINT", IsBuy: true, USDValue: 9000, Timestamp: now},
	})
	require.NoError(t, err)

	accepted := p.HandleWebhook(context.Background(), body)
	assert.Equal(t, 1, accepted)

	require.Len(t, windows.windows["MINT"], 1)
	assert.Equal(t, "A1", windows.windows["MINT"][0].Wallet, "untracked sender never reaches the window")
}

func TestHandleWebhookUndecodableBody(t *testing.T) {
	p := testPipeline(newFakeStore(), &fakeNotifier{}, trackedSet())
	assert.Equal(t, 0, p.HandleWebhook(context.Background(), []byte("%%%")))
}

func TestInjectValidatesRecord(t *testing.T) {
	p := testPipeline(newFakeStore(), &fakeNotifier{}, trackedSet())

	bad := domain.TransactionRecord{Wallet: "A1"}
	_, err := p.Inject(context.Background(), bad)
	assert.Error(t, err)

	good := rec("A1", domain.TraderAlpha, domain.SideBuy, 100, time.Now().UTC())
	events, err := p.Inject(context.Background(), good)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestForceEvaluate(t *testing.T) {
	windows := newFakeStore()
	notifier := &fakeNotifier{}
	p := testPipeline(windows, notifier, trackedSet())

	assert.Nil(t, p.ForceEvaluate(context.Background(), "MINT"), "empty window evaluates to nothing")

	now := time.Now().UTC()
	r1 := rec("A1", domain.TraderAlpha, domain.SideBuy, 1000, now)
	r1.Token = "MINT"
	r2 := rec("A2", domain.TraderAlpha, domain.SideBuy, 2000, now.Add(time.Minute))
	r2.Token = "MINT"
	windows.windows["MINT"] = []domain.TransactionRecord{r1, r2}

	events := p.ForceEvaluate(context.Background(), "MINT")
	require.Len(t, events, 1)
	assert.Equal(t, domain.RuleAlphaConfluence, events[0].Rule)
	assert.Len(t, notifier.dispatched, 1)
}
