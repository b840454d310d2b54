// Package engine implements confluence detection: trigger-centered rule
// evaluation over a single per-token window snapshot, plus the pipeline
// that ties normalization, storage, evaluation, and dispatch together.
package engine

import (
	"sort"
	"time"

	"github.com/alphawatch/alphawatch/internal/domain"
)

// Params holds the rule thresholds. Zero values are not usable; build
// Params from config.RulesConfig or DefaultParams.
type Params struct {
	// Rule A: distinct ALPHA wallets within AlphaWindow of the trigger.
	AlphaWindow     time.Duration
	AlphaMinWallets int

	// Rule B: followers of distinct non-ALPHA types within FollowWindow
	// after the leader's timestamp.
	FollowWindow       time.Duration
	FollowMinFollowers int
	FollowMinTypes     int

	// Rule C: distinct trader types within DiverseWindow of the trigger.
	DiverseWindow   time.Duration
	DiverseMinTypes int
}

// DefaultParams mirrors the production thresholds.
func DefaultParams() Params {
	return Params{
		AlphaWindow:        30 * time.Minute,
		AlphaMinWallets:    2,
		FollowWindow:       2 * time.Hour,
		FollowMinFollowers: 2,
		FollowMinTypes:     2,
		DiverseWindow:      time.Hour,
		DiverseMinTypes:    3,
	}
}

// Evaluate runs all three rules against one window snapshot with the given
// trigger record. It is a pure function: no I/O, no clock reads, bounded by
// the window cap. Rules are independent; one trigger can produce multiple
// events.
func Evaluate(window []domain.TransactionRecord, trigger domain.TransactionRecord, p Params) []domain.ConfluenceEvent {
	// An empty window means the store was unavailable. Skipping is safe
	// because every rule needs at least two records to fire; any rule
	// added with a lower cardinality must remove this shortcut.
	if len(window) == 0 {
		return nil
	}

	var events []domain.ConfluenceEvent
	if ev, ok := alphaConfluence(window, trigger, p); ok {
		events = append(events, ev)
	}
	if ev, ok := alphaFollow(window, trigger, p); ok {
		events = append(events, ev)
	}
	if ev, ok := diverseActivity(window, trigger, p); ok {
		events = append(events, ev)
	}
	return events
}

// within reports whether ts lies inside [center-span, center+span].
func within(ts, center time.Time, span time.Duration) bool {
	d := ts.Sub(center)
	if d < 0 {
		d = -d
	}
	return d <= span
}

// alphaConfluence (Rule A): at least AlphaMinWallets distinct ALPHA wallets
// with records within AlphaWindow of the trigger, any side. Participants
// are all included ALPHA records.
func alphaConfluence(window []domain.TransactionRecord, trigger domain.TransactionRecord, p Params) (domain.ConfluenceEvent, bool) {
	var matched []domain.TransactionRecord
	wallets := map[string]struct{}{}

	for _, rec := range window {
		if rec.TraderType != domain.TraderAlpha {
			continue
		}
		if !within(rec.Timestamp, trigger.Timestamp, p.AlphaWindow) {
			continue
		}
		matched = append(matched, rec)
		wallets[rec.Wallet] = struct{}{}
	}

	if len(wallets) < p.AlphaMinWallets {
		return domain.ConfluenceEvent{}, false
	}
	return domain.NewConfluenceEvent(domain.RuleAlphaConfluence, trigger.Token, matched), true
}

// alphaFollow (Rule B): the earliest ALPHA record that gathers enough
// followers is the leader; followers are records of distinct non-ALPHA
// trader types within FollowWindow after the leader. The rule fires only
// when the trigger is the leader or one of the followers, so later
// unrelated activity on the token does not re-fire it. A window can hold
// several qualifying leaders (distinct bursts hours apart); each is
// examined in timestamp order until one pattern contains the trigger.
// Arrival order is not timestamp order, so leaders are sorted explicitly.
func alphaFollow(window []domain.TransactionRecord, trigger domain.TransactionRecord, p Params) (domain.ConfluenceEvent, bool) {
	var leaders []domain.TransactionRecord
	for _, rec := range window {
		if rec.TraderType == domain.TraderAlpha {
			leaders = append(leaders, rec)
		}
	}
	sort.Slice(leaders, func(i, j int) bool { return leaders[i].Timestamp.Before(leaders[j].Timestamp) })

	for _, leader := range leaders {
		var followers []domain.TransactionRecord
		types := map[domain.TraderType]struct{}{}
		for _, rec := range window {
			if rec.TraderType == domain.TraderAlpha {
				continue
			}
			if !rec.Timestamp.After(leader.Timestamp) {
				continue
			}
			if rec.Timestamp.Sub(leader.Timestamp) > p.FollowWindow {
				continue
			}
			followers = append(followers, rec)
			types[rec.TraderType] = struct{}{}
		}

		if len(followers) < p.FollowMinFollowers || len(types) < p.FollowMinTypes {
			continue
		}

		// Only the records completing or composing the pattern may
		// announce it; a later leader's pattern may still contain
		// the trigger.
		participating := trigger.Same(leader)
		for _, f := range followers {
			if trigger.Same(f) {
				participating = true
				break
			}
		}
		if !participating {
			continue
		}

		matched := append([]domain.TransactionRecord{leader}, followers...)
		return domain.NewConfluenceEvent(domain.RuleAlphaFollow, trigger.Token, matched), true
	}
	return domain.ConfluenceEvent{}, false
}

// diverseActivity (Rule C): at least DiverseMinTypes distinct trader types
// within DiverseWindow of the trigger. Diversity is measured over trader
// type, not wallet: participants are one representative per type, the most
// recent record of that type in the span.
func diverseActivity(window []domain.TransactionRecord, trigger domain.TransactionRecord, p Params) (domain.ConfluenceEvent, bool) {
	latest := map[domain.TraderType]domain.TransactionRecord{}

	for _, rec := range window {
		if !within(rec.Timestamp, trigger.Timestamp, p.DiverseWindow) {
			continue
		}
		cur, seen := latest[rec.TraderType]
		if !seen || rec.Timestamp.After(cur.Timestamp) {
			latest[rec.TraderType] = rec
		}
	}

	if len(latest) < p.DiverseMinTypes {
		return domain.ConfluenceEvent{}, false
	}

	matched := make([]domain.TransactionRecord, 0, len(latest))
	for _, rec := range latest {
		matched = append(matched, rec)
	}
	return domain.NewConfluenceEvent(domain.RuleDiverseActivity, trigger.Token, matched), true
}
