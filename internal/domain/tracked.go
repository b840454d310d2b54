package domain

import "sort"

// TrackedProfile carries the classification and performance stats the
// analytics source reports for one tracked wallet.
type TrackedProfile struct {
	TraderType   TraderType `json:"trader_type"`
	WinRate      float64    `json:"win_rate"`
	TradesPerDay float64    `json:"trades_per_day"`
	TotalProfits float64    `json:"total_profits"`
}

// TrackedSet is an immutable snapshot of the monitored wallet roster.
// Refreshes build a new set and swap the reference; a set is never mutated
// after construction, so concurrent readers need no locking.
type TrackedSet struct {
	profiles map[string]TrackedProfile
}

// NewTrackedSet copies the given profiles into a new immutable snapshot.
func NewTrackedSet(profiles map[string]TrackedProfile) *TrackedSet {
	cp := make(map[string]TrackedProfile, len(profiles))
	for w, p := range profiles {
		cp[w] = p
	}
	return &TrackedSet{profiles: cp}
}

// EmptyTrackedSet returns a snapshot tracking no wallets.
func EmptyTrackedSet() *TrackedSet {
	return &TrackedSet{profiles: map[string]TrackedProfile{}}
}

// Lookup returns the profile for a wallet if it is tracked.
func (s *TrackedSet) Lookup(wallet string) (TrackedProfile, bool) {
	p, ok := s.profiles[wallet]
	return p, ok
}

// Len returns the number of tracked wallets.
func (s *TrackedSet) Len() int {
	return len(s.profiles)
}

// Wallets returns the tracked addresses in stable order.
func (s *TrackedSet) Wallets() []string {
	out := make([]string, 0, len(s.profiles))
	for w := range s.profiles {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}
