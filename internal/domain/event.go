package domain

import (
	"sort"
	"time"
)

// RuleKind identifies which confluence rule produced an event.
type RuleKind string

const (
	RuleAlphaConfluence RuleKind = "ALPHA_CONFLUENCE"
	RuleAlphaFollow     RuleKind = "ALPHA_FOLLOW"
	RuleDiverseActivity RuleKind = "DIVERSE_ACTIVITY"
)

// Participant is one matched record inside a ConfluenceEvent.
type Participant struct {
	Wallet     string     `json:"wallet"`
	TraderType TraderType `json:"trader_type"`
	Side       Side       `json:"side"`
	USDAmount  float64    `json:"usd_amount"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ConfluenceEvent is the output of a successful rule match: a subset of one
// token's window whose members satisfied the rule's cardinality and time
// bounds. WindowStart/WindowEnd and TotalUSDVolume are derived from the
// participants, never set independently.
type ConfluenceEvent struct {
	Rule           RuleKind      `json:"rule"`
	Token          string        `json:"token"`
	Participants   []Participant `json:"participants"`
	WindowStart    time.Time     `json:"window_start"`
	WindowEnd      time.Time     `json:"window_end"`
	TotalUSDVolume float64       `json:"total_usd_volume"`
}

// NewConfluenceEvent builds an event from the matched records, ordering
// participants oldest to newest and deriving the window bounds and volume.
func NewConfluenceEvent(rule RuleKind, token string, matched []TransactionRecord) ConfluenceEvent {
	parts := make([]Participant, 0, len(matched))
	for _, r := range matched {
		parts = append(parts, Participant{
			Wallet:     r.Wallet,
			TraderType: r.TraderType,
			Side:       r.Side,
			USDAmount:  r.USDAmount,
			Timestamp:  r.Timestamp,
		})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Timestamp.Before(parts[j].Timestamp) })

	ev := ConfluenceEvent{Rule: rule, Token: token, Participants: parts}
	for _, p := range parts {
		ev.TotalUSDVolume += p.USDAmount
	}
	if len(parts) > 0 {
		ev.WindowStart = parts[0].Timestamp
		ev.WindowEnd = parts[len(parts)-1].Timestamp
	}
	return ev
}
