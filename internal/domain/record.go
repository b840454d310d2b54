// Package domain defines the canonical types shared by the ingestion,
// detection, and notification layers: transaction records, trader
// classifications, and confluence events.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an observed swap.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a raw side string.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY":
		return SideBuy, nil
	case "SELL":
		return SideSell, nil
	default:
		return "", fmt.Errorf("unknown side %q", s)
	}
}

// TraderType is the externally supplied wallet classification.
type TraderType string

const (
	TraderInsider             TraderType = "INSIDER"
	TraderAlpha               TraderType = "ALPHA"
	TraderVolumeLeader        TraderType = "VOLUME_LEADER"
	TraderConsistentPerformer TraderType = "CONSISTENT_PERFORMER"
)

// ParseTraderType maps a classification label from the analytics source to a
// TraderType. Labels arrive in mixed case and with either spaces or
// underscores ("Volume Leader", "volume_leader").
func ParseTraderType(s string) (TraderType, error) {
	norm := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_"))
	switch TraderType(norm) {
	case TraderInsider, TraderAlpha, TraderVolumeLeader, TraderConsistentPerformer:
		return TraderType(norm), nil
	default:
		return "", fmt.Errorf("unknown trader type %q", s)
	}
}

// TransactionRecord is one observed on-chain action by a tracked wallet.
// Records are immutable once stored; Timestamp is the source of truth for
// all windowing decisions.
type TransactionRecord struct {
	Wallet     string     `json:"wallet"`
	Token      string     `json:"token"`
	Side       Side       `json:"side"`
	USDAmount  float64    `json:"usd_amount"`
	Timestamp  time.Time  `json:"timestamp"`
	TraderType TraderType `json:"trader_type"`
}

// Validate reports whether the record satisfies the storage invariants.
func (r TransactionRecord) Validate() error {
	if r.Wallet == "" {
		return fmt.Errorf("record missing wallet")
	}
	if r.Token == "" {
		return fmt.Errorf("record missing token")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return fmt.Errorf("record has invalid side %q", r.Side)
	}
	if r.USDAmount < 0 {
		return fmt.Errorf("record has negative usd amount %f", r.USDAmount)
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("record missing timestamp")
	}
	switch r.TraderType {
	case TraderInsider, TraderAlpha, TraderVolumeLeader, TraderConsistentPerformer:
	default:
		return fmt.Errorf("record has invalid trader type %q", r.TraderType)
	}
	return nil
}

// Same reports whether two records describe the same on-chain action.
// Duplicate webhook deliveries produce records that compare equal here.
func (r TransactionRecord) Same(o TransactionRecord) bool {
	return r.Wallet == o.Wallet &&
		r.Token == o.Token &&
		r.Side == o.Side &&
		r.USDAmount == o.USDAmount &&
		r.Timestamp.Equal(o.Timestamp)
}
