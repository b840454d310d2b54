// Package store provides the shared time-bounded window store: per-token,
// capped, individually-expiring lists of recent transaction records backed
// by Redis. It is the only shared mutable state on the ingestion path.
package store

import (
	"context"

	"github.com/alphawatch/alphawatch/internal/domain"
)

// WindowStore is the contract the ingestion pipeline depends on. Append and
// Read must be safe under concurrent invocation; a reader sees either the
// pre- or post-append window, never a torn entry.
type WindowStore interface {
	// Append inserts the record into the token's window, evicting the
	// oldest entry when the window would exceed its cap, and refreshes
	// the window's expiry.
	Append(ctx context.Context, token string, rec domain.TransactionRecord) error

	// Read returns the token's unexpired records, oldest first. A missing
	// window is an empty slice, not an error.
	Read(ctx context.Context, token string) ([]domain.TransactionRecord, error)

	// Ping reports backend reachability for health checks.
	Ping(ctx context.Context) error

	Close() error
}
