package store

import (
	"context"
	"errors"

	"github.com/microgate-project/microgate/internal/domain"
)

var ErrStoreUnavailable = errors.New("replay store unavailable")

// ReplayStore remembers every verdict ever committed, keyed by transaction
// hash. Implementations must guarantee that at most one record is durably
// created per hash, enforced at the storage layer, so that two concurrent
// redemptions of the same payment can never both be treated as fresh.
type ReplayStore interface {
	// Lookup returns the record for a hash, or (nil, nil) when none exists.
	Lookup(ctx context.Context, txHash string) (*domain.ReplayRecord, error)
	// InsertIfAbsent atomically creates the record unless one already exists.
	// Returns true when this call created it.
	InsertIfAbsent(ctx context.Context, rec *domain.ReplayRecord) (bool, error)
	// ListRecent returns the newest records, optionally filtered by payer
	// address, for operational dashboards.
	ListRecent(ctx context.Context, payer string, limit int) ([]domain.ReplayRecord, error)
}
