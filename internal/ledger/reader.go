package ledger

import (
	"context"
	"errors"

	"github.com/microgate-project/microgate/internal/domain"
)

var (
	// ErrTxNotFound means the node does not know the transaction. The hash may
	// be wrong, or the transaction may simply not have propagated yet, so
	// callers must treat this as retryable.
	ErrTxNotFound = errors.New("transaction not found")
	// ErrTxPending means the transaction is known but not yet mined.
	ErrTxPending = errors.New("transaction pending")
)

// Reader is a read-only view of the chain. It knows nothing about payment
// semantics; it only fetches facts.
type Reader interface {
	// TransactionFacts returns the verifier-relevant fields of a mined
	// transaction, or ErrTxNotFound / ErrTxPending.
	TransactionFacts(ctx context.Context, txHash string) (*domain.TransactionFacts, error)
	// ChainHeight returns the current head block number.
	ChainHeight(ctx context.Context) (uint64, error)
}
