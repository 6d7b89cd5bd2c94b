package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/microgate-project/microgate/internal/domain"
	"github.com/microgate-project/microgate/internal/logger"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 500 * time.Millisecond
)

// EthReader reads transactions from an EVM chain over JSON-RPC.
// Transient RPC failures are retried with bounded attempts; a not-found or
// pending transaction is returned immediately, retrying won't change it
// within one request.
type EthReader struct {
	eth         *ethclient.Client
	log         logger.Logger
	maxAttempts int
	retryDelay  time.Duration
}

var _ Reader = (*EthReader)(nil)

func NewEthReader(rpcURL string, log logger.Logger) (*EthReader, error) {
	eth, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("ethereum rpc dial: %w", err)
	}
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &EthReader{
		eth:         eth,
		log:         log,
		maxAttempts: defaultMaxAttempts,
		retryDelay:  defaultRetryDelay,
	}, nil
}

func (r *EthReader) Close() {
	r.eth.Close()
}

func (r *EthReader) TransactionFacts(ctx context.Context, txHash string) (*domain.TransactionFacts, error) {
	hash := common.HexToHash(txHash)

	var facts *domain.TransactionFacts
	err := r.withRetry(ctx, "transaction_by_hash", func() error {
		tx, pending, err := r.eth.TransactionByHash(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return ErrTxNotFound
			}
			return err
		}
		if pending {
			return ErrTxPending
		}

		receipt, err := r.eth.TransactionReceipt(ctx, hash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return ErrTxPending
			}
			return err
		}

		from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(tx.ChainId()), tx)
		if err != nil {
			return fmt.Errorf("recover sender: %w", err)
		}

		to := ""
		if tx.To() != nil {
			to = tx.To().Hex()
		}

		facts = &domain.TransactionFacts{
			Hash:        txHash,
			Succeeded:   receipt.Status == ethtypes.ReceiptStatusSuccessful,
			From:        from.Hex(),
			To:          to,
			AmountWei:   tx.Value(),
			BlockNumber: receipt.BlockNumber.Uint64(),
			ChainID:     tx.ChainId(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return facts, nil
}

func (r *EthReader) ChainHeight(ctx context.Context) (uint64, error) {
	var height uint64
	err := r.withRetry(ctx, "block_number", func() error {
		h, err := r.eth.BlockNumber(ctx)
		if err != nil {
			return err
		}
		height = h
		return nil
	})
	return height, err
}

// withRetry runs fn up to maxAttempts times, backing off between attempts.
// Terminal outcomes (not found, pending, context cancellation) are never
// retried.
func (r *EthReader) withRetry(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt-1) * r.retryDelay):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrTxNotFound) || errors.Is(err, ErrTxPending) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		lastErr = err
		r.log.Warn("ledger call failed, retrying", map[string]any{
			"op":      op,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
	return fmt.Errorf("%s failed after %d attempts: %w", op, r.maxAttempts, lastErr)
}
