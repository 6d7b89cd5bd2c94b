package verify

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/microgate-project/microgate/internal/domain"
	"github.com/microgate-project/microgate/internal/ledger"
	"github.com/microgate-project/microgate/internal/logger"
	"github.com/microgate-project/microgate/internal/store"
)

// txHashPattern is the only shape of reference the gateway accepts: a
// 0x-prefixed 32-byte hex string. Anything else is rejected before any I/O.
var txHashPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)

// Params captures the payment terms. Supplied once at startup; the verifier
// never reads mutable global state.
type Params struct {
	PayTo            string
	MinAmountWei     *big.Int
	ChainID          int64
	MinConfirmations uint64
}

// Verifier turns an untrusted transaction hash into a verdict by running an
// ordered chain of checks: cheap local validation first, then the replay
// store, then the chain itself. It performs no writes; committing an accepted
// verdict to the replay store is the caller's job, which keeps Verify safe to
// call any number of times.
type Verifier struct {
	params Params
	ledger ledger.Reader
	replay store.ReplayStore
	log    logger.Logger
	checks []namedCheck
}

type namedCheck struct {
	name string
	fn   func(facts *domain.TransactionFacts, height uint64) *domain.Verdict
}

func New(params Params, reader ledger.Reader, replay store.ReplayStore, log logger.Logger) *Verifier {
	if log == nil {
		log = logger.NoopLogger{}
	}
	v := &Verifier{
		params: params,
		ledger: reader,
		replay: replay,
		log:    log,
	}
	// Order matters: permanent defects before transient ones, so a doomed
	// reference is branded sticky even while it is still gathering
	// confirmations.
	v.checks = []namedCheck{
		{"outcome", v.checkOutcome},
		{"recipient", v.checkRecipient},
		{"chain", v.checkChain},
		{"amount", v.checkAmount},
		{"confirmations", v.checkConfirmations},
	}
	return v
}

// Verify adjudicates one payment reference. The returned error is reserved
// for infrastructure failures (store or RPC unavailable, context cancelled);
// every payment-level outcome, good or bad, arrives as a Verdict. Ambiguity
// never resolves to acceptance.
func (v *Verifier) Verify(ctx context.Context, txHash string) (*domain.Verdict, error) {
	if !txHashPattern.MatchString(txHash) {
		return domain.Reject(domain.ReasonInvalidReferenceFormat,
			"expected a 0x-prefixed 64-character hex transaction hash"), nil
	}
	txHash = strings.ToLower(txHash)

	rec, err := v.replay.Lookup(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("replay check: %w", err)
	}
	if rec != nil {
		return v.replayVerdict(rec), nil
	}

	facts, err := v.ledger.TransactionFacts(ctx, txHash)
	if err != nil {
		if errors.Is(err, ledger.ErrTxNotFound) || errors.Is(err, ledger.ErrTxPending) {
			return domain.Reject(domain.ReasonLedgerLookupFailed,
				"transaction not found on chain; it may not be confirmed yet"), nil
		}
		return nil, fmt.Errorf("ledger fetch: %w", err)
	}

	height, err := v.ledger.ChainHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain height: %w", err)
	}

	for _, check := range v.checks {
		if verdict := check.fn(facts, height); verdict != nil {
			v.log.Info("payment rejected", map[string]any{
				"tx_hash": txHash,
				"check":   check.name,
				"reason":  string(verdict.Reason),
			})
			return verdict, nil
		}
	}

	var confirmations uint64
	if height > facts.BlockNumber {
		confirmations = height - facts.BlockNumber
	}
	verdict := domain.Accept(facts, confirmations)
	v.log.Info("payment verified", map[string]any{
		"tx_hash":       txHash,
		"payer":         verdict.Payer,
		"amount_wei":    verdict.AmountWei.String(),
		"confirmations": verdict.Confirmations,
	})
	return verdict, nil
}

// replayVerdict maps an existing record to the caller-facing outcome. An
// accepted record replays its original answer verbatim; a sticky-rejected
// record is reported as replay_attack, because re-presenting an
// already-condemned reference is misuse, not bad luck.
func (v *Verifier) replayVerdict(rec *domain.ReplayRecord) *domain.Verdict {
	if rec.Status == domain.StatusAccepted {
		amount, _ := new(big.Int).SetString(rec.AmountWei, 10)
		if amount == nil {
			amount = new(big.Int)
		}
		return &domain.Verdict{
			Accepted:       true,
			Cached:         true,
			Payer:          rec.PayerAddress,
			AmountWei:      amount,
			Confirmations:  rec.Confirmations,
			BlockNumber:    rec.BlockNumber,
			CachedResponse: rec.CachedResponse,
		}
	}

	verdict := domain.Reject(domain.ReasonReplayAttack,
		fmt.Sprintf("this transaction was already adjudicated (%s) at %s",
			rec.Reason, rec.CreatedAt.UTC().Format("2006-01-02T15:04:05Z")))
	verdict.FirstSeen = rec.CreatedAt
	return verdict
}

func (v *Verifier) checkOutcome(facts *domain.TransactionFacts, _ uint64) *domain.Verdict {
	if !facts.Succeeded {
		return domain.Reject(domain.ReasonTransactionFailed, "transaction reverted on chain")
	}
	return nil
}

func (v *Verifier) checkRecipient(facts *domain.TransactionFacts, _ uint64) *domain.Verdict {
	if !strings.EqualFold(facts.To, v.params.PayTo) {
		return domain.Reject(domain.ReasonWrongRecipient,
			fmt.Sprintf("payment sent to %s, expected %s", facts.To, v.params.PayTo))
	}
	return nil
}

func (v *Verifier) checkChain(facts *domain.TransactionFacts, _ uint64) *domain.Verdict {
	if facts.ChainID == nil || facts.ChainID.Int64() != v.params.ChainID {
		got := "unknown"
		if facts.ChainID != nil {
			got = facts.ChainID.String()
		}
		return domain.Reject(domain.ReasonWrongChain,
			fmt.Sprintf("transaction mined on chain %s, expected %d", got, v.params.ChainID))
	}
	return nil
}

func (v *Verifier) checkAmount(facts *domain.TransactionFacts, _ uint64) *domain.Verdict {
	if facts.AmountWei == nil || facts.AmountWei.Cmp(v.params.MinAmountWei) < 0 {
		got := "0"
		if facts.AmountWei != nil {
			got = facts.AmountWei.String()
		}
		return domain.Reject(domain.ReasonInsufficientAmount,
			fmt.Sprintf("paid %s wei, minimum is %s wei", got, v.params.MinAmountWei.String()))
	}
	return nil
}

func (v *Verifier) checkConfirmations(facts *domain.TransactionFacts, height uint64) *domain.Verdict {
	var confirmations uint64
	if height > facts.BlockNumber {
		confirmations = height - facts.BlockNumber
	}
	if confirmations < v.params.MinConfirmations {
		return domain.Reject(domain.ReasonInsufficientConfirmations,
			fmt.Sprintf("%d of %d confirmations; retry with the same hash shortly",
				confirmations, v.params.MinConfirmations))
	}
	return nil
}
