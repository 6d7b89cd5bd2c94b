package domain

import (
	"encoding/json"
	"math/big"
	"time"
)

// TransactionFacts holds the fields the verifier needs from the chain for one
// transaction. Fetched fresh on every first-time verification; never cached
// here (caching happens in the replay store only after a verdict exists).
type TransactionFacts struct {
	Hash        string
	Succeeded   bool
	From        string
	To          string
	AmountWei   *big.Int
	BlockNumber uint64
	ChainID     *big.Int
}

// Verdict is the verifier's decision for one payment reference.
// Either Accepted is true and the payment fields are populated, or Reason
// carries a rejection code. Infrastructure failures are reported as Go errors
// alongside, never folded into a Verdict.
type Verdict struct {
	Accepted bool

	// Accepted fields
	Payer         string
	AmountWei     *big.Int
	Confirmations uint64
	BlockNumber   uint64
	// Cached marks a verdict replayed from the store rather than freshly
	// computed. A fresh accepted verdict must be persisted before the caller
	// responds to the outside world.
	Cached bool
	// CachedResponse carries the payload that was served the first time,
	// populated only when Cached is true.
	CachedResponse json.RawMessage

	// Rejected fields
	Reason RejectionReason
	Detail string
	// FirstSeen is set on replay_attack verdicts: when the reference was
	// originally adjudicated. Surfaced for operator visibility.
	FirstSeen time.Time
}

// Accept builds a fresh accepted verdict from on-chain facts.
func Accept(facts *TransactionFacts, confirmations uint64) *Verdict {
	return &Verdict{
		Accepted:      true,
		Payer:         facts.From,
		AmountWei:     new(big.Int).Set(facts.AmountWei),
		Confirmations: confirmations,
		BlockNumber:   facts.BlockNumber,
	}
}

// Reject builds a rejected verdict with a stable reason code and a
// human-readable detail string.
func Reject(reason RejectionReason, detail string) *Verdict {
	return &Verdict{Reason: reason, Detail: detail}
}

// Replay record statuses.
const (
	StatusAccepted = "accepted"
	StatusRejected = "rejected"
)

// ReplayRecord is the durable, immutable memory of a verdict. Exactly one
// record may ever exist per transaction hash; the storage layer enforces it.
type ReplayRecord struct {
	TxHash         string          `json:"tx_hash"`
	Status         string          `json:"status"`
	Reason         RejectionReason `json:"reason,omitempty"`
	PayerAddress   string          `json:"payer_address,omitempty"`
	AmountWei      string          `json:"amount_wei,omitempty"`
	ChainID        int64           `json:"chain_id"`
	Confirmations  uint64          `json:"confirmations"`
	BlockNumber    uint64          `json:"block_number"`
	Endpoint       string          `json:"endpoint"`
	CachedResponse json.RawMessage `json:"cached_response,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// PaymentChallenge is the 402 body. It must be self-describing: an automated
// caller should be able to construct a valid payment from this payload alone.
type PaymentChallenge struct {
	Error        string   `json:"error"`
	Message      string   `json:"message"`
	PayTo        string   `json:"payTo"`
	Amount       string   `json:"amount"`
	Asset        string   `json:"asset"`
	Network      string   `json:"network"`
	ChainID      int64    `json:"chainId"`
	Instructions []string `json:"instructions"`
}

// VerifiedTransaction is the receipt echoed back with every paid response.
type VerifiedTransaction struct {
	Hash          string `json:"hash"`
	From          string `json:"from"`
	Amount        string `json:"amount"`
	ChainID       int64  `json:"chainId"`
	BlockNumber   uint64 `json:"blockNumber"`
	Confirmations uint64 `json:"confirmations"`
}
