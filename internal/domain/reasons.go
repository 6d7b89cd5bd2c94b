package domain

// RejectionReason is a stable machine-readable code explaining why a payment
// reference was not accepted. Codes are part of the wire contract and must not
// be renamed.
type RejectionReason string

const (
	ReasonInvalidReferenceFormat    RejectionReason = "invalid_reference_format"
	ReasonLedgerLookupFailed        RejectionReason = "ledger_lookup_failed"
	ReasonTransactionFailed         RejectionReason = "transaction_failed"
	ReasonWrongRecipient            RejectionReason = "wrong_recipient"
	ReasonWrongChain                RejectionReason = "wrong_chain"
	ReasonInsufficientAmount        RejectionReason = "insufficient_amount"
	ReasonInsufficientConfirmations RejectionReason = "insufficient_confirmations"
	ReasonReplayAttack              RejectionReason = "replay_attack"
)

// Sticky reports whether a rejection is permanent for the reference that
// produced it. A failed transaction never succeeds later, a payment to the
// wrong wallet never moves, so re-presenting such a reference is treated as a
// replay attempt rather than a retry. Lookup failures and pending
// confirmations resolve with time and are safe to retry.
func (r RejectionReason) Sticky() bool {
	switch r {
	case ReasonTransactionFailed, ReasonWrongRecipient, ReasonWrongChain, ReasonInsufficientAmount:
		return true
	}
	return false
}
