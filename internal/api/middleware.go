package api

import (
	"encoding/json"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/microgate-project/microgate/internal/domain"
)

// PaymentHashHeader carries the caller-supplied transaction hash that proves
// an on-chain payment.
const PaymentHashHeader = "X-Payment-Hash"

// ResourceFunc produces the priced payload once payment is proven. The gate
// serializes the result and caches it in the replay store, so the function is
// invoked at most once per accepted payment.
type ResourceFunc func(r *http.Request) (any, error)

type paidResponse struct {
	Success     bool                       `json:"success"`
	Cached      bool                       `json:"cached,omitempty"`
	Data        json.RawMessage            `json:"data"`
	Transaction domain.VerifiedTransaction `json:"transaction"`
	Timestamp   time.Time                  `json:"timestamp"`
}

// requirePayment gates a resource behind the payment verifier.
//
// No proof header: 402 with a self-describing challenge. Rejected: 400, or
// 409 for replay attacks. Infrastructure failure: 500, nothing persisted, the
// same hash can be retried. Fresh acceptance is committed to the replay store
// before the response leaves the process; losing the commit race means some
// concurrent request already settled this payment, and we serve its cached
// payload instead of producing a second acceptance.
func (h *Handler) requirePayment(endpoint string, resource ResourceFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues(r.Method, endpoint))
		defer timer.ObserveDuration()

		txHash := r.Header.Get(PaymentHashHeader)
		if txHash == "" {
			respondWithJSON(w, http.StatusPaymentRequired, h.challenge(), r.Method, endpoint)
			return
		}

		verdict, err := h.verifier.Verify(r.Context(), txHash)
		if err != nil {
			paymentVerdictsTotal.WithLabelValues("internal_error").Inc()
			h.log.Error("verification unavailable", map[string]any{"endpoint": endpoint, "error": err.Error()})
			respondWithError(w, http.StatusInternalServerError,
				"Verification temporarily unavailable, retry with the same hash", r.Method, endpoint)
			return
		}

		if !verdict.Accepted {
			h.rejectPayment(w, r, endpoint, txHash, verdict)
			return
		}

		if verdict.Cached {
			paymentVerdictsTotal.WithLabelValues("accepted_cached").Inc()
			respondWithJSON(w, http.StatusOK, h.paidBody(txHash, verdict, verdict.CachedResponse, true), r.Method, endpoint)
			return
		}

		payload, err := resource(r)
		if err != nil {
			h.log.Error("resource generation failed", map[string]any{"endpoint": endpoint, "error": err.Error()})
			respondWithError(w, http.StatusInternalServerError, "Resource generation failed", r.Method, endpoint)
			return
		}
		data, err := json.Marshal(payload)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Resource encoding failed", r.Method, endpoint)
			return
		}

		created, err := h.replay.InsertIfAbsent(r.Context(), h.acceptedRecord(txHash, endpoint, verdict, data))
		if err != nil {
			// The acceptance was never durably recorded, so nothing was
			// spent. Fail closed and let the caller retry.
			paymentVerdictsTotal.WithLabelValues("internal_error").Inc()
			h.log.Error("replay store write failed", map[string]any{"tx_hash": txHash, "error": err.Error()})
			respondWithError(w, http.StatusInternalServerError,
				"Payment could not be recorded, retry with the same hash", r.Method, endpoint)
			return
		}
		if !created {
			h.serveRaceLoser(w, r, endpoint, txHash)
			return
		}

		paymentVerdictsTotal.WithLabelValues("accepted_fresh").Inc()
		respondWithJSON(w, http.StatusOK, h.paidBody(txHash, verdict, data, false), r.Method, endpoint)
	}
}

func (h *Handler) rejectPayment(w http.ResponseWriter, r *http.Request, endpoint, txHash string, verdict *domain.Verdict) {
	paymentVerdictsTotal.WithLabelValues(string(verdict.Reason)).Inc()

	// Sticky rejections are remembered so the next attempt with the same
	// hash is reported as a replay. Transient rejections leave no trace.
	if verdict.Reason.Sticky() {
		if _, err := h.replay.InsertIfAbsent(r.Context(), h.rejectedRecord(txHash, endpoint, verdict)); err != nil {
			h.log.Warn("could not persist rejection", map[string]any{"tx_hash": txHash, "error": err.Error()})
		}
	}

	status := http.StatusBadRequest
	if verdict.Reason == domain.ReasonReplayAttack {
		status = http.StatusConflict
	}
	respondWithJSON(w, status, map[string]string{
		"error":  string(verdict.Reason),
		"detail": verdict.Detail,
	}, r.Method, endpoint)
}

// serveRaceLoser handles the request that lost the insert race for a fresh
// acceptance: the winner's record is authoritative, so replay its payload.
func (h *Handler) serveRaceLoser(w http.ResponseWriter, r *http.Request, endpoint, txHash string) {
	rec, err := h.replay.Lookup(r.Context(), normalizeHash(txHash))
	if err != nil || rec == nil {
		respondWithError(w, http.StatusInternalServerError,
			"Payment settled concurrently, retry with the same hash", r.Method, endpoint)
		return
	}
	if rec.Status != domain.StatusAccepted {
		paymentVerdictsTotal.WithLabelValues(string(domain.ReasonReplayAttack)).Inc()
		respondWithJSON(w, http.StatusConflict, map[string]string{
			"error":  string(domain.ReasonReplayAttack),
			"detail": "this transaction was already adjudicated",
		}, r.Method, endpoint)
		return
	}

	paymentVerdictsTotal.WithLabelValues("accepted_cached").Inc()
	amount, _ := new(big.Int).SetString(rec.AmountWei, 10)
	verdict := &domain.Verdict{
		Accepted:      true,
		Cached:        true,
		Payer:         rec.PayerAddress,
		AmountWei:     amount,
		Confirmations: rec.Confirmations,
		BlockNumber:   rec.BlockNumber,
	}
	respondWithJSON(w, http.StatusOK, h.paidBody(txHash, verdict, rec.CachedResponse, true), r.Method, endpoint)
}

func (h *Handler) paidBody(txHash string, verdict *domain.Verdict, data json.RawMessage, cached bool) paidResponse {
	return paidResponse{
		Success: true,
		Cached:  cached,
		Data:    data,
		Transaction: domain.VerifiedTransaction{
			Hash:          normalizeHash(txHash),
			From:          verdict.Payer,
			Amount:        formatWeiAsETH(verdict.AmountWei),
			ChainID:       h.cfg.ChainID,
			BlockNumber:   verdict.BlockNumber,
			Confirmations: verdict.Confirmations,
		},
		Timestamp: time.Now().UTC(),
	}
}

func (h *Handler) acceptedRecord(txHash, endpoint string, verdict *domain.Verdict, data json.RawMessage) *domain.ReplayRecord {
	return &domain.ReplayRecord{
		TxHash:         normalizeHash(txHash),
		Status:         domain.StatusAccepted,
		PayerAddress:   verdict.Payer,
		AmountWei:      verdict.AmountWei.String(),
		ChainID:        h.cfg.ChainID,
		Confirmations:  verdict.Confirmations,
		BlockNumber:    verdict.BlockNumber,
		Endpoint:       endpoint,
		CachedResponse: data,
	}
}

func (h *Handler) rejectedRecord(txHash, endpoint string, verdict *domain.Verdict) *domain.ReplayRecord {
	return &domain.ReplayRecord{
		TxHash:   normalizeHash(txHash),
		Status:   domain.StatusRejected,
		Reason:   verdict.Reason,
		ChainID:  h.cfg.ChainID,
		Endpoint: endpoint,
	}
}

func (h *Handler) challenge() domain.PaymentChallenge {
	return domain.PaymentChallenge{
		Error:        "Payment Required",
		Message:      "This service requires payment via blockchain transaction",
		PayTo:        h.cfg.WalletAddress,
		Amount:       formatWeiAsETH(h.cfg.MinAmountWei) + " minimum",
		Asset:        "ETH",
		Network:      h.cfg.ChainName,
		ChainID:      h.cfg.ChainID,
		Instructions: []string{
			"1. Send ETH to the recipient address above",
			"2. Wait for transaction confirmation",
			"3. Include the transaction hash in the " + PaymentHashHeader + " header",
			"4. Retry this request",
		},
	}
}

func normalizeHash(txHash string) string {
	return strings.ToLower(txHash)
}

// formatWeiAsETH renders an integer wei amount as a decimal ETH string for
// humans. Display only; comparisons stay in wei.
func formatWeiAsETH(wei *big.Int) string {
	if wei == nil {
		return "0 ETH"
	}
	return decimal.NewFromBigInt(wei, -18).String() + " ETH"
}
