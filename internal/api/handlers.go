package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/microgate-project/microgate/internal/config"
	"github.com/microgate-project/microgate/internal/forecast"
	"github.com/microgate-project/microgate/internal/logger"
	"github.com/microgate-project/microgate/internal/store"
	"github.com/microgate-project/microgate/internal/verify"
)

const paidEndpointRateLimit = 5 // requests per minute per IP

type Handler struct {
	cfg      *config.Config
	verifier *verify.Verifier
	replay   store.ReplayStore
	log      logger.Logger
	limiter  *ipLimiter
}

func NewHandler(cfg *config.Config, verifier *verify.Verifier, replay store.ReplayStore, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NoopLogger{}
	}
	return &Handler{
		cfg:      cfg,
		verifier: verifier,
		replay:   replay,
		log:      log,
		limiter:  newIPLimiter(paidEndpointRateLimit),
	}
}

// Router wires every endpoint. Paid endpoints sit behind the payment gate and
// the per-IP limiter; health and metrics are always open.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.HealthHandler).Methods("GET")
	api.HandleFunc("/market-sentiment", h.MarketSentimentHandler).Methods("GET")
	api.HandleFunc("/transactions", h.ListTransactionsHandler).Methods("GET")

	api.HandleFunc("/market-forecast",
		h.limiter.limitByIP("/api/market-forecast",
			h.requirePayment("/api/market-forecast", marketForecastResource)),
	).Methods("POST")
	api.HandleFunc("/premium-data",
		h.limiter.limitByIP("/api/premium-data",
			h.requirePayment("/api/premium-data", premiumDataResource)),
	).Methods("GET")

	return r
}

func marketForecastResource(*http.Request) (any, error) {
	return forecast.MarketForecast(), nil
}

func premiumDataResource(*http.Request) (any, error) {
	return forecast.Premium(), nil
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "MicroGate Payment Gateway",
		"timestamp": time.Now().UTC(),
		"network":   h.cfg.ChainName,
		"chainId":   h.cfg.ChainID,
		"wallet":    h.cfg.WalletAddress,
	}, r.Method, "/api/health")
}

func (h *Handler) MarketSentimentHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, forecast.MarketSentiment(), r.Method, "/api/market-sentiment")
}

// ListTransactionsHandler exposes recent replay records for the operational
// dashboard. Cached payloads are omitted from the listing.
func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	payer := r.URL.Query().Get("agent_address")
	records, err := h.replay.ListRecent(r.Context(), payer, 100)
	if err != nil {
		h.log.Error("transaction listing failed", map[string]any{"error": err.Error()})
		respondWithError(w, http.StatusInternalServerError, "Failed to fetch transactions", r.Method, "/api/transactions")
		return
	}
	for i := range records {
		records[i].CachedResponse = nil
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"transactions": records,
		"count":        len(records),
	}, r.Method, "/api/transactions")
}
