// Package forecast produces the simulated market data served behind the
// paywall. Stand-in for a real model; the gateway treats it as an opaque
// payload generator.
package forecast

import (
	"fmt"
	"math/rand"
	"time"
)

var (
	symbols         = []string{"BTC", "ETH", "SOL", "BASE"}
	sentiments      = []string{"Bullish", "Bearish", "Neutral"}
	volatilities    = []string{"Low", "Medium", "High"}
	recommendations = []string{"Strong Buy", "Buy", "Hold", "Sell"}
)

type SymbolForecast struct {
	Symbol           string `json:"symbol"`
	CurrentPrice     string `json:"current_price"`
	PredictedPrice24 string `json:"predicted_price_24h"`
	PredictedPrice7d string `json:"predicted_price_7d"`
	Confidence       string `json:"confidence"`
	Sentiment        string `json:"sentiment"`
	Recommendation   string `json:"recommendation"`
}

type Forecast struct {
	Service     string           `json:"service"`
	GeneratedAt time.Time        `json:"generated_at"`
	Forecasts   []SymbolForecast `json:"forecasts"`
	Disclaimer  string           `json:"disclaimer"`
}

type Sentiment struct {
	Asset      string    `json:"asset"`
	Price      float64   `json:"price"`
	Sentiment  string    `json:"sentiment"`
	Volatility string    `json:"volatility"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
}

type PremiumData struct {
	Secret         string `json:"secret"`
	PremiumInsight string `json:"premiumInsight"`
	Verified       bool   `json:"verified"`
}

// MarketForecast generates a fresh multi-symbol forecast.
func MarketForecast() Forecast {
	forecasts := make([]SymbolForecast, 0, len(symbols))
	for _, symbol := range symbols {
		forecasts = append(forecasts, SymbolForecast{
			Symbol:           symbol,
			CurrentPrice:     fmt.Sprintf("%.2f", rand.Float64()*10000),
			PredictedPrice24: fmt.Sprintf("%.2f", rand.Float64()*10000),
			PredictedPrice7d: fmt.Sprintf("%.2f", rand.Float64()*10000),
			Confidence:       fmt.Sprintf("%.1f%%", rand.Float64()*30+70),
			Sentiment:        sentiments[rand.Intn(len(sentiments))],
			Recommendation:   recommendations[rand.Intn(len(recommendations))],
		})
	}
	return Forecast{
		Service:     "MicroGate AI Market Forecast",
		GeneratedAt: time.Now().UTC(),
		Forecasts:   forecasts,
		Disclaimer:  "Simulated forecast for demonstration purposes. Not financial advice.",
	}
}

// MarketSentiment generates the free-tier ETH sentiment snapshot.
func MarketSentiment() Sentiment {
	basePrice := 3450.20
	variation := (rand.Float64() - 0.5) * 200
	return Sentiment{
		Asset:      "ETH",
		Price:      float64(int((basePrice+variation)*100)) / 100,
		Sentiment:  sentiments[rand.Intn(len(sentiments))],
		Volatility: volatilities[rand.Intn(len(volatilities))],
		Timestamp:  time.Now().UTC(),
		Source:     "MicroGate Market Analytics",
	}
}

// Premium returns the static paid payload.
func Premium() PremiumData {
	return PremiumData{
		Secret:         "The Agent Economy is Live!",
		PremiumInsight: "Autonomous AI agents are revolutionizing blockchain payments",
		Verified:       true,
	}
}
