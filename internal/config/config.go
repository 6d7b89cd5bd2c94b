package config

import (
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

// Defaults match the Base Sepolia deployment the gateway was built for.
const (
	DefaultChainID      = 84532
	DefaultChainName    = "Base Sepolia"
	DefaultMinAmountWei = "100000000000000" // 0.0001 ETH
	DefaultMinConfs     = 1
)

// Config is built once at startup and treated as immutable for the process
// lifetime. No component reads the environment after Load returns.
type Config struct {
	Port     string `validate:"required,numeric"`
	Env      string `validate:"oneof=development production"`
	LogLevel string

	DBSource string `validate:"required"`

	RPCURL           string `validate:"required,url"`
	WalletAddress    string `validate:"required"`
	ChainID          int64  `validate:"gt=0"`
	ChainName        string `validate:"required"`
	MinAmountWei     *big.Int
	MinConfirmations uint64 `validate:"gte=1"`

	FrontendURL string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:             getenv("SERVER_PORT", "8080"),
		Env:              getenv("ENVIRONMENT", "development"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		DBSource:         os.Getenv("DB_SOURCE"),
		RPCURL:           getenv("RPC_URL", "https://sepolia.base.org"),
		WalletAddress:    os.Getenv("WALLET_ADDRESS"),
		ChainName:        getenv("CHAIN_NAME", DefaultChainName),
		FrontendURL:      getenv("FRONTEND_URL", "http://localhost:5173"),
		MinConfirmations: DefaultMinConfs,
	}

	chainID, err := strconv.ParseInt(getenv("CHAIN_ID", strconv.Itoa(DefaultChainID)), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid CHAIN_ID: %w", err)
	}
	cfg.ChainID = chainID

	if raw := os.Getenv("MIN_CONFIRMATIONS"); raw != "" {
		confs, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid MIN_CONFIRMATIONS: %w", err)
		}
		cfg.MinConfirmations = confs
	}

	rawAmount := getenv("MIN_AMOUNT_WEI", DefaultMinAmountWei)
	amount, ok := new(big.Int).SetString(rawAmount, 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("invalid MIN_AMOUNT_WEI: %q", rawAmount)
	}
	cfg.MinAmountWei = amount

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	// validator has no notion of EVM addresses; check separately.
	if !common.IsHexAddress(cfg.WalletAddress) {
		return nil, fmt.Errorf("WALLET_ADDRESS is not a valid hex address: %q", cfg.WalletAddress)
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
