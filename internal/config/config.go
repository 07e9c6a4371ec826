package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultContractAddress is the pool deployed on Base Sepolia.
const DefaultContractAddress = "0x34f13cf42fAC7C609D691679f0d2454fe45b348f"

// DeploymentConfig represents deployments.json.
type DeploymentConfig struct {
	ChainID   int64  `json:"chainId"`
	Contracts struct {
		BettingPool string `json:"BettingPool"`
	} `json:"contracts"`
}

// AppConfig ties together the deployment file and environment.
type AppConfig struct {
	Deployment DeploymentConfig
	Service    ServiceConfig
	Chain      ChainConfig
	Backend    BackendConfig
	Journal    JournalConfig
}

type ServiceConfig struct {
	Name            string
	Env             string
	HTTPHost        string
	HTTPPort        int
	APISecret       string
	APIMaxSkew      time.Duration
	ShutdownTimeout time.Duration
}

type ChainConfig struct {
	RPCURL          string
	ChainID         int64
	PrivateKeys     []string
	ContractAddress string
	ReceiptPoll     time.Duration
}

type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	HMACSecret string
}

type JournalConfig struct {
	Path        string
	PostgresDSN string
	Limit       int
}

const (
	defaultBackendURL = "https://betting-backend-one.vercel.app"
	defaultChainID    = 84532
)

// Load aggregates configuration from .env, the optional deployment file and
// the environment. Environment variables win over the deployment file.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(envOr("ENV_FILE", ".env")); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	var deployCfg DeploymentConfig
	if path := envOr("DEPLOYMENTS_PATH", ""); path != "" {
		cfg, err := loadDeployments(path)
		if err != nil {
			return nil, fmt.Errorf("load deployments: %w", err)
		}
		deployCfg = *cfg
	}

	contractAddr := deployCfg.Contracts.BettingPool
	if contractAddr == "" {
		contractAddr = DefaultContractAddress
	}
	chainID := deployCfg.ChainID
	if chainID == 0 {
		chainID = defaultChainID
	}

	serviceCfg := ServiceConfig{
		Name:            envOr("SERVICE_NAME", "parimutuel-console"),
		Env:             envOr("ENV", "local"),
		HTTPHost:        envOr("HTTP_HOST", "127.0.0.1"),
		HTTPPort:        envOrInt("HTTP_PORT", 3000),
		APISecret:       envOr("CONSOLE_API_SECRET", ""),
		APIMaxSkew:      time.Duration(envOrInt("CONSOLE_API_MAX_SKEW_SECONDS", 300)) * time.Second,
		ShutdownTimeout: time.Duration(envOrInt("SHUTDOWN_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	chainCfg := ChainConfig{
		RPCURL:          envOr("CHAIN_RPC_URL", ""),
		ChainID:         int64(envOrInt("CHAIN_ID", int(chainID))),
		PrivateKeys:     splitKeys(envOr("CHAIN_PRIVATE_KEYS", "")),
		ContractAddress: envOr("CONTRACT_ADDRESS", contractAddr),
		ReceiptPoll:     time.Duration(envOrInt("RECEIPT_POLL_MS", 2000)) * time.Millisecond,
	}

	backendCfg := BackendConfig{
		BaseURL:    envOr("BACKEND_BASE_URL", defaultBackendURL),
		Timeout:    time.Duration(envOrInt("BACKEND_TIMEOUT_SECONDS", 0)) * time.Second,
		HMACSecret: envOr("BACKEND_HMAC_SECRET", ""),
	}

	journalCfg := JournalConfig{
		Path:        envOr("JOURNAL_PATH", ""),
		PostgresDSN: envOr("JOURNAL_POSTGRES_DSN", ""),
		Limit:       envOrInt("JOURNAL_LIMIT", 500),
	}

	return &AppConfig{
		Deployment: deployCfg,
		Service:    serviceCfg,
		Chain:      chainCfg,
		Backend:    backendCfg,
		Journal:    journalCfg,
	}, nil
}

func loadDeployments(path string) (*DeploymentConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg DeploymentConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}
