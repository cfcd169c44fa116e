// Package config loads the service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the environment-provided configuration of the backend.
type Config struct {
	BackendPort     int    `env:"BACKEND_PORT"     envDefault:"4000"`
	BackendListenIP string `env:"BACKEND_LISTEN_IP" envDefault:"0.0.0.0"`

	RPCURL          string   `env:"RPC_URL"             envDefault:"http://127.0.0.1:8545"`
	ContractAddress string   `env:"CONTRACT_ADDRESS"`
	ChainID         int64    `env:"CHAIN_ID"`
	LedgerKeys      []string `env:"LEDGER_PRIVATE_KEYS" envSeparator:","`

	PinataJWT        string   `env:"PINATA_JWT"`
	Web3StorageToken string   `env:"WEB3STORAGE_TOKEN"`
	VaultToken       string   `env:"VAULT_TOKEN"`
	S3AccessKey      string   `env:"S3_ACCESS_KEY"`
	S3SecretKey      string   `env:"S3_SECRET_KEY"`
	StorageBackends  []string `env:"STORAGE_BACKENDS" envSeparator:"," envDefault:"web3://api.web3.storage,pinata://api.pinata.cloud"`

	UploadTimeout     time.Duration `env:"UPLOAD_TIMEOUT"      envDefault:"30s"`
	MaxPayloadBytes   int           `env:"MAX_PAYLOAD_BYTES"   envDefault:"1048576"`
	LedgerCallTimeout time.Duration `env:"LEDGER_CALL_TIMEOUT" envDefault:"15s"`
	ReceiptTimeout    time.Duration `env:"RECEIPT_TIMEOUT"     envDefault:"60s"`
	RetryAttempts     int           `env:"RETRY_ATTEMPTS"      envDefault:"3"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"500ms"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY"     envDefault:"5s"`

	// PublishToken guards POST /publish when set.
	PublishToken string `env:"PUBLISH_TOKEN"`
}

// ListenAddr returns the API listen address.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.BackendListenIP, c.BackendPort)
}

// PublishBudget is the longest a publish can take: the upload, every ledger
// attempt with its backoff and the receipt wait.
func (c Config) PublishBudget() time.Duration {
	ledgerCalls := time.Duration(4 * c.RetryAttempts)
	return c.UploadTimeout + c.ReceiptTimeout + ledgerCalls*(c.LedgerCallTimeout+c.RetryMaxDelay)
}

// ParseEnv loads configuration from environment variables.
func ParseEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c Config) Validate() error {
	if c.BackendPort <= 0 || c.BackendPort > 65535 {
		return fmt.Errorf("BACKEND_PORT out of range: %d", c.BackendPort)
	}
	if c.RetryAttempts < 1 {
		return fmt.Errorf("RETRY_ATTEMPTS must be at least 1, got %d", c.RetryAttempts)
	}
	if c.UploadTimeout <= 0 || c.LedgerCallTimeout <= 0 || c.ReceiptTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}
