package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Network  NetworkConfig `mapstructure:"network"`
	Protocol Protocol      `mapstructure:"protocol"`
	Polling  PollingConfig `mapstructure:"polling"`
	Wallet   WalletConfig  `mapstructure:"wallet"`
	Server   ServerConfig  `mapstructure:"server"`
	Log      LogConfig     `mapstructure:"log"`
}

// NetworkConfig holds the endpoints of the external collaborators.
type NetworkConfig struct {
	LedgerURL      string        `mapstructure:"ledger_url"`   // mapping query endpoint
	ExplorerURL    string        `mapstructure:"explorer_url"` // public transaction-trace endpoint
	IndexURL       string        `mapstructure:"index_url"`    // off-chain invoice index
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Protocol is the single immutable set of protocol identifiers. It is passed
// explicitly into every component; nothing reads these as ambient globals.
type Protocol struct {
	InvoiceProgram string `mapstructure:"invoice_program"`
	CreditsProgram string `mapstructure:"credits_program"` // primary asset
	TokenProgram   string `mapstructure:"token_program"`   // wrapped stable asset

	InvoiceMapping  string `mapstructure:"invoice_mapping"`  // salt -> commitment
	StatusMapping   string `mapstructure:"status_mapping"`   // commitment -> status entry
	RegistryMapping string `mapstructure:"registry_mapping"` // freeze registry leaves
	RegistryRootKey string `mapstructure:"registry_root_key"`

	CreateFunction    string `mapstructure:"create_function"`
	PayFunction       string `mapstructure:"pay_function"`
	PayStableFunction string `mapstructure:"pay_stable_function"`
	ConvertFunction   string `mapstructure:"convert_function"` // public-to-private conversion

	FeeMicro         uint64 `mapstructure:"fee_micro"`
	ConversionBuffer uint64 `mapstructure:"conversion_buffer"` // micro-units added on top of the required amount
}

// PollingConfig drives confirmation polling for conversions and payments.
type PollingConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	PropagationDelay time.Duration `mapstructure:"propagation_delay"` // wait before querying the explorer
}

// WalletConfig configures the local software wallet adapter.
type WalletConfig struct {
	KeyHex string `mapstructure:"key_hex"` // 32-byte hex key
}

// ServerConfig is used by the devledger simulator daemon.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the listen address string.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: ZKI_.
// Nested keys use underscore: ZKI_NETWORK_LEDGER_URL, ZKI_POLLING_INTERVAL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("network.ledger_url", "http://localhost:8640")
	v.SetDefault("network.explorer_url", "http://localhost:8640")
	v.SetDefault("network.index_url", "http://localhost:8641")
	v.SetDefault("network.request_timeout", "10s")
	v.SetDefault("protocol.invoice_program", "zk_invoice_v2")
	v.SetDefault("protocol.credits_program", "credits")
	v.SetDefault("protocol.token_program", "stable_token_v1")
	v.SetDefault("protocol.invoice_mapping", "invoices")
	v.SetDefault("protocol.status_mapping", "invoice_status")
	v.SetDefault("protocol.registry_mapping", "freeze_registry")
	v.SetDefault("protocol.registry_root_key", "root")
	v.SetDefault("protocol.create_function", "create_invoice")
	v.SetDefault("protocol.pay_function", "pay_invoice")
	v.SetDefault("protocol.pay_stable_function", "pay_invoice_stable")
	v.SetDefault("protocol.convert_function", "transfer_public_to_private")
	v.SetDefault("protocol.fee_micro", 50_000)
	v.SetDefault("protocol.conversion_buffer", 10_000)
	v.SetDefault("polling.interval", "1s")
	v.SetDefault("polling.max_attempts", 120)
	v.SetDefault("polling.propagation_delay", "3s")
	v.SetDefault("wallet.key_hex", "")
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8640)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: ZKI_NETWORK_LEDGER_URL -> network.ledger_url
	v.SetEnvPrefix("ZKI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// A missing config file is fine; env vars can supply everything.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks invariants the engine relies on.
func (c *Config) Validate() error {
	if c.Polling.Interval <= 0 {
		return fmt.Errorf("polling.interval must be positive")
	}
	if c.Polling.MaxAttempts <= 0 {
		return fmt.Errorf("polling.max_attempts must be positive")
	}
	if c.Protocol.InvoiceProgram == "" {
		return fmt.Errorf("protocol.invoice_program must be set")
	}
	if c.Protocol.CreditsProgram == "" || c.Protocol.TokenProgram == "" {
		return fmt.Errorf("protocol asset programs must be set")
	}
	return nil
}
