package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const testContract = "0x1111111111111111111111111111111111111111"

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CHAIN_SLOT_CONTRACT", testContract)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Chain.ChainID.Int64() != 2020 {
		t.Errorf("Chain.ChainID = %v, want 2020", cfg.Chain.ChainID)
	}
	if cfg.Chain.GasPrice.String() != "25000000000" {
		t.Errorf("Chain.GasPrice = %v, want 25 gwei", cfg.Chain.GasPrice)
	}
	if cfg.Chain.GasLimit != 800000 {
		t.Errorf("Chain.GasLimit = %v, want 800000", cfg.Chain.GasLimit)
	}
	if !cfg.Chain.TxValue.Equal(decimal.RequireFromString("0.012520408163265306")) {
		t.Errorf("Chain.TxValue = %v", cfg.Chain.TxValue)
	}
	if cfg.Automation.DefaultRate != 10 {
		t.Errorf("Automation.DefaultRate = %v, want 10", cfg.Automation.DefaultRate)
	}
	if cfg.Automation.VerificationInterval != time.Second {
		t.Errorf("Automation.VerificationInterval = %v, want 1s", cfg.Automation.VerificationInterval)
	}
	if cfg.Automation.BalanceInterval != 3*time.Second {
		t.Errorf("Automation.BalanceInterval = %v, want 3s", cfg.Automation.BalanceInterval)
	}
	if cfg.Automation.HistoryCapacity != 100 {
		t.Errorf("Automation.HistoryCapacity = %v, want 100", cfg.Automation.HistoryCapacity)
	}
	if cfg.Storage.Backend != BackendBadger {
		t.Errorf("Storage.Backend = %v, want badger", cfg.Storage.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("STORAGE_BACKEND", "Redis")
	t.Setenv("CHAIN_GAS_PRICE_GWEI", "30")
	t.Setenv("LEDGER_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.Backend != BackendRedis {
		t.Errorf("Storage.Backend = %v, want redis", cfg.Storage.Backend)
	}
	if cfg.Chain.GasPrice.String() != "30000000000" {
		t.Errorf("Chain.GasPrice = %v, want 30 gwei", cfg.Chain.GasPrice)
	}
	if !cfg.Ledger.Enabled {
		t.Errorf("Ledger.Enabled = false, want true")
	}
}

func TestLoadConfigRejectsMalformedDecimal(t *testing.T) {
	t.Setenv("AUTOMATION_DEFAULT_BET", "lots")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() expected error for malformed bet size")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown backend", func(c *Config) { c.Storage.Backend = "sqlite" }},
		{"iterations below floor", func(c *Config) { c.Security.KDFIterations = 1000 }},
		{"max rate above 30", func(c *Config) { c.Automation.MaxRate = 60 }},
		{"min rate zero", func(c *Config) { c.Automation.MinRate = 0 }},
		{"non-positive default bet", func(c *Config) { c.Automation.DefaultBetSize = decimal.Zero }},
		{"empty relay", func(c *Config) { c.Chain.RelayURL = " " }},
		{"malformed contract", func(c *Config) { c.Chain.ContractAddress = "0x1234" }},
		{"missing contract", func(c *Config) { c.Chain.ContractAddress = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CHAIN_SLOT_CONTRACT", testContract)
			cfg, err := LoadConfig()
			if err != nil {
				t.Fatalf("LoadConfig() error = %v", err)
			}
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Errorf("Validate() expected error")
			}
		})
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("TEST_DURATION", "30s")
	t.Setenv("TEST_DURATION_INVALID", "soon")

	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 30*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 30s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_INVALID", time.Second); got != time.Second {
		t.Errorf("getEnvAsDuration() = %v, want default", got)
	}
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("TEST_BOOL", "1")
	t.Setenv("TEST_BOOL_INVALID", "maybe")

	if !getEnvAsBool("TEST_BOOL", false) {
		t.Error("getEnvAsBool() = false, want true")
	}
	if !getEnvAsBool("TEST_BOOL_INVALID", true) {
		t.Error("getEnvAsBool() should fall back to default")
	}
}
