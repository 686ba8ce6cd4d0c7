// Package config loads the vault daemon's settings from config file,
// environment variables, and flags, in ascending precedence.
package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	RPCURL      string
	PGDSN       string
	JournalPath string
	LogLevel    string

	// Contract addresses, hex-encoded.
	Pool            string
	Quoter          string
	Router          string
	PositionManager string
	Gauge           string
	PriceFeed       string
	Voter           string
	Escrow          string

	Token0      string
	Token1      string
	RewardToken string
	VaultAddr   string

	Token0Feed   string
	Token1Feed   string
	BaseIsToken0 bool

	Admin    string
	Operator string

	// PositionID attaches an existing venue position on startup; zero means
	// no position yet.
	PositionID     uint64
	PositionStaked bool

	TickSpacing      int32
	MinDeposit       string
	SwapSlippageBps  uint32
	WithdrawFloorBps uint32
	RangeWidthTicks  int32

	OracleMaxAge      time.Duration
	TxTimeout         time.Duration
	CompoundInterval  time.Duration
	CompoundThreshold string
	RebalanceCheck    time.Duration
	MaxRetries        uint
	RetryBackoff      time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("journal", "./data/operations.jsonl")
	v.SetDefault("log-level", "info")
	v.SetDefault("tick-spacing", 60)
	v.SetDefault("min-deposit", "1000000")
	v.SetDefault("swap-slippage-bps", 50)
	v.SetDefault("withdraw-floor-bps", 9800)
	v.SetDefault("range-width-ticks", 1824)
	v.SetDefault("oracle-max-age", time.Minute)
	v.SetDefault("tx-timeout", time.Minute)
	v.SetDefault("compound-interval", time.Hour)
	v.SetDefault("compound-threshold", "0")
	v.SetDefault("rebalance-check", 5*time.Minute)
	v.SetDefault("max-retries", 5)
	v.SetDefault("retry-backoff", 500*time.Millisecond)
	v.SetDefault("base-is-token0", true)
	v.SetDefault("position-staked", true)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		RPCURL:      v.GetString("rpc"),
		PGDSN:       v.GetString("pg-dsn"),
		JournalPath: v.GetString("journal"),
		LogLevel:    v.GetString("log-level"),

		Pool:            v.GetString("pool"),
		Quoter:          v.GetString("quoter"),
		Router:          v.GetString("router"),
		PositionManager: v.GetString("position-manager"),
		Gauge:           v.GetString("gauge"),
		PriceFeed:       v.GetString("price-feed"),
		Voter:           v.GetString("voter"),
		Escrow:          v.GetString("escrow"),

		Token0:      v.GetString("token0"),
		Token1:      v.GetString("token1"),
		RewardToken: v.GetString("reward-token"),
		VaultAddr:   v.GetString("vault-address"),

		Token0Feed:   v.GetString("token0-feed"),
		Token1Feed:   v.GetString("token1-feed"),
		BaseIsToken0: v.GetBool("base-is-token0"),

		Admin:    v.GetString("admin"),
		Operator: v.GetString("operator"),

		PositionID:     v.GetUint64("position-id"),
		PositionStaked: v.GetBool("position-staked"),

		TickSpacing:      v.GetInt32("tick-spacing"),
		MinDeposit:       v.GetString("min-deposit"),
		SwapSlippageBps:  v.GetUint32("swap-slippage-bps"),
		WithdrawFloorBps: v.GetUint32("withdraw-floor-bps"),
		RangeWidthTicks:  v.GetInt32("range-width-ticks"),

		OracleMaxAge:      v.GetDuration("oracle-max-age"),
		TxTimeout:         v.GetDuration("tx-timeout"),
		CompoundInterval:  v.GetDuration("compound-interval"),
		CompoundThreshold: v.GetString("compound-threshold"),
		RebalanceCheck:    v.GetDuration("rebalance-check"),
		MaxRetries:        v.GetUint("max-retries"),
		RetryBackoff:      v.GetDuration("retry-backoff"),
	}

	if cfg.Operator == "" {
		cfg.Operator = cfg.Admin
	}

	return cfg, nil
}

// Validate checks the settings every command needs before wiring begins.
func (c Config) Validate() error {
	if c.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if c.Admin == "" {
		return fmt.Errorf("admin address is required")
	}
	for name, value := range map[string]string{
		"pool":             c.Pool,
		"quoter":           c.Quoter,
		"router":           c.Router,
		"position-manager": c.PositionManager,
		"gauge":            c.Gauge,
		"price-feed":       c.PriceFeed,
		"token0":           c.Token0,
		"token1":           c.Token1,
		"vault-address":    c.VaultAddr,
	} {
		if value == "" {
			return fmt.Errorf("%s address is required", name)
		}
	}
	if c.Token0Feed == "" || c.Token1Feed == "" {
		return fmt.Errorf("token0-feed and token1-feed ids are required")
	}
	if _, err := c.MinDepositAmount(); err != nil {
		return err
	}
	if _, err := c.CompoundThresholdAmount(); err != nil {
		return err
	}
	return nil
}

// MinDepositAmount parses the configured minimum deposit as a decimal big
// integer.
func (c Config) MinDepositAmount() (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(c.MinDeposit), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, fmt.Errorf("min-deposit %q is not a positive decimal integer", c.MinDeposit)
	}
	return amount, nil
}

// CompoundThresholdAmount parses the compound threshold. Empty and "0" both
// mean no threshold.
func (c Config) CompoundThresholdAmount() (*big.Int, error) {
	raw := strings.TrimSpace(c.CompoundThreshold)
	if raw == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, fmt.Errorf("compound-threshold %q is not a non-negative decimal integer", c.CompoundThreshold)
	}
	return amount, nil
}
