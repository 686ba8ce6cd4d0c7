package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		RPCURL:          "http://localhost:8545",
		Admin:           "0xadmin",
		Pool:            "0x1",
		Quoter:          "0x2",
		Router:          "0x3",
		PositionManager: "0x4",
		Gauge:           "0x5",
		PriceFeed:       "0x6",
		Token0:          "0x7",
		Token1:          "0x8",
		VaultAddr:       "0x9",
		Token0Feed:      "0xf0",
		Token1Feed:      "0xf1",
		MinDeposit:      "1000000",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	require.Equal(t, "./data/operations.jsonl", cfg.JournalPath)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, int32(60), cfg.TickSpacing)
	require.Equal(t, uint32(50), cfg.SwapSlippageBps)
	require.Equal(t, uint32(9800), cfg.WithdrawFloorBps)
	require.Equal(t, int32(1824), cfg.RangeWidthTicks)
	require.Equal(t, time.Minute, cfg.OracleMaxAge)
	require.Equal(t, time.Hour, cfg.CompoundInterval)
	require.Equal(t, 5*time.Minute, cfg.RebalanceCheck)
	require.True(t, cfg.BaseIsToken0)
}

func TestLoadFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("rpc", "", "")
	flags.String("log-level", "info", "")
	flags.Duration("compound-interval", time.Hour, "")
	require.NoError(t, flags.Parse([]string{
		"--rpc", "ws://example:8546",
		"--log-level", "debug",
		"--compound-interval", "30m",
	}))

	cfg, err := Load("", flags)
	require.NoError(t, err)
	require.Equal(t, "ws://example:8546", cfg.RPCURL)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 30*time.Minute, cfg.CompoundInterval)
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("VAULT_RPC", "http://env:8545")
	t.Setenv("VAULT_MIN_DEPOSIT", "42")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "http://env:8545", cfg.RPCURL)
	require.Equal(t, "42", cfg.MinDeposit)
}

func TestOperatorFallsBackToAdmin(t *testing.T) {
	t.Setenv("VAULT_ADMIN", "0xboss")

	cfg, err := Load("", nil)
	require.NoError(t, err)
	require.Equal(t, "0xboss", cfg.Operator)
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cfg := validConfig()
	cfg.RPCURL = ""
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Gauge = ""
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.VaultAddr = ""
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Token1Feed = ""
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MinDeposit = "not-a-number"
	require.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.MinDeposit = "-5"
	require.Error(t, cfg.Validate())
}

func TestMinDepositAmount(t *testing.T) {
	cfg := validConfig()
	cfg.MinDeposit = " 1000000000000000000 "
	amount, err := cfg.MinDepositAmount()
	require.NoError(t, err)
	require.Equal(t, "1000000000000000000", amount.String())
}

func TestCompoundThresholdAmount(t *testing.T) {
	cfg := validConfig()

	cfg.CompoundThreshold = ""
	amount, err := cfg.CompoundThresholdAmount()
	require.NoError(t, err)
	require.Equal(t, 0, amount.Sign())

	cfg.CompoundThreshold = "250000"
	amount, err = cfg.CompoundThresholdAmount()
	require.NoError(t, err)
	require.Equal(t, "250000", amount.String())

	cfg.CompoundThreshold = "-1"
	_, err = cfg.CompoundThresholdAmount()
	require.Error(t, err)
}
