package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jarrodwatts/aborean-vault/internal/chain"
	"github.com/jarrodwatts/aborean-vault/internal/config"
	"github.com/jarrodwatts/aborean-vault/internal/journal"
	"github.com/jarrodwatts/aborean-vault/internal/journal/postgres"
	"github.com/jarrodwatts/aborean-vault/internal/keeper"
	"github.com/jarrodwatts/aborean-vault/internal/oracle"
	"github.com/jarrodwatts/aborean-vault/internal/position"
	"github.com/jarrodwatts/aborean-vault/internal/valuation"
	"github.com/jarrodwatts/aborean-vault/internal/vault"
	"github.com/jarrodwatts/aborean-vault/internal/venue"
	"github.com/jarrodwatts/aborean-vault/internal/venue/evm"
)

func main() {
	root := &cobra.Command{
		Use:          "vaultd",
		Short:        "Concentrated-liquidity yield vault daemon",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the vault keeper loop",
		RunE:  runKeeper,
	}
	addVaultFlags(runCmd)
	runCmd.Flags().Duration("compound-interval", time.Hour, "how often to compound rewards")
	runCmd.Flags().String("compound-threshold", "0", "skip compounding below this reward amount")
	runCmd.Flags().Duration("rebalance-check", 5*time.Minute, "how often to check the range")
	runCmd.Flags().Uint("max-retries", 5, "maximum retry attempts per operation")
	runCmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	root.AddCommand(runCmd)

	valueCmd := &cobra.Command{
		Use:   "value",
		Short: "Print the vault's current valuation and exit",
		RunE:  runValue,
	}
	addVaultFlags(valueCmd)
	root.AddCommand(valueCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addVaultFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "EVM RPC URL")
	cmd.Flags().String("pg-dsn", "", "optional Postgres DSN for the operation journal")
	cmd.Flags().String("journal", "./data/operations.jsonl", "operation journal JSONL path")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	cmd.Flags().String("pool", "", "pool contract address")
	cmd.Flags().String("quoter", "", "quoter contract address")
	cmd.Flags().String("router", "", "swap router contract address")
	cmd.Flags().String("position-manager", "", "position manager contract address")
	cmd.Flags().String("gauge", "", "staking gauge contract address")
	cmd.Flags().String("price-feed", "", "price feed contract address")
	cmd.Flags().String("voter", "", "emissions voter contract address")
	cmd.Flags().String("escrow", "", "voting escrow contract address")

	cmd.Flags().String("token0", "", "pool token0 address")
	cmd.Flags().String("token1", "", "pool token1 address")
	cmd.Flags().String("reward-token", "", "gauge reward token address")
	cmd.Flags().String("vault-address", "", "vault's own account address")

	cmd.Flags().String("token0-feed", "", "price feed id for token0")
	cmd.Flags().String("token1-feed", "", "price feed id for token1")
	cmd.Flags().Bool("base-is-token0", true, "denominate the vault in token0")

	cmd.Flags().String("admin", "", "admin account address")
	cmd.Flags().String("operator", "", "keeper operator address (defaults to admin)")

	cmd.Flags().Uint64("position-id", 0, "existing position to attach on startup")
	cmd.Flags().Bool("position-staked", true, "attached position is staked")

	cmd.Flags().Int32("tick-spacing", 60, "pool tick spacing")
	cmd.Flags().String("min-deposit", "1000000", "minimum deposit in base units")
	cmd.Flags().Uint32("swap-slippage-bps", 50, "per-swap slippage bound in bps")
	cmd.Flags().Uint32("withdraw-floor-bps", 9800, "minimum withdrawal payout in bps")
	cmd.Flags().Int32("range-width-ticks", 1824, "half-width of a fresh range in ticks")
	cmd.Flags().Duration("oracle-max-age", time.Minute, "maximum accepted quote age")
	cmd.Flags().Duration("tx-timeout", time.Minute, "deadline for venue calls")
}

func runKeeper(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, cleanup, err := buildVault(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	threshold, err := cfg.CompoundThresholdAmount()
	if err != nil {
		return err
	}
	k := keeper.NewKeeper(keeper.Config{
		Operator:          cfg.Operator,
		CompoundInterval:  cfg.CompoundInterval,
		RebalanceCheck:    cfg.RebalanceCheck,
		CompoundThreshold: threshold,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
	}, v, logger)

	logger.Info("vaultd start",
		zap.String("rpc", cfg.RPCURL),
		zap.String("pool", cfg.Pool),
		zap.Duration("compound_interval", cfg.CompoundInterval),
		zap.Duration("rebalance_check", cfg.RebalanceCheck),
	)

	if err := k.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func runValue(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, cleanup, err := buildVault(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	totalValue, err := v.TotalValue(ctx)
	if err != nil {
		return fmt.Errorf("total value: %w", err)
	}
	sharePrice, err := v.SharePrice(ctx)
	if err != nil {
		return fmt.Errorf("share price: %w", err)
	}

	fmt.Printf("total_value: %s\n", totalValue)
	fmt.Printf("total_supply: %s\n", v.TotalSupply())
	fmt.Printf("share_price: %s\n", sharePrice)
	return nil
}

// buildVault wires the live adapters, the valuation path, and the journal
// sinks into a Vault. The returned cleanup closes the chain client and the
// optional Postgres store.
func buildVault(ctx context.Context, cfg config.Config, logger *zap.Logger) (*vault.Vault, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	minDeposit, err := cfg.MinDepositAmount()
	if err != nil {
		return nil, nil, err
	}

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect rpc: %w", err)
	}
	closers := []func(){client.Close}

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("read chain id: %w", err)
	}
	head, err := client.LatestBlockNumber(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("read head block: %w", err)
	}
	logger.Info("connected",
		zap.String("chain_id", chainID.String()),
		zap.Uint64("head", head),
	)
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	from := common.HexToAddress(cfg.Admin)
	tx := evm.NewNodeTransactor(client, from, time.Second, logger)

	pool := evm.NewPool(client, common.HexToAddress(cfg.Pool))
	router := evm.NewRouter(client, tx, common.HexToAddress(cfg.Quoter), common.HexToAddress(cfg.Router))
	positions := evm.NewPositionManager(client, tx, common.HexToAddress(cfg.PositionManager))
	gauge := evm.NewGauge(client, tx, common.HexToAddress(cfg.Gauge))
	feed := evm.NewPriceFeed(client, common.HexToAddress(cfg.PriceFeed))

	var governor *evm.Governor
	if cfg.Voter != "" && cfg.Escrow != "" {
		governor = evm.NewGovernor(tx, common.HexToAddress(cfg.Voter), common.HexToAddress(cfg.Escrow))
	}

	ledger, err := position.NewLedger(position.Config{
		Token0:      common.HexToAddress(cfg.Token0),
		Token1:      common.HexToAddress(cfg.Token1),
		TickSpacing: cfg.TickSpacing,
		SlippageBps: 500,
		Recipient:   common.HexToAddress(cfg.VaultAddr),
	}, positions, gauge, pool, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	if cfg.PositionID != 0 {
		if err := ledger.Attach(ctx, cfg.PositionID, cfg.PositionStaked); err != nil {
			cleanup()
			return nil, nil, err
		}
	}

	adapter := oracle.NewAdapter(feed, cfg.OracleMaxAge, logger)
	engine, err := valuation.NewEngine(valuation.Config{
		Token0Feed:   cfg.Token0Feed,
		Token1Feed:   cfg.Token1Feed,
		BaseIsToken0: cfg.BaseIsToken0,
	}, pool, adapter, ledger, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	sinks := journal.Multi{journal.NewJsonlSink(cfg.JournalPath)}
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, store.Close)
		if err := store.Init(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("init journal schema: %w", err)
		}
		sinks = append(sinks, store)
	}

	params := vault.Params{
		Admin:            cfg.Admin,
		VaultAddress:     common.HexToAddress(cfg.VaultAddr),
		Token0:           common.HexToAddress(cfg.Token0),
		Token1:           common.HexToAddress(cfg.Token1),
		BaseIsToken0:     cfg.BaseIsToken0,
		TickSpacing:      cfg.TickSpacing,
		RewardToken:      common.HexToAddress(cfg.RewardToken),
		MinDeposit:       minDeposit,
		SwapSlippageBps:  cfg.SwapSlippageBps,
		WithdrawFloorBps: cfg.WithdrawFloorBps,
		RangeWidthTicks:  cfg.RangeWidthTicks,
		TxTimeout:        cfg.TxTimeout,
	}

	v, err := vault.New(params, ledger, engine, router, pool, governorOrNil(governor), sinks, logger)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return v, cleanup, nil
}

// governorOrNil keeps a missing governor as a nil interface rather than a
// non-nil interface wrapping a nil pointer.
func governorOrNil(g *evm.Governor) venue.Governor {
	if g == nil {
		return nil
	}
	return g
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
