// Package keeper runs the vault's periodic maintenance loop: harvest and
// compound reward emissions on an interval, and rebalance the position when
// the pool price has left its range.
package keeper

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/avast/retry-go/v4"
	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/vault"
)

// Config holds runtime settings for the keeper loop.
type Config struct {
	Operator         string
	CompoundInterval time.Duration
	RebalanceCheck   time.Duration

	// CompoundThreshold skips compounding while pending rewards are below
	// this amount in reward-token units. Nil or zero compounds everything.
	CompoundThreshold *big.Int

	MaxRetries   uint
	RetryBackoff time.Duration
}

// Keeper drives compound and rebalance operations against a vault.
type Keeper struct {
	cfg    Config
	vault  *vault.Vault
	logger *zap.Logger
}

// NewKeeper builds a Keeper with its dependencies.
func NewKeeper(cfg Config, v *vault.Vault, logger *zap.Logger) *Keeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Keeper{cfg: cfg, vault: v, logger: logger}
}

// Run executes the maintenance loop until ctx is cancelled.
func (k *Keeper) Run(ctx context.Context) error {
	if k.vault == nil {
		return fmt.Errorf("vault is nil")
	}
	if k.cfg.CompoundInterval <= 0 {
		return fmt.Errorf("compound interval must be greater than zero")
	}
	if k.cfg.RebalanceCheck <= 0 {
		return fmt.Errorf("rebalance check interval must be greater than zero")
	}

	compoundTicker := time.NewTicker(k.cfg.CompoundInterval)
	defer compoundTicker.Stop()
	rebalanceTicker := time.NewTicker(k.cfg.RebalanceCheck)
	defer rebalanceTicker.Stop()

	k.logger.Info("keeper started",
		zap.Duration("compound_interval", k.cfg.CompoundInterval),
		zap.Duration("rebalance_check", k.cfg.RebalanceCheck))

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("keeper stopped")
			return ctx.Err()
		case <-compoundTicker.C:
			if err := k.CompoundOnce(ctx); err != nil {
				k.logger.Error("compound failed", zap.Error(err))
			}
		case <-rebalanceTicker.C:
			if err := k.RebalanceIfNeeded(ctx); err != nil {
				k.logger.Error("rebalance failed", zap.Error(err))
			}
		}
	}
}

// CompoundOnce harvests pending rewards and folds them back into the
// position. A vault with nothing to compound is not an error.
func (k *Keeper) CompoundOnce(ctx context.Context) error {
	if k.cfg.CompoundThreshold != nil && k.cfg.CompoundThreshold.Sign() > 0 {
		pending, err := k.vault.PendingRewards(ctx)
		if err != nil {
			return fmt.Errorf("check pending rewards: %w", err)
		}
		if pending.Cmp(k.cfg.CompoundThreshold) < 0 {
			k.logger.Debug("pending rewards below threshold, skipping compound",
				zap.String("pending", pending.String()),
				zap.String("threshold", k.cfg.CompoundThreshold.String()))
			return nil
		}
	}
	return k.withRetry(ctx, "compound", func() error {
		added, err := k.vault.Compound(ctx, k.cfg.Operator)
		if err != nil {
			return err
		}
		if added.Sign() > 0 {
			k.logger.Info("compounded rewards", zap.String("amount", added.String()))
		}
		return nil
	})
}

// RebalanceIfNeeded recenters the position when the pool tick has moved
// outside the current range.
func (k *Keeper) RebalanceIfNeeded(ctx context.Context) error {
	needed, err := k.vault.NeedsRebalance(ctx)
	if err != nil {
		return fmt.Errorf("check rebalance: %w", err)
	}
	if !needed {
		return nil
	}

	k.logger.Info("position out of range, rebalancing")
	return k.withRetry(ctx, "rebalance", func() error {
		return k.vault.Rebalance(ctx, k.cfg.Operator)
	})
}

func (k *Keeper) withRetry(ctx context.Context, op string, fn func() error) error {
	attempts := k.cfg.MaxRetries
	if attempts == 0 {
		attempts = 1
	}
	backoff := k.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}

	return retry.Do(fn,
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(backoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			k.logger.Warn("operation failed, retrying",
				zap.String("op", op), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
}
