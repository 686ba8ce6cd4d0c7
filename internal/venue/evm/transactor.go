package evm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"github.com/jarrodwatts/aborean-vault/internal/chain"
)

// ErrTransactionReverted reports a mined transaction with a failed status.
var ErrTransactionReverted = errors.New("evm: transaction reverted")

// NodeTransactor submits state-changing calls through a node-managed account.
// Each Send first simulates the call to capture return data and surface
// reverts cheaply, then submits the real transaction and waits for its
// receipt.
type NodeTransactor struct {
	client       *chain.Client
	from         common.Address
	pollInterval time.Duration
	logger       *zap.Logger
}

func NewNodeTransactor(client *chain.Client, from common.Address, pollInterval time.Duration, logger *zap.Logger) *NodeTransactor {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NodeTransactor{client: client, from: from, pollInterval: pollInterval, logger: logger}
}

func (t *NodeTransactor) Send(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{From: t.from, To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("simulate call to %s: %w", to, err)
	}

	txHash, err := t.client.SendTransaction(ctx, t.from, to, data)
	if err != nil {
		return nil, fmt.Errorf("send transaction to %s: %w", to, err)
	}
	t.logger.Debug("transaction submitted", zap.String("tx", txHash.Hex()), zap.String("to", to.Hex()))

	receipt, err := t.waitMined(ctx, txHash)
	if err != nil {
		return nil, err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("%w: %s", ErrTransactionReverted, txHash)
	}
	return out, nil
}

func (t *NodeTransactor) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := t.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("receipt for %s: %w", txHash, err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
