// Package journal records the vault's mutating operations for audit and
// offline accounting. Sinks are pluggable; JSONL and Postgres ship here.
package journal

import (
	"context"
	"time"
)

// Operation kinds.
const (
	OpDeposit   = "deposit"
	OpWithdraw  = "withdraw"
	OpHarvest   = "harvest"
	OpCompound  = "compound"
	OpRebalance = "rebalance"
)

// Record is one journaled vault operation. Big integers are carried as
// decimal strings.
type Record struct {
	Op          string    `json:"op"`
	Owner       string    `json:"owner,omitempty"`
	AssetsIn    string    `json:"assets_in,omitempty"`
	AssetsOut   string    `json:"assets_out,omitempty"`
	Shares      string    `json:"shares,omitempty"`
	TotalValue  string    `json:"total_value,omitempty"`
	TotalSupply string    `json:"total_supply,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Sink accepts batches of operation records.
type Sink interface {
	Append(ctx context.Context, records []Record) error
}

// Multi fans records out to several sinks, failing on the first error.
type Multi []Sink

func (m Multi) Append(ctx context.Context, records []Record) error {
	for _, sink := range m {
		if err := sink.Append(ctx, records); err != nil {
			return err
		}
	}
	return nil
}
