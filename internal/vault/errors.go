package vault

import "errors"

var (
	// Validation failures, rejected before any state mutation.
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrZeroAddress        = errors.New("owner address is empty")
	ErrBelowMinimum       = errors.New("deposit below minimum")
	ErrZeroShares         = errors.New("deposit too small to mint shares")
	ErrInsufficientShares = errors.New("insufficient share balance")
	ErrZeroTotalValue     = errors.New("total value is zero with shares outstanding")

	// Authorization failures, rejected before any external call.
	ErrNotAdmin = errors.New("caller is not the vault admin")
	ErrPaused   = errors.New("vault is paused")

	// ErrReentrant aborts a guarded entry point invoked while another
	// guarded operation is still running. Only the inner call fails.
	ErrReentrant = errors.New("reentrant call rejected")

	// ErrSlippage aborts a withdrawal whose base-asset proceeds fall below
	// the configured floor.
	ErrSlippage = errors.New("withdrawal proceeds below floor")
)
