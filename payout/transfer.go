package payout

import (
	"context"
	"errors"
)

// ErrLiveTransferUnsupported is returned by the live transferer; this build
// never broadcasts real transactions.
var ErrLiveTransferUnsupported = errors.New("live transfers are not supported")

const dryRunPrefix = "DRY_RUN_TX_SIG_"

// Transferer sends amount smallest units to address and returns a
// confirmation token.
type Transferer interface {
	Transfer(ctx context.Context, address string, amount int64) (string, error)
}

// DryRun returns a synthetic confirmation derived from the address.
type DryRun struct{}

func (DryRun) Transfer(_ context.Context, address string, _ int64) (string, error) {
	prefix := address
	if prefix == "" {
		prefix = "WALLET"
	}
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return dryRunPrefix + prefix, nil
}

// Live refuses every transfer.
type Live struct{}

func (Live) Transfer(context.Context, string, int64) (string, error) {
	return "", ErrLiveTransferUnsupported
}

// NewTransferer picks the dry-run or live implementation.
func NewTransferer(dryRun bool) Transferer {
	if dryRun {
		return DryRun{}
	}
	return Live{}
}
