package payout

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const week = "2025-W35"

const (
	walletA = "AAAAaaaa1111111111111111111111111111"
	walletB = "BBBBbbbb2222222222222222222222222222"
	walletC = "CCCCcccc3333333333333333333333333333"
)

func openStore(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(context.Background(), "", filepath.Join(t.TempDir(), "trivia.db"), logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func seed(t *testing.T, d *db.DB, points map[string]int, wallets map[string]string) {
	t.Helper()
	ctx := context.Background()
	for user, p := range points {
		require.NoError(t, d.UpsertUser(ctx, user, "user "+user))
		if p == 0 {
			require.NoError(t, d.ApplyWrong(ctx, user, week))
			continue
		}
		require.NoError(t, d.ApplyCorrect(ctx, user, week, p))
	}
	for user, addr := range wallets {
		require.NoError(t, d.SetWallet(ctx, user, addr))
	}
}

func TestSplit(t *testing.T) {
	shares, remainder := Split(1000, []int{30, 20, 10})
	assert.Equal(t, []int64{500, 333, 166}, shares)
	assert.Equal(t, int64(1), remainder)

	shares, remainder = Split(7, []int{1, 1, 1})
	assert.Equal(t, []int64{2, 2, 2}, shares)
	assert.Equal(t, int64(1), remainder)

	shares, remainder = Split(100, []int{0, 0})
	assert.Equal(t, []int64{0, 0}, shares)
	assert.Equal(t, int64(100), remainder)
}

func TestSplitLargePoolDoesNotOverflow(t *testing.T) {
	const pool = int64(9_000_000_000_000_000_000)
	shares, remainder := Split(pool, []int{3, 1})
	assert.Equal(t, []int64{6_750_000_000_000_000_000, 2_250_000_000_000_000_000}, shares)
	assert.Equal(t, int64(0), remainder)
}

func TestComputeSharesDryRun(t *testing.T) {
	d := openStore(t)
	seed(t, d, map[string]int{"A": 30, "B": 20, "C": 10, "D": 5},
		map[string]string{"A": walletA, "B": walletB, "C": walletC})

	e := NewEstimator(d, NewTransferer(true), logging.Discard())
	report, err := e.ComputeShares(context.Background(), week, 3, 1000)
	require.NoError(t, err)

	require.Len(t, report.Paid, 3)
	assert.Equal(t, []int64{500, 333, 166}, []int64{report.Paid[0].Amount, report.Paid[1].Amount, report.Paid[2].Amount})
	assert.Equal(t, "DRY_RUN_TX_SIG_AAAAaaaa", report.Paid[0].Confirmation)
	assert.Equal(t, "DRY_RUN_TX_SIG_BBBBbbbb", report.Paid[1].Confirmation)
	assert.Equal(t, int64(60), report.TotalPoints)
	assert.Equal(t, int64(999), report.Allocated)
	assert.Equal(t, int64(1), report.Remainder)
	assert.True(t, report.DryRun)
	assert.Empty(t, report.Skipped)

	records, err := d.ListPayouts(context.Background(), week)
	require.NoError(t, err)
	require.Len(t, records, 3)
	var sum int64
	for _, r := range records {
		sum += r.Amount
		assert.NotEmpty(t, r.ID.String())
	}
	assert.Equal(t, int64(999), sum)

	assert.Contains(t, report.String(), "- user A: 500 -> DRY_RUN_TX_SIG_AAAAaaaa")
}

func TestComputeSharesSkipsMissingWallet(t *testing.T) {
	d := openStore(t)
	seed(t, d, map[string]int{"A": 30, "B": 20, "C": 10}, map[string]string{"A": walletA, "C": walletC})

	report, err := NewEstimator(d, DryRun{}, logging.Discard()).ComputeShares(context.Background(), week, 3, 1000)
	require.NoError(t, err)

	require.Len(t, report.Skipped, 1)
	assert.Equal(t, "B", report.Skipped[0].UserID)
	assert.ErrorIs(t, report.Skipped[0].Err, ErrMissingAddress)
	assert.Len(t, report.Paid, 2)
	assert.Contains(t, report.String(), "user B: NO WALLET ON FILE -> skipped")

	records, err := d.ListPayouts(context.Background(), week)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestComputeSharesNothingToPayout(t *testing.T) {
	d := openStore(t)
	e := NewEstimator(d, DryRun{}, logging.Discard())

	_, err := e.ComputeShares(context.Background(), week, 3, 1000)
	assert.ErrorIs(t, err, ErrNothingToPayout)

	seed(t, d, map[string]int{"A": 0, "B": 0}, nil)
	_, err = e.ComputeShares(context.Background(), week, 3, 1000)
	assert.ErrorIs(t, err, ErrNothingToPayout)

	_, err = e.ComputeShares(context.Background(), week, 0, 1000)
	assert.ErrorIs(t, err, ErrNothingToPayout)
}

func TestComputeSharesLiveModeRefuses(t *testing.T) {
	d := openStore(t)
	seed(t, d, map[string]int{"A": 30}, map[string]string{"A": walletA})

	report, err := NewEstimator(d, NewTransferer(false), logging.Discard()).ComputeShares(context.Background(), week, 3, 1000)
	require.NoError(t, err)
	assert.False(t, report.DryRun)
	require.Len(t, report.Failed, 1)
	assert.ErrorIs(t, report.Failed[0].Err, ErrLiveTransferUnsupported)

	records, err := d.ListPayouts(context.Background(), week)
	require.NoError(t, err)
	assert.Empty(t, records)
}

type brokenStore struct {
	Store
}

func (brokenStore) TopN(context.Context, string, int) ([]db.WeeklyScore, error) {
	return nil, errors.New("connection reset")
}

func TestComputeSharesStoreError(t *testing.T) {
	_, err := NewEstimator(brokenStore{}, DryRun{}, logging.Discard()).ComputeShares(context.Background(), week, 3, 1000)
	assert.ErrorContains(t, err, "connection reset")
}

func TestDryRunConfirmation(t *testing.T) {
	sig, err := DryRun{}.Transfer(context.Background(), "short", 1)
	require.NoError(t, err)
	assert.Equal(t, "DRY_RUN_TX_SIG_short", sig)

	sig, err = DryRun{}.Transfer(context.Background(), "", 1)
	require.NoError(t, err)
	assert.Equal(t, "DRY_RUN_TX_SIG_WALLET", sig)
}
