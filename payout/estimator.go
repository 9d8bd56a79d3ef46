package payout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/airylvat/trivia-league/db"
	"github.com/airylvat/trivia-league/logging"
	"github.com/airylvat/trivia-league/metrics"
	"github.com/shopspring/decimal"
)

var (
	ErrNothingToPayout = errors.New("nothing to pay out")
	ErrMissingAddress  = errors.New("no wallet on file")
)

// Store is what the estimator reads and records.
type Store interface {
	TopN(ctx context.Context, weekKey string, n int) ([]db.WeeklyScore, error)
	GetWallet(ctx context.Context, userID string) (*db.Wallet, error)
	InsertPayout(ctx context.Context, record db.PayoutRecord) (db.PayoutRecord, error)
}

// Share is one winner's cut.
type Share struct {
	UserID       string
	Username     string
	Points       int
	Address      string
	Amount       int64
	Confirmation string
	Err          error
}

func (s Share) name() string {
	if s.Username != "" {
		return s.Username
	}
	return s.UserID
}

// Report is the outcome of one payout run.
type Report struct {
	WeekKey     string
	Pool        int64
	DryRun      bool
	TotalPoints int64
	Paid        []Share
	Skipped     []Share
	Failed      []Share
	// Allocated is the sum of all computed shares, paid or not.
	Allocated int64
	Remainder int64
}

// String renders the report for an admin.
func (r *Report) String() string {
	lines := []string{fmt.Sprintf("Payouts for %s (pool=%d units, dry_run=%t):", r.WeekKey, r.Pool, r.DryRun)}
	for _, s := range r.Paid {
		lines = append(lines, fmt.Sprintf("- %s: %d -> %s", s.name(), s.Amount, s.Confirmation))
	}
	for _, s := range r.Skipped {
		lines = append(lines, fmt.Sprintf("- %s: NO WALLET ON FILE -> skipped", s.name()))
	}
	for _, s := range r.Failed {
		lines = append(lines, fmt.Sprintf("- %s: %d -> failed: %v", s.name(), s.Amount, s.Err))
	}
	lines = append(lines, fmt.Sprintf("Allocated %d, unallocated remainder %d.", r.Allocated, r.Remainder))
	return strings.Join(lines, "\n")
}

// Split divides pool among points proportionally, rounding every share
// down. The remainder is left unallocated.
func Split(pool int64, points []int) ([]int64, int64) {
	var total int64
	for _, p := range points {
		total += int64(p)
	}
	shares := make([]int64, len(points))
	if total <= 0 {
		return shares, pool
	}

	dPool := decimal.NewFromInt(pool)
	dTotal := decimal.NewFromInt(total)
	var allocated int64
	for i, p := range points {
		q, _ := dPool.Mul(decimal.NewFromInt(int64(p))).QuoRem(dTotal, 0)
		shares[i] = q.IntPart()
		allocated += shares[i]
	}
	return shares, pool - allocated
}

// Estimator computes and records weekly payouts for the top scorers.
type Estimator struct {
	store    Store
	transfer Transferer
	dryRun   bool
	logger   *logging.Logger
}

func NewEstimator(store Store, transfer Transferer, logger *logging.Logger) *Estimator {
	if logger == nil {
		logger = logging.Default()
	}
	_, dry := transfer.(DryRun)
	return &Estimator{store: store, transfer: transfer, dryRun: dry, logger: logger.Component("payout")}
}

// ComputeShares pays the top winnersCount scorers of weekKey their floor
// share of pool. Winners without a wallet are skipped; a failed transfer is
// reported and does not stop the others.
func (e *Estimator) ComputeShares(ctx context.Context, weekKey string, winnersCount int, pool int64) (*Report, error) {
	if winnersCount < 1 {
		return nil, ErrNothingToPayout
	}
	top, err := e.store.TopN(ctx, weekKey, winnersCount)
	if err != nil {
		return nil, fmt.Errorf("error reading winners for %s: %w", weekKey, err)
	}

	points := make([]int, len(top))
	var total int64
	for i, s := range top {
		points[i] = s.Points
		total += int64(s.Points)
	}
	if len(top) == 0 || total <= 0 {
		return nil, ErrNothingToPayout
	}

	amounts, remainder := Split(pool, points)
	report := &Report{
		WeekKey:     weekKey,
		Pool:        pool,
		DryRun:      e.dryRun,
		TotalPoints: total,
		Allocated:   pool - remainder,
		Remainder:   remainder,
	}

	for i, s := range top {
		share := Share{UserID: s.UserID, Username: s.Username, Points: s.Points, Amount: amounts[i]}

		wallet, err := e.store.GetWallet(ctx, s.UserID)
		if errors.Is(err, db.ErrNotFound) || (err == nil && wallet.Address == "") {
			share.Err = fmt.Errorf("%w: user %s", ErrMissingAddress, s.UserID)
			report.Skipped = append(report.Skipped, share)
			metrics.PayoutSharesTotal.WithLabelValues("skipped").Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("error reading wallet for %s: %w", s.UserID, err)
		}
		share.Address = wallet.Address

		confirmation, err := e.transfer.Transfer(ctx, share.Address, share.Amount)
		if err != nil {
			share.Err = err
			report.Failed = append(report.Failed, share)
			metrics.PayoutSharesTotal.WithLabelValues("failed").Inc()
			e.logger.Error("transfer failed", "week", weekKey, "user_id", s.UserID, "error", err.Error())
			continue
		}
		share.Confirmation = confirmation

		if _, err := e.store.InsertPayout(ctx, db.PayoutRecord{
			WeekKey:      weekKey,
			UserID:       s.UserID,
			Address:      share.Address,
			Amount:       share.Amount,
			Confirmation: confirmation,
		}); err != nil {
			return nil, fmt.Errorf("error recording payout for %s: %w", s.UserID, err)
		}
		report.Paid = append(report.Paid, share)
		metrics.PayoutSharesTotal.WithLabelValues("transferred").Inc()
	}

	e.logger.Info("payout computed", "week", weekKey, "paid", len(report.Paid),
		"skipped", len(report.Skipped), "failed", len(report.Failed), "remainder", remainder)
	return report, nil
}
