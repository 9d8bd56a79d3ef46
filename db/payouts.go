package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// InsertPayout appends an audit record. ID and CreatedAt are filled in when zero.
func (d *DB) InsertPayout(ctx context.Context, record PayoutRecord) (PayoutRecord, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = d.clock()
	}

	query := `INSERT INTO payouts (id, week_key, user_id, address, amount, confirmation, created_at)
		VALUES (:id, :week_key, :user_id, :address, :amount, :confirmation, :created_at)`
	if _, err := d.x.NamedExecContext(ctx, query, record); err != nil {
		return PayoutRecord{}, fmt.Errorf("error inserting payout: %w", err)
	}
	return record, nil
}

// ListPayouts returns the week's payout records in creation order.
func (d *DB) ListPayouts(ctx context.Context, weekKey string) ([]PayoutRecord, error) {
	var records []PayoutRecord
	query := `SELECT id, week_key, user_id, address, amount, confirmation, created_at
		FROM payouts WHERE week_key = ? ORDER BY created_at ASC, id ASC`
	if err := d.x.SelectContext(ctx, &records, d.x.Rebind(query), weekKey); err != nil {
		return nil, fmt.Errorf("error listing payouts: %w", err)
	}
	return records, nil
}
