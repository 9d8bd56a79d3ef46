package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const (
	insertScoreQuery = `INSERT INTO weekly_scores (user_id, week_key, points, correct, wrong, streak, updated_at)
		VALUES (?, ?, 0, 0, 0, 0, ?)
		ON CONFLICT (user_id, week_key) DO NOTHING`

	applyCorrectQuery = `UPDATE weekly_scores
		SET points = points + ?, correct = correct + 1, streak = streak + 1, updated_at = ?
		WHERE user_id = ? AND week_key = ?`

	// updated_at tracks when the points last changed, so a wrong answer leaves it alone
	applyWrongQuery = `UPDATE weekly_scores
		SET wrong = wrong + 1, streak = 0
		WHERE user_id = ? AND week_key = ?`

	selectScoreQuery = `SELECT s.user_id, COALESCE(u.username, '') AS username, s.week_key,
		s.points, s.correct, s.wrong, s.streak, s.updated_at
		FROM weekly_scores s
		LEFT JOIN users u ON u.id = s.user_id`
)

// GetOrCreate returns the user's row for the week, creating a zeroed one if
// it does not exist yet.
func (d *DB) GetOrCreate(ctx context.Context, userID, weekKey string) (*WeeklyScore, error) {
	_, err := d.x.ExecContext(ctx, d.x.Rebind(insertScoreQuery), userID, weekKey, d.clock())
	if err != nil {
		return nil, fmt.Errorf("error creating weekly score: %w", err)
	}
	return d.GetScore(ctx, userID, weekKey)
}

// GetScore returns the user's row for the week or ErrNotFound.
func (d *DB) GetScore(ctx context.Context, userID, weekKey string) (*WeeklyScore, error) {
	var score WeeklyScore
	query := selectScoreQuery + ` WHERE s.user_id = ? AND s.week_key = ?`
	err := d.x.GetContext(ctx, &score, d.x.Rebind(query), userID, weekKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting weekly score: %w", err)
	}
	return &score, nil
}

// ApplyCorrect adds points and one correct answer to the user's weekly row.
func (d *DB) ApplyCorrect(ctx context.Context, userID, weekKey string, points int) error {
	now := d.clock()
	if err := d.increment(ctx, userID, weekKey, applyCorrectQuery, points, now, userID, weekKey); err != nil {
		return fmt.Errorf("error applying correct answer: %w", err)
	}
	return nil
}

// ApplyWrong adds one wrong answer to the user's weekly row and resets the streak.
func (d *DB) ApplyWrong(ctx context.Context, userID, weekKey string) error {
	if err := d.increment(ctx, userID, weekKey, applyWrongQuery, userID, weekKey); err != nil {
		return fmt.Errorf("error applying wrong answer: %w", err)
	}
	return nil
}

// increment creates the row if needed and runs the update in one transaction.
// The update is a column increment, never a read-modify-write.
func (d *DB) increment(ctx context.Context, userID, weekKey, update string, args ...any) error {
	tx, err := d.x.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(insertScoreQuery), userID, weekKey, d.clock()); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(update), args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n != 1 {
		return fmt.Errorf("expected 1 row updated, got %d", n)
	}
	return tx.Commit()
}

// TopN returns up to n rows for the week ordered by points descending.
// Ties go to whoever reached the score first, then to the lower user id.
// n <= 0 returns every row.
func (d *DB) TopN(ctx context.Context, weekKey string, n int) ([]WeeklyScore, error) {
	query := selectScoreQuery + ` WHERE s.week_key = ?
		ORDER BY s.points DESC, s.updated_at ASC, s.user_id ASC`
	args := []any{weekKey}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	var scores []WeeklyScore
	if err := d.x.SelectContext(ctx, &scores, d.x.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("error listing weekly scores: %w", err)
	}
	return scores, nil
}
