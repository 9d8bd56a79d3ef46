package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// UpsertUser creates the user on first interaction and refreshes the display
// name on every later one.
func (d *DB) UpsertUser(ctx context.Context, id, username string) error {
	query := `INSERT INTO users (id, username, joined_at) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username`
	_, err := d.x.ExecContext(ctx, d.x.Rebind(query), id, strings.TrimSpace(username), d.clock())
	if err != nil {
		return fmt.Errorf("error upserting user: %w", err)
	}
	return nil
}

// GetUser returns the user or ErrNotFound.
func (d *DB) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := d.x.GetContext(ctx, &user, d.x.Rebind(`SELECT id, username, joined_at FROM users WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting user: %w", err)
	}
	return &user, nil
}

// SetWallet registers or replaces the user's payout address.
func (d *DB) SetWallet(ctx context.Context, userID, address string) error {
	query := `INSERT INTO wallets (user_id, address, verified) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET address = excluded.address, verified = excluded.verified`
	_, err := d.x.ExecContext(ctx, d.x.Rebind(query), userID, strings.TrimSpace(address), false)
	if err != nil {
		return fmt.Errorf("error saving wallet: %w", err)
	}
	return nil
}

// GetWallet returns the user's wallet or ErrNotFound.
func (d *DB) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	var wallet Wallet
	err := d.x.GetContext(ctx, &wallet, d.x.Rebind(`SELECT user_id, address, verified FROM wallets WHERE user_id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("error getting wallet: %w", err)
	}
	return &wallet, nil
}
