package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertUserRefreshesName(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	joined := time.Date(2025, 8, 25, 9, 0, 0, 0, time.UTC)

	d.now = func() time.Time { return joined }
	require.NoError(t, d.UpsertUser(ctx, "u1", "alice"))
	d.now = func() time.Time { return joined.Add(48 * time.Hour) }
	require.NoError(t, d.UpsertUser(ctx, "u1", "alice_renamed"))

	user, err := d.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice_renamed", user.Username)
	assert.True(t, joined.Equal(user.JoinedAt))

	_, err = d.GetUser(ctx, "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWalletOverwrite(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := d.GetWallet(ctx, "u1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, d.SetWallet(ctx, "u1", "first-address-000000000000000000000"))
	require.NoError(t, d.SetWallet(ctx, "u1", " second-address-00000000000000000000 "))

	w, err := d.GetWallet(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "second-address-00000000000000000000", w.Address)
	assert.False(t, w.Verified)
}

func TestPayoutRecords(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	first, err := d.InsertPayout(ctx, PayoutRecord{WeekKey: week, UserID: "u1", Address: "addr1", Amount: 500, Confirmation: "sig1"})
	require.NoError(t, err)
	_, err = d.InsertPayout(ctx, PayoutRecord{WeekKey: "2025-W36", UserID: "u1", Address: "addr1", Amount: 7})
	require.NoError(t, err)

	records, err := d.ListPayouts(ctx, week)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, first.ID, records[0].ID)
	assert.Equal(t, int64(500), records[0].Amount)
	assert.Equal(t, "sig1", records[0].Confirmation)
}

func TestWeekKey(t *testing.T) {
	assert.Equal(t, "2025-W35", WeekKey(time.Date(2025, 8, 31, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, "2025-W36", WeekKey(time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)))
	// ISO year differs from the calendar year at the boundary
	assert.Equal(t, "2026-W01", WeekKey(time.Date(2025, 12, 29, 12, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2025-W35", WeekKey(time.Date(2025, 9, 1, 1, 0, 0, 0, time.FixedZone("CEST", 2*3600))))
}
