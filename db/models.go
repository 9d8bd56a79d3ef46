package db

import (
	"time"

	"github.com/google/uuid"
)

// Label is one of the four multiple-choice option labels.
type Label string

const (
	LabelA Label = "A"
	LabelB Label = "B"
	LabelC Label = "C"
	LabelD Label = "D"
)

// Labels lists the option labels in display order.
var Labels = []Label{LabelA, LabelB, LabelC, LabelD}

// Valid reports whether l is one of A, B, C or D.
func (l Label) Valid() bool {
	switch l {
	case LabelA, LabelB, LabelC, LabelD:
		return true
	}
	return false
}

// Question is a fetched multiple-choice question. It is never persisted.
type Question struct {
	Category string
	Prompt   string
	Options  map[Label]string
	Correct  Label
}

// User is a chat-platform identity.
type User struct {
	ID       string    `db:"id"`
	Username string    `db:"username"`
	JoinedAt time.Time `db:"joined_at"`
}

// Wallet is a user's registered payout address.
type Wallet struct {
	UserID   string `db:"user_id"`
	Address  string `db:"address"`
	Verified bool   `db:"verified"`
}

// WeeklyScore is a user's aggregate for one week.
type WeeklyScore struct {
	UserID    string    `db:"user_id"`
	Username  string    `db:"username"`
	WeekKey   string    `db:"week_key"`
	Points    int       `db:"points"`
	Correct   int       `db:"correct"`
	Wrong     int       `db:"wrong"`
	Streak    int       `db:"streak"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PayoutRecord is an audit row for a computed payout.
type PayoutRecord struct {
	ID           uuid.UUID `db:"id"`
	WeekKey      string    `db:"week_key"`
	UserID       string    `db:"user_id"`
	Address      string    `db:"address"`
	Amount       int64     `db:"amount"`
	Confirmation string    `db:"confirmation"`
	CreatedAt    time.Time `db:"created_at"`
}
