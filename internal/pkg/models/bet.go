package models

import (
	"fmt"
	"time"
)

// BetStatus is the settlement state of a placed bet.
type BetStatus string

const (
	BetPending BetStatus = "pending"
	BetWon     BetStatus = "won"
	BetLost    BetStatus = "lost"
	BetPush    BetStatus = "push"
)

func ParseBetStatus(s string) (BetStatus, error) {
	switch BetStatus(s) {
	case BetPending, BetWon, BetLost, BetPush:
		return BetStatus(s), nil
	}
	return "", fmt.Errorf("unknown bet status %q", s)
}

func (s BetStatus) Settled() bool { return s == BetWon || s == BetLost || s == BetPush }

// Bet records a user's decision to place an alerted drop.
type Bet struct {
	ID             string     `json:"id"`
	UserID         int64      `json:"user_id"`
	DropID         string     `json:"drop_id"`
	Kind           Kind       `json:"kind"`
	MatchName      string     `json:"match_name"`
	TotalStake     float64    `json:"total_stake"`
	ExpectedProfit float64    `json:"expected_profit"`
	ActualProfit   *float64   `json:"actual_profit,omitempty"`
	Status         BetStatus  `json:"status"`
	PlacedAt       time.Time  `json:"placed_at"`
	MatchDate      *time.Time `json:"match_date,omitempty"`
}
