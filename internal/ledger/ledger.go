// Package ledger records bets users place from alerts and aggregates their results.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
	"github.com/Vodeneev/dropalerts/internal/render"
)

var (
	ErrInvalidBet    = errors.New("invalid bet")
	ErrInvalidStatus = errors.New("invalid bet status")
)

// Store is the persistence the ledger reads and writes.
type Store interface {
	storage.BetStore
	GetByID(ctx context.Context, id string) (*models.Drop, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
}

// Quoter prices a drop for a user. *render.Renderer satisfies it.
type Quoter interface {
	Render(d *models.Drop, u *models.User) (render.Alert, error)
}

type Ledger struct {
	store  Store
	quoter Quoter
	log    *slog.Logger
	now    func() time.Time
}

func New(store Store, quoter Quoter, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		quoter: quoter,
		log:    logger.With("component", "ledger"),
		now:    time.Now,
	}
}

// BetInput is what a caller knows when recording a bet.
type BetInput struct {
	UserID         int64
	DropID         string
	Kind           models.Kind
	MatchName      string
	TotalStake     float64
	ExpectedProfit float64
	MatchDate      *time.Time
}

// RecordBet stores the bet once per (user, drop). created is false when the
// bet already existed; the stored row is returned either way.
func (l *Ledger) RecordBet(ctx context.Context, in BetInput) (*models.Bet, bool, error) {
	if in.UserID == 0 || in.DropID == "" {
		return nil, false, fmt.Errorf("%w: user and drop are required", ErrInvalidBet)
	}
	if !in.Kind.Valid() {
		return nil, false, fmt.Errorf("%w: unknown kind %q", ErrInvalidBet, in.Kind)
	}
	if in.TotalStake < 0 {
		return nil, false, fmt.Errorf("%w: negative stake", ErrInvalidBet)
	}

	bet, created, err := l.store.InsertBet(ctx, &models.Bet{
		UserID:         in.UserID,
		DropID:         in.DropID,
		Kind:           in.Kind,
		MatchName:      in.MatchName,
		TotalStake:     round2(in.TotalStake),
		ExpectedProfit: round2(in.ExpectedProfit),
		Status:         models.BetPending,
		PlacedAt:       l.now().UTC(),
		MatchDate:      in.MatchDate,
	})
	if err != nil {
		return nil, false, err
	}
	if created {
		l.log.Info("Bet recorded", "bet_id", bet.ID, "user_id", bet.UserID, "drop_id", bet.DropID, "kind", bet.Kind)
	}
	return bet, created, nil
}

// RecordFromAlert records the bet a user confirmed from an alert. Stake and
// expected profit are re-derived from the stored drop and the user's settings.
func (l *Ledger) RecordFromAlert(ctx context.Context, userID int64, dropID string) (*models.Bet, bool, error) {
	d, err := l.store.GetByID(ctx, dropID)
	if err != nil {
		return nil, false, fmt.Errorf("load drop %s: %w", dropID, err)
	}
	u, err := l.store.GetUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("load user %d: %w", userID, err)
	}
	alert, err := l.quoter.Render(d, u)
	if err != nil {
		return nil, false, fmt.Errorf("price drop %s: %w", dropID, err)
	}
	return l.RecordBet(ctx, BetInput{
		UserID:         userID,
		DropID:         d.ID,
		Kind:           d.Kind,
		MatchName:      d.Match,
		TotalStake:     alert.TotalStake,
		ExpectedProfit: alert.ExpectedProfit,
		MatchDate:      d.CommenceTime,
	})
}

// UpdateOutcome settles a bet. When actualProfit is nil it is derived from
// the status: won books the expected profit, lost the whole stake, push zero.
func (l *Ledger) UpdateOutcome(ctx context.Context, betID string, status models.BetStatus, actualProfit *float64) (*models.Bet, error) {
	if _, err := models.ParseBetStatus(string(status)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStatus, err)
	}
	bet, err := l.store.GetBet(ctx, betID)
	if err != nil {
		return nil, err
	}

	profit := actualProfit
	if profit == nil {
		profit = deriveProfit(bet, status)
	} else {
		v := round2(*profit)
		profit = &v
	}
	if err := l.store.UpdateBetOutcome(ctx, betID, status, profit); err != nil {
		return nil, err
	}
	bet.Status = status
	bet.ActualProfit = profit
	l.log.Info("Bet settled", "bet_id", betID, "user_id", bet.UserID, "status", status)
	return bet, nil
}

func deriveProfit(b *models.Bet, status models.BetStatus) *float64 {
	var v float64
	switch status {
	case models.BetWon:
		v = b.ExpectedProfit
	case models.BetLost:
		v = -b.TotalStake
	case models.BetPush:
		v = 0
	default:
		return nil
	}
	return &v
}

// Stats are a user's aggregate results over a window.
type Stats struct {
	UserID       int64                    `json:"user_id"`
	Since        *time.Time               `json:"since,omitempty"`
	TotalBets    int                      `json:"total_bets"`
	SettledBets  int                      `json:"settled_bets"`
	TotalStake   float64                  `json:"total_stake"`
	SettledStake float64                  `json:"settled_stake"`
	TotalProfit  float64                  `json:"total_profit"`
	ROIPct       float64                  `json:"roi_pct"`
	CountsByKind map[models.Kind]int      `json:"counts_by_kind"`
	ByStatus     map[models.BetStatus]int `json:"by_status"`
}

// Aggregate sums the user's bets placed within window of now. A zero window
// covers all history. Profit and ROI only count settled bets.
func (l *Ledger) Aggregate(ctx context.Context, userID int64, window time.Duration) (Stats, error) {
	var since time.Time
	if window > 0 {
		since = l.now().Add(-window)
	}
	bets, err := l.store.ListBets(ctx, userID, since)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		UserID:       userID,
		CountsByKind: make(map[models.Kind]int),
		ByStatus:     make(map[models.BetStatus]int),
	}
	if !since.IsZero() {
		st.Since = &since
	}

	var stake, settled, profit decimal.Decimal
	for _, b := range bets {
		st.TotalBets++
		st.CountsByKind[b.Kind]++
		st.ByStatus[b.Status]++
		stake = stake.Add(decimal.NewFromFloat(b.TotalStake))
		if !b.Status.Settled() {
			continue
		}
		st.SettledBets++
		settled = settled.Add(decimal.NewFromFloat(b.TotalStake))
		if b.ActualProfit != nil {
			profit = profit.Add(decimal.NewFromFloat(*b.ActualProfit))
		}
	}

	st.TotalStake = stake.Round(2).InexactFloat64()
	st.SettledStake = settled.Round(2).InexactFloat64()
	st.TotalProfit = profit.Round(2).InexactFloat64()
	if settled.IsPositive() {
		st.ROIPct = profit.Div(settled).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
	}
	return st, nil
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
