package storage

import (
	"context"
	"errors"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("storage: not found")

// UpsertResult reports whether Upsert created a row or merged into an existing one.
type UpsertResult struct {
	Inserted bool
	DropID   string
}

// DropStore persists canonical drops keyed by event id.
type DropStore interface {
	// Upsert inserts the drop or, when event_id already exists, overwrites the
	// mutable fields. first_received_at is kept from the first insertion.
	Upsert(ctx context.Context, d *models.Drop) (UpsertResult, error)
	GetByID(ctx context.Context, id string) (*models.Drop, error)
	GetByEventID(ctx context.Context, eventID string) (*models.Drop, error)
	// RecentByKind returns drops received at or after since, newest first. Empty kind means all kinds.
	RecentByKind(ctx context.Context, kind models.Kind, since time.Time, limit int) ([]*models.Drop, error)
	// CountToday counts drops received today in loc that a user of tier could receive.
	CountToday(ctx context.Context, kind models.Kind, tier models.TierKind, now time.Time, loc *time.Location) (int, error)
	UpdateEnrichment(ctx context.Context, eventID string, commenceTime *time.Time, deepLinks map[string]string) error
}

// UserStore reads subscriber profiles.
type UserStore interface {
	// ListCandidates returns up to limit users with user_id > afterID that are
	// active, not banned and have notifications on, ordered by user_id.
	ListCandidates(ctx context.Context, afterID int64, limit int) ([]*models.User, error)
	GetUser(ctx context.Context, id int64) (*models.User, error)
	SaveUser(ctx context.Context, u *models.User) error
}

// CounterStore holds the per-user daily quota counters.
type CounterStore interface {
	LoadCounters(ctx context.Context, userID int64) (models.Counters, error)
	SaveCounters(ctx context.Context, userID int64, c models.Counters) error
}

// BetStore persists the bet ledger.
type BetStore interface {
	// InsertBet stores b unless (user_id, drop_id) exists. It returns the stored
	// bet and whether this call created it.
	InsertBet(ctx context.Context, b *models.Bet) (*models.Bet, bool, error)
	GetBet(ctx context.Context, id string) (*models.Bet, error)
	UpdateBetOutcome(ctx context.Context, id string, status models.BetStatus, actualProfit *float64) error
	// ListBets returns a user's bets placed at or after since, oldest first. Zero since means all.
	ListBets(ctx context.Context, userID int64, since time.Time) ([]*models.Bet, error)
}
