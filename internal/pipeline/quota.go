package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/storage"
)

const quotaShards = 64

// QuotaGate enforces the daily cap and minimum spacing. Counter updates for one
// user are serialized by a sharded lock that is released before any send.
type QuotaGate struct {
	counters storage.CounterStore
	fallback *time.Location
	shards   [quotaShards]sync.Mutex
}

func NewQuotaGate(counters storage.CounterStore, fallback *time.Location) *QuotaGate {
	if fallback == nil {
		fallback = time.UTC
	}
	return &QuotaGate{counters: counters, fallback: fallback}
}

func (g *QuotaGate) lock(userID int64) *sync.Mutex {
	idx := userID % quotaShards
	if idx < 0 {
		idx = -idx
	}
	return &g.shards[idx]
}

// Admit loads the user's current counters, decides, and persists the increment
// on success. An empty Reason means admitted.
func (g *QuotaGate) Admit(ctx context.Context, u *models.User, now time.Time) (Reason, error) {
	mu := g.lock(u.ID)
	mu.Lock()
	defer mu.Unlock()

	current, err := g.counters.LoadCounters(ctx, u.ID)
	if errors.Is(err, storage.ErrNotFound) {
		current = u.Counters
	} else if err != nil {
		return ReasonCounterError, fmt.Errorf("load counters: %w", err)
	}

	next, reason := admit(current, u.Tier, models.DateKey(now, u.Location(g.fallback)), now)
	if reason != "" {
		return reason, nil
	}
	if err := g.counters.SaveCounters(ctx, u.ID, next); err != nil {
		return ReasonCounterError, fmt.Errorf("save counters: %w", err)
	}
	return "", nil
}

// admit is the pure decision: counters reset lazily when the stored date is not today.
func admit(c models.Counters, tier models.Tier, today string, now time.Time) (models.Counters, Reason) {
	if c.LastAlertDate != today {
		c.AlertsToday = 0
	}
	if limit, ok := tier.DailyCap(); ok && c.AlertsToday >= limit {
		return c, ReasonQuota
	}
	if spacing := tier.Spacing(); spacing > 0 && c.LastAlertAt != nil && now.Sub(*c.LastAlertAt) < spacing {
		return c, ReasonTooSoon
	}
	c.AlertsToday++
	c.LastAlertDate = today
	at := now
	c.LastAlertAt = &at
	return c, ""
}
