package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

const userColumns = `user_id, language, timezone, tier, subscription_end,
	notifications_enabled, banned, active, enable_middle, enable_good_ev,
	windows_json, selected_casinos_json, selected_sports_json, match_today_only,
	default_cashh, stake_rounding, rounding_mode,
	alerts_today, last_alert_date, last_alert_at`

func (s *SQLStore) ListCandidates(ctx context.Context, afterID int64, limit int) ([]*models.User, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users
	WHERE user_id > ? AND active = ? AND banned = ? AND notifications_enabled = ?
	ORDER BY user_id LIMIT ?`), afterID, true, false, true, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := s.scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return users, nil
}

func (s *SQLStore) GetUser(ctx context.Context, id int64) (*models.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE user_id = ?`), id)
	return s.scanUser(row)
}

// SaveUser writes the profile. Counters are written only on first insert;
// afterwards they belong to SaveCounters.
func (s *SQLStore) SaveUser(ctx context.Context, u *models.User) error {
	cp := *u
	cp.Sanitize()

	windows, err := marshalJSON(cp.Windows, "{}")
	if err != nil {
		return fmt.Errorf("marshal windows: %w", err)
	}
	casinos, err := marshalJSON(cp.SelectedCasinos, "[]")
	if err != nil {
		return fmt.Errorf("marshal casinos: %w", err)
	}
	sports, err := marshalJSON(cp.SelectedSports, "[]")
	if err != nil {
		return fmt.Errorf("marshal sports: %w", err)
	}
	tier := cp.Tier.Kind
	if tier == "" {
		tier = models.TierFree
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
	INSERT INTO users (`+userColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id) DO UPDATE SET
		language = excluded.language,
		timezone = excluded.timezone,
		tier = excluded.tier,
		subscription_end = excluded.subscription_end,
		notifications_enabled = excluded.notifications_enabled,
		banned = excluded.banned,
		active = excluded.active,
		enable_middle = excluded.enable_middle,
		enable_good_ev = excluded.enable_good_ev,
		windows_json = excluded.windows_json,
		selected_casinos_json = excluded.selected_casinos_json,
		selected_sports_json = excluded.selected_sports_json,
		match_today_only = excluded.match_today_only,
		default_cashh = excluded.default_cashh,
		stake_rounding = excluded.stake_rounding,
		rounding_mode = excluded.rounding_mode`),
		cp.ID, cp.Language, cp.Timezone, string(tier), nullMillis(cp.Tier.SubscriptionEnd),
		cp.NotificationsEnabled, cp.Banned, cp.Active, cp.EnableMiddle, cp.EnableGoodEV,
		windows, casinos, sports, cp.MatchTodayOnly,
		cp.DefaultCashh, cp.StakeRounding, string(cp.RoundingMode),
		cp.Counters.AlertsToday, cp.Counters.LastAlertDate, nullMillis(cp.Counters.LastAlertAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save user %d: %w", u.ID, err)
	}
	return nil
}

func (s *SQLStore) LoadCounters(ctx context.Context, userID int64) (models.Counters, error) {
	var (
		c    models.Counters
		last sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT alerts_today, last_alert_date, last_alert_at FROM users WHERE user_id = ?`), userID).
		Scan(&c.AlertsToday, &c.LastAlertDate, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Counters{}, ErrNotFound
	}
	if err != nil {
		return models.Counters{}, fmt.Errorf("failed to load counters for %d: %w", userID, err)
	}
	c.LastAlertAt = timePtr(last)
	return c, nil
}

func (s *SQLStore) SaveCounters(ctx context.Context, userID int64, c models.Counters) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET alerts_today = ?, last_alert_date = ?, last_alert_at = ? WHERE user_id = ?`),
		c.AlertsToday, c.LastAlertDate, nullMillis(c.LastAlertAt), userID)
	if err != nil {
		return fmt.Errorf("failed to save counters for %d: %w", userID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) scanUser(row rowScanner) (*models.User, error) {
	var (
		u                       models.User
		tier, mode              string
		subEnd, lastAt          sql.NullInt64
		windows, casinos, sport string
	)
	err := row.Scan(&u.ID, &u.Language, &u.Timezone, &tier, &subEnd,
		&u.NotificationsEnabled, &u.Banned, &u.Active, &u.EnableMiddle, &u.EnableGoodEV,
		&windows, &casinos, &sport, &u.MatchTodayOnly,
		&u.DefaultCashh, &u.StakeRounding, &mode,
		&u.Counters.AlertsToday, &u.Counters.LastAlertDate, &lastAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	if models.TierKind(tier) == models.TierPremium {
		u.Tier = models.PremiumTier(timePtr(subEnd))
	} else {
		u.Tier = models.FreeTier(s.freeCaps)
	}
	u.RoundingMode = models.RoundingMode(mode)
	u.Counters.LastAlertAt = timePtr(lastAt)

	if err := unmarshalJSON(windows, &u.Windows); err != nil {
		return nil, fmt.Errorf("decode windows: %w", err)
	}
	if err := unmarshalJSON(casinos, &u.SelectedCasinos); err != nil {
		return nil, fmt.Errorf("decode casinos: %w", err)
	}
	if err := unmarshalJSON(sport, &u.SelectedSports); err != nil {
		return nil, fmt.Errorf("decode sports: %w", err)
	}
	return &u, nil
}
