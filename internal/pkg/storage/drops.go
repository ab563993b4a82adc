package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

const dropColumns = `id, event_id, first_received_at, received_at, kind, margin_pct,
	match_name, home, away, league, sport, market, commence_time,
	outcomes_json, deep_links_json, payload_json`

func (s *SQLStore) Upsert(ctx context.Context, d *models.Drop) (UpsertResult, error) {
	if d.EventID == "" {
		return UpsertResult{}, fmt.Errorf("upsert drop: empty event_id")
	}
	outcomes, err := marshalJSON(d.Outcomes, "[]")
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal outcomes: %w", err)
	}
	links, err := marshalJSON(d.DeepLinks, "{}")
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal deep links: %w", err)
	}
	payload, err := marshalJSON(d.Payload, "{}")
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal payload: %w", err)
	}

	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	first := d.FirstReceivedAt
	if first.IsZero() {
		first = d.ReceivedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.rebind(`
	INSERT INTO drops (`+dropColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (event_id) DO NOTHING`),
		id, d.EventID, toMillis(first), toMillis(d.ReceivedAt), string(d.Kind), d.MarginPct,
		d.Match, d.Home, d.Away, d.League, d.Sport, d.Market, nullMillis(d.CommenceTime),
		outcomes, links, payload,
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to insert drop: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		if err := tx.Commit(); err != nil {
			return UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
		}
		return UpsertResult{Inserted: true, DropID: id}, nil
	}

	// Latest observation wins for the mutable fields. Enrichment columns are
	// left alone so a re-sent drop does not wipe a commence time.
	_, err = tx.ExecContext(ctx, s.rebind(`
	UPDATE drops SET
		received_at = ?, kind = ?, margin_pct = ?, match_name = ?, home = ?, away = ?,
		league = ?, sport = ?, market = ?, outcomes_json = ?, payload_json = ?
	WHERE event_id = ?`),
		toMillis(d.ReceivedAt), string(d.Kind), d.MarginPct, d.Match, d.Home, d.Away,
		d.League, d.Sport, d.Market, outcomes, payload, d.EventID,
	)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to update drop: %w", err)
	}
	var existing string
	if err := tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM drops WHERE event_id = ?`), d.EventID).Scan(&existing); err != nil {
		return UpsertResult{}, fmt.Errorf("read drop id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}
	return UpsertResult{Inserted: false, DropID: existing}, nil
}

func (s *SQLStore) GetByID(ctx context.Context, id string) (*models.Drop, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+dropColumns+` FROM drops WHERE id = ?`), id)
	return scanDrop(row)
}

func (s *SQLStore) GetByEventID(ctx context.Context, eventID string) (*models.Drop, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+dropColumns+` FROM drops WHERE event_id = ?`), eventID)
	return scanDrop(row)
}

func (s *SQLStore) RecentByKind(ctx context.Context, kind models.Kind, since time.Time, limit int) ([]*models.Drop, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + dropColumns + ` FROM drops WHERE received_at >= ?`
	args := []any{toMillis(since)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY received_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent drops: %w", err)
	}
	defer rows.Close()

	var drops []*models.Drop
	for rows.Next() {
		d, err := scanDrop(rows)
		if err != nil {
			return nil, err
		}
		drops = append(drops, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return drops, nil
}

// CountToday applies the tier's visibility: free users only ever see
// arbitrage at or below the free margin cap.
func (s *SQLStore) CountToday(ctx context.Context, kind models.Kind, tier models.TierKind, now time.Time, loc *time.Location) (int, error) {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)

	query := `SELECT COUNT(*) FROM drops WHERE received_at >= ? AND received_at < ?`
	args := []any{toMillis(start), toMillis(end)}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	if tier != models.TierPremium {
		if kind != "" && kind != models.KindArbitrage {
			return 0, nil
		}
		query += ` AND kind = ? AND margin_pct <= ?`
		args = append(args, string(models.KindArbitrage), s.freeCaps.MaxArbPct)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, s.rebind(query), args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count drops: %w", err)
	}
	return count, nil
}

// UpdateEnrichment fills commence_time and merges deep links into the stored drop.
func (s *SQLStore) UpdateEnrichment(ctx context.Context, eventID string, commenceTime *time.Time, deepLinks map[string]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin enrichment update: %w", err)
	}
	defer tx.Rollback()

	var (
		current  sql.NullInt64
		linksRaw string
	)
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT commence_time, deep_links_json FROM drops WHERE event_id = ?`), eventID).
		Scan(&current, &linksRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read drop for enrichment: %w", err)
	}

	links := map[string]string{}
	if err := unmarshalJSON(linksRaw, &links); err != nil {
		return fmt.Errorf("decode deep links: %w", err)
	}
	for book, u := range deepLinks {
		links[book] = u
	}
	merged, err := marshalJSON(links, "{}")
	if err != nil {
		return fmt.Errorf("marshal deep links: %w", err)
	}

	commence := current
	if commenceTime != nil {
		commence = nullMillis(commenceTime)
	}

	if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE drops SET commence_time = ?, deep_links_json = ? WHERE event_id = ?`),
		commence, merged, eventID); err != nil {
		return fmt.Errorf("failed to update enrichment: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrop(row rowScanner) (*models.Drop, error) {
	var (
		d                        models.Drop
		first, received          int64
		kind                     string
		commence                 sql.NullInt64
		outcomes, links, payload string
	)
	err := row.Scan(&d.ID, &d.EventID, &first, &received, &kind, &d.MarginPct,
		&d.Match, &d.Home, &d.Away, &d.League, &d.Sport, &d.Market, &commence,
		&outcomes, &links, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan drop: %w", err)
	}
	d.FirstReceivedAt = fromMillis(first)
	d.ReceivedAt = fromMillis(received)
	d.Kind = models.Kind(kind)
	d.CommenceTime = timePtr(commence)
	if err := unmarshalJSON(outcomes, &d.Outcomes); err != nil {
		return nil, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := unmarshalJSON(links, &d.DeepLinks); err != nil {
		return nil, fmt.Errorf("decode deep links: %w", err)
	}
	if len(d.DeepLinks) == 0 {
		d.DeepLinks = nil
	}
	if err := unmarshalJSON(payload, &d.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &d, nil
}
