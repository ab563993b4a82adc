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

const betColumns = `id, user_id, drop_id, kind, match_name, total_stake, expected_profit,
	actual_profit, status, placed_at, match_date`

func (s *SQLStore) InsertBet(ctx context.Context, b *models.Bet) (*models.Bet, bool, error) {
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	status := b.Status
	if status == "" {
		status = models.BetPending
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
	INSERT INTO bets (`+betColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (user_id, drop_id) DO NOTHING`),
		id, b.UserID, b.DropID, string(b.Kind), b.MatchName, b.TotalStake, b.ExpectedProfit,
		nullFloat(b.ActualProfit), string(status), toMillis(b.PlacedAt), nullMillis(b.MatchDate),
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert bet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("rows affected: %w", err)
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+betColumns+` FROM bets WHERE user_id = ? AND drop_id = ?`), b.UserID, b.DropID)
	stored, err := scanBet(row)
	if err != nil {
		return nil, false, err
	}
	return stored, n == 1, nil
}

func (s *SQLStore) GetBet(ctx context.Context, id string) (*models.Bet, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+betColumns+` FROM bets WHERE id = ?`), id)
	return scanBet(row)
}

func (s *SQLStore) UpdateBetOutcome(ctx context.Context, id string, status models.BetStatus, actualProfit *float64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE bets SET status = ?, actual_profit = ? WHERE id = ?`),
		string(status), nullFloat(actualProfit), id)
	if err != nil {
		return fmt.Errorf("failed to update bet %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListBets(ctx context.Context, userID int64, since time.Time) ([]*models.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE user_id = ?`
	args := []any{userID}
	if !since.IsZero() {
		query += ` AND placed_at >= ?`
		args = append(args, toMillis(since))
	}
	query += ` ORDER BY placed_at, id`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bets: %w", err)
	}
	defer rows.Close()

	var bets []*models.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return bets, nil
}

func scanBet(row rowScanner) (*models.Bet, error) {
	var (
		b            models.Bet
		kind, status string
		actual       sql.NullFloat64
		placed       int64
		matchDate    sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.UserID, &b.DropID, &kind, &b.MatchName, &b.TotalStake, &b.ExpectedProfit,
		&actual, &status, &placed, &matchDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bet: %w", err)
	}
	b.Kind = models.Kind(kind)
	b.Status = models.BetStatus(status)
	b.ActualProfit = floatPtr(actual)
	b.PlacedAt = fromMillis(placed)
	b.MatchDate = timePtr(matchDate)
	return &b, nil
}
