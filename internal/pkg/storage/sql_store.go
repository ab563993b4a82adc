package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

var (
	_ DropStore    = (*SQLStore)(nil)
	_ UserStore    = (*SQLStore)(nil)
	_ CounterStore = (*SQLStore)(nil)
	_ BetStore     = (*SQLStore)(nil)
)

type dialect int

const (
	dialectPostgres dialect = iota
	dialectSQLite
)

// SQLStore implements every store over one database/sql pool.
// Instants are stored as unix milliseconds and sets as JSON text so the
// same schema runs on Postgres and SQLite.
type SQLStore struct {
	db       *sql.DB
	dialect  dialect
	freeCaps models.FreeCaps
}

// Open connects using cfg.Driver ("postgres" or "sqlite"), pings and creates the schema.
// freeCaps hydrate the Tier of free users and bound CountToday for the free tier.
func Open(ctx context.Context, cfg config.StorageConfig, freeCaps models.FreeCaps) (*SQLStore, error) {
	var (
		driverName string
		d          dialect
	)
	switch cfg.Driver {
	case "postgres":
		driverName, d = "postgres", dialectPostgres
		if cfg.DSN == "" {
			return nil, fmt.Errorf("postgres DSN is required")
		}
	case "sqlite":
		driverName, d = "sqlite", dialectSQLite
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}

	dsn := cfg.DSN
	if d == dialectSQLite && dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", cfg.Driver, err)
	}
	if d == dialectSQLite {
		// one connection keeps an in-memory database alive and serializes writers
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", cfg.Driver, err)
	}

	s := &SQLStore{db: db, dialect: d, freeCaps: freeCaps}
	if err := s.initSchema(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	slog.Info("Storage initialized", "driver", cfg.Driver)
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS drops (
			id TEXT PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			first_received_at BIGINT NOT NULL,
			received_at BIGINT NOT NULL,
			kind TEXT NOT NULL,
			margin_pct DOUBLE PRECISION NOT NULL,
			match_name TEXT NOT NULL,
			home TEXT NOT NULL DEFAULT '',
			away TEXT NOT NULL DEFAULT '',
			league TEXT NOT NULL DEFAULT '',
			sport TEXT NOT NULL DEFAULT '',
			market TEXT NOT NULL DEFAULT '',
			commence_time BIGINT,
			outcomes_json TEXT NOT NULL,
			deep_links_json TEXT NOT NULL DEFAULT '{}',
			payload_json TEXT NOT NULL DEFAULT '{}'
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drops_kind_received ON drops(kind, received_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_drops_received ON drops(received_at DESC)`,
		`CREATE TABLE IF NOT EXISTS users (
			user_id BIGINT PRIMARY KEY,
			language TEXT NOT NULL DEFAULT 'en',
			timezone TEXT NOT NULL DEFAULT '',
			tier TEXT NOT NULL DEFAULT 'free',
			subscription_end BIGINT,
			notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			banned BOOLEAN NOT NULL DEFAULT FALSE,
			active BOOLEAN NOT NULL DEFAULT TRUE,
			enable_middle BOOLEAN NOT NULL DEFAULT FALSE,
			enable_good_ev BOOLEAN NOT NULL DEFAULT FALSE,
			windows_json TEXT NOT NULL DEFAULT '{}',
			selected_casinos_json TEXT NOT NULL DEFAULT '[]',
			selected_sports_json TEXT NOT NULL DEFAULT '[]',
			match_today_only BOOLEAN NOT NULL DEFAULT FALSE,
			default_cashh DOUBLE PRECISION NOT NULL DEFAULT 0,
			stake_rounding INTEGER NOT NULL DEFAULT 0,
			rounding_mode TEXT NOT NULL DEFAULT 'nearest',
			alerts_today INTEGER NOT NULL DEFAULT 0,
			last_alert_date TEXT NOT NULL DEFAULT '',
			last_alert_at BIGINT
		)`,
		`CREATE TABLE IF NOT EXISTS bets (
			id TEXT PRIMARY KEY,
			user_id BIGINT NOT NULL,
			drop_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			match_name TEXT NOT NULL,
			total_stake DOUBLE PRECISION NOT NULL,
			expected_profit DOUBLE PRECISION NOT NULL,
			actual_profit DOUBLE PRECISION,
			status TEXT NOT NULL,
			placed_at BIGINT NOT NULL,
			match_date BIGINT,
			UNIQUE(user_id, drop_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bets_user_placed ON bets(user_id, placed_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Ping checks the pool, used by the health endpoint.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func timePtr(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMillis(n.Int64)
	return &t
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func marshalJSON(v any, empty string) (string, error) {
	if v == nil {
		return empty, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	if string(data) == "null" {
		return empty, nil
	}
	return string(data), nil
}

func unmarshalJSON(s string, dst any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}
