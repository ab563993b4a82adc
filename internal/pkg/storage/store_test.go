package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

var testCaps = models.FreeCaps{MaxAlertsPerDay: 5, MaxArbPct: 2.5, MinSpacing: 105 * time.Minute}

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), config.StorageConfig{Driver: "sqlite", DSN: ":memory:"}, testCaps)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testDrop(eventID string, received time.Time) *models.Drop {
	return &models.Drop{
		EventID:    eventID,
		ReceivedAt: received,
		Kind:       models.KindArbitrage,
		MarginPct:  2.0,
		Match:      "Lakers vs Celtics",
		Home:       "Lakers",
		Away:       "Celtics",
		League:     "NBA",
		Sport:      "basketball",
		Market:     "moneyline",
		Outcomes: []models.Outcome{
			{Selection: "Lakers", AmericanOdds: -200, Book: "Betsson"},
			{Selection: "Celtics", AmericanOdds: 255, Book: "Coolbet"},
		},
		Payload: map[string]any{"source": "feed"},
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{dialect: dialectPostgres}
	got := pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?")
	if want := "SELECT a FROM t WHERE x = $1 AND y = $2"; got != want {
		t.Errorf("rebind = %q, want %q", got, want)
	}
	lite := &SQLStore{dialect: dialectSQLite}
	if got := lite.rebind("x = ?"); got != "x = ?" {
		t.Errorf("sqlite rebind changed query: %q", got)
	}
}

func TestUpsert_InsertThenUpdate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	res, err := s.Upsert(ctx, testDrop("evt1", t0))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Inserted || res.DropID == "" {
		t.Fatalf("first upsert = %+v", res)
	}

	later := testDrop("evt1", t0.Add(11*time.Minute))
	later.MarginPct = 3.1
	later.League = "NBA Playoffs"
	res2, err := s.Upsert(ctx, later)
	if err != nil {
		t.Fatal(err)
	}
	if res2.Inserted {
		t.Error("second upsert should update")
	}
	if res2.DropID != res.DropID {
		t.Errorf("drop id changed: %s -> %s", res.DropID, res2.DropID)
	}

	got, err := s.GetByEventID(ctx, "evt1")
	if err != nil {
		t.Fatal(err)
	}
	if got.MarginPct != 3.1 || got.League != "NBA Playoffs" {
		t.Errorf("fields not updated: %+v", got)
	}
	if !got.ReceivedAt.Equal(t0.Add(11 * time.Minute)) {
		t.Errorf("received_at = %v, want latest", got.ReceivedAt)
	}
	if !got.FirstReceivedAt.Equal(t0) {
		t.Errorf("first_received_at = %v, want %v", got.FirstReceivedAt, t0)
	}
	if len(got.Outcomes) != 2 || got.Outcomes[1].AmericanOdds != 255 {
		t.Errorf("outcomes = %+v", got.Outcomes)
	}
	if got.Payload["source"] != "feed" {
		t.Errorf("payload = %+v", got.Payload)
	}

	var rows int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM drops WHERE event_id = 'evt1'`).Scan(&rows); err != nil {
		t.Fatal(err)
	}
	if rows != 1 {
		t.Errorf("rows for evt1 = %d, want 1", rows)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetByID(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRecentByKind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, kind := range []models.Kind{models.KindArbitrage, models.KindMiddle, models.KindArbitrage} {
		d := testDrop(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		d.Kind = kind
		if _, err := s.Upsert(ctx, d); err != nil {
			t.Fatal(err)
		}
	}

	arbs, err := s.RecentByKind(ctx, models.KindArbitrage, base, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(arbs) != 2 || arbs[0].EventID != "c" {
		t.Fatalf("arbs = %d, first = %v", len(arbs), arbs)
	}

	all, err := s.RecentByKind(ctx, "", base.Add(time.Minute), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("since filter returned %d drops, want 2", len(all))
	}
}

func TestCountToday_TierVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	drops := []struct {
		id     string
		kind   models.Kind
		margin float64
		at     time.Time
	}{
		{"low", models.KindArbitrage, 2.0, now.Add(-time.Hour)},
		{"high", models.KindArbitrage, 3.0, now.Add(-2 * time.Hour)},
		{"mid", models.KindMiddle, 1.0, now.Add(-3 * time.Hour)},
		{"yesterday", models.KindArbitrage, 1.0, now.Add(-24 * time.Hour)},
	}
	for _, d := range drops {
		drop := testDrop(d.id, d.at)
		drop.Kind = d.kind
		drop.MarginPct = d.margin
		if _, err := s.Upsert(ctx, drop); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		kind models.Kind
		tier models.TierKind
		want int
	}{
		{models.KindArbitrage, models.TierPremium, 2},
		{models.KindArbitrage, models.TierFree, 1},
		{models.KindMiddle, models.TierFree, 0},
		{models.KindMiddle, models.TierPremium, 1},
		{"", models.TierPremium, 3},
		{"", models.TierFree, 1},
	}
	for _, tt := range tests {
		got, err := s.CountToday(ctx, tt.kind, tt.tier, now, time.UTC)
		if err != nil {
			t.Fatal(err)
		}
		if got != tt.want {
			t.Errorf("CountToday(%q, %q) = %d, want %d", tt.kind, tt.tier, got, tt.want)
		}
	}
}

func TestUpdateEnrichment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if _, err := s.Upsert(ctx, testDrop("evt1", time.Now())); err != nil {
		t.Fatal(err)
	}

	start := time.Date(2026, 3, 2, 19, 30, 0, 0, time.UTC)
	if err := s.UpdateEnrichment(ctx, "evt1", &start, map[string]string{"Betsson": "https://betsson.example/e/1"}); err != nil {
		t.Fatal(err)
	}
	// a later call without a time keeps the stored one and merges links
	if err := s.UpdateEnrichment(ctx, "evt1", nil, map[string]string{"Coolbet": "https://coolbet.example/e/1"}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetByEventID(ctx, "evt1")
	if err != nil {
		t.Fatal(err)
	}
	if got.CommenceTime == nil || !got.CommenceTime.Equal(start) {
		t.Errorf("commence_time = %v", got.CommenceTime)
	}
	if len(got.DeepLinks) != 2 {
		t.Errorf("deep links = %v", got.DeepLinks)
	}

	// re-sent drop must not wipe enrichment
	if _, err := s.Upsert(ctx, testDrop("evt1", time.Now())); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetByEventID(ctx, "evt1")
	if got.CommenceTime == nil {
		t.Error("upsert cleared commence_time")
	}

	if err := s.UpdateEnrichment(ctx, "nope", &start, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing event err = %v", err)
	}
}
