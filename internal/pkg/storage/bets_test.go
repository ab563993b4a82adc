package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

func TestInsertBet_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	placed := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	bet := &models.Bet{UserID: 1, DropID: "d1", Kind: models.KindArbitrage, MatchName: "A vs B",
		TotalStake: 400, ExpectedProfit: 20, PlacedAt: placed}
	first, created, err := s.InsertBet(ctx, bet)
	if err != nil {
		t.Fatal(err)
	}
	if !created || first.ID == "" || first.Status != models.BetPending {
		t.Fatalf("first insert = %+v created=%v", first, created)
	}

	again := *bet
	again.TotalStake = 999
	second, created, err := s.InsertBet(ctx, &again)
	if err != nil {
		t.Fatal(err)
	}
	if created {
		t.Error("second insert should not create")
	}
	if second.ID != first.ID || second.TotalStake != 400 {
		t.Errorf("second = %+v", second)
	}

	bets, err := s.ListBets(ctx, 1, time.Time{})
	if err != nil {
		t.Fatal(err)
	}
	if len(bets) != 1 {
		t.Errorf("bets = %d, want 1", len(bets))
	}
}

func TestUpdateBetOutcome(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	b, _, err := s.InsertBet(ctx, &models.Bet{UserID: 1, DropID: "d1", Kind: models.KindArbitrage,
		MatchName: "A vs B", TotalStake: 100, ExpectedProfit: 5, PlacedAt: time.Now()})
	if err != nil {
		t.Fatal(err)
	}

	profit := 5.0
	if err := s.UpdateBetOutcome(ctx, b.ID, models.BetWon, &profit); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetBet(ctx, b.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.BetWon || got.ActualProfit == nil || *got.ActualProfit != 5 {
		t.Errorf("bet = %+v", got)
	}

	if err := s.UpdateBetOutcome(ctx, "missing", models.BetLost, nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListBets_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, drop := range []string{"d1", "d2", "d3"} {
		_, _, err := s.InsertBet(ctx, &models.Bet{UserID: 1, DropID: drop, Kind: models.KindArbitrage,
			MatchName: "m", TotalStake: 10, PlacedAt: base.AddDate(0, 0, i)})
		if err != nil {
			t.Fatal(err)
		}
	}
	bets, err := s.ListBets(ctx, 1, base.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(bets) != 2 || bets[0].DropID != "d2" {
		t.Errorf("bets since day 2 = %d", len(bets))
	}
}
