package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

var ingestNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func rawArb() map[string]any {
	return map[string]any{
		"event_id":       "evt1",
		"match":          "Lakers  vs Celtics",
		"league":         "NBA",
		"sport":          "basketball",
		"market":         "moneyline",
		"arb_percentage": 3.2,
		"outcomes": []any{
			map[string]any{"selection": "Lakers", "odds": -200.0, "casino": "Betsson"},
			map[string]any{"selection": "Celtics", "odds": 255.0, "bookmaker": "Coolbet"},
		},
		"source_url": "https://feed.example/evt1",
	}
}

func TestNormalize_Arbitrage(t *testing.T) {
	d, err := Normalize(rawArb(), ingestNow)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != models.KindArbitrage {
		t.Errorf("kind = %s", d.Kind)
	}
	if d.Match != "Lakers vs Celtics" || d.Home != "Lakers" || d.Away != "Celtics" {
		t.Errorf("match = %q home = %q away = %q", d.Match, d.Home, d.Away)
	}
	if d.MarginPct != 3.2 {
		t.Errorf("margin = %v", d.MarginPct)
	}
	if len(d.Outcomes) != 2 || d.Outcomes[0].AmericanOdds != -200 || d.Outcomes[1].Book != "Coolbet" {
		t.Errorf("outcomes = %+v", d.Outcomes)
	}
	if !d.ReceivedAt.Equal(ingestNow) || !d.FirstReceivedAt.Equal(ingestNow) {
		t.Errorf("received_at = %v", d.ReceivedAt)
	}
	if d.Payload["source_url"] != "https://feed.example/evt1" {
		t.Errorf("payload = %v", d.Payload)
	}
	if _, ok := d.Payload["event_id"]; ok {
		t.Error("known fields should not be copied into payload")
	}
}

func TestNormalize_KindsAndMargins(t *testing.T) {
	ev := map[string]any{
		"event_id":   "e2",
		"bet_type":   "good_ev",
		"match":      "Nadal @ Djokovic",
		"ev_percent": "4.5%",
		"outcomes":   []any{map[string]any{"selection": "Nadal", "odds": "+150", "book": "Pinnacle"}},
	}
	d, err := Normalize(ev, ingestNow)
	if err != nil {
		t.Fatal(err)
	}
	if d.Kind != models.KindGoodEV || d.MarginPct != 4.5 || d.Outcomes[0].AmericanOdds != 150 {
		t.Errorf("drop = %+v", d)
	}
	if d.Home != "Nadal" || d.Away != "Djokovic" {
		t.Errorf("teams = %q %q", d.Home, d.Away)
	}

	// arbitrage without arb_percentage derives it from the odds
	raw := rawArb()
	delete(raw, "arb_percentage")
	d, err = Normalize(raw, ingestNow)
	if err != nil {
		t.Fatal(err)
	}
	if d.MarginPct < 5.4 || d.MarginPct > 5.5 {
		t.Errorf("derived margin = %v", d.MarginPct)
	}
}

func TestNormalize_BadDrop(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(map[string]any)
		field string
	}{
		{"missing event_id", func(m map[string]any) { delete(m, "event_id") }, "event_id"},
		{"missing match", func(m map[string]any) { m["match"] = "  " }, "match"},
		{"unknown bet_type", func(m map[string]any) { m["bet_type"] = "parlay" }, "bet_type"},
		{"middle with one outcome", func(m map[string]any) {
			m["bet_type"] = "middle"
			m["outcomes"] = m["outcomes"].([]any)[:1]
		}, "outcomes"},
		{"good_ev with two outcomes", func(m map[string]any) { m["bet_type"] = "good_ev" }, "outcomes"},
		{"zero odds", func(m map[string]any) {
			m["outcomes"].([]any)[0].(map[string]any)["odds"] = 0.0
		}, "outcomes[0].odds"},
		{"non-numeric odds", func(m map[string]any) {
			m["outcomes"].([]any)[1].(map[string]any)["odds"] = "evens"
		}, "outcomes[1].odds"},
		{"missing book", func(m map[string]any) {
			delete(m["outcomes"].([]any)[1].(map[string]any), "bookmaker")
		}, "outcomes[1].casino"},
		{"outcomes not a list", func(m map[string]any) { m["outcomes"] = "x" }, "outcomes"},
		{"NaN margin", func(m map[string]any) { m["arb_percentage"] = "NaN" }, "arb_percentage"},
		{"infinite margin", func(m map[string]any) { m["arb_percentage"] = "Inf" }, "arb_percentage"},
		{"infinite margin with percent", func(m map[string]any) { m["arb_percentage"] = "-inf%" }, "arb_percentage"},
		{"non-numeric margin", func(m map[string]any) { m["arb_percentage"] = "high" }, "arb_percentage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := rawArb()
			tt.mut(raw)
			_, err := Normalize(raw, ingestNow)
			if !errors.Is(err, ErrBadDrop) {
				t.Fatalf("err = %v, want ErrBadDrop", err)
			}
			var bad *BadDropError
			if !errors.As(err, &bad) || bad.Field != tt.field {
				t.Errorf("field = %v, want %s", bad, tt.field)
			}
		})
	}
}

func TestSplitTeams(t *testing.T) {
	tests := []struct {
		in         string
		home, away string
		ok         bool
	}{
		{"Lakers vs Celtics", "Lakers", "Celtics", true},
		{"Lakers VS Celtics", "Lakers", "Celtics", true},
		{"Yankees @ Red Sox", "Yankees", "Red Sox", true},
		{"Arsenal v Chelsea", "Arsenal", "Chelsea", true},
		{"Nadal - Djokovic", "Nadal", "Djokovic", true},
		{"Saint-Etienne vs Paris SG", "Saint-Etienne", "Paris SG", true},
		{"Just a title", "", "", false},
		{"vs Celtics", "", "", false},
	}
	for _, tt := range tests {
		home, away, ok := SplitTeams(tt.in)
		if home != tt.home || away != tt.away || ok != tt.ok {
			t.Errorf("SplitTeams(%q) = %q %q %v", tt.in, home, away, ok)
		}
	}
}
