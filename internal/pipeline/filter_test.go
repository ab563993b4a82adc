package pipeline

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

var (
	filterNow = time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	freeCaps  = models.FreeCaps{MaxAlertsPerDay: 5, MaxArbPct: 2.5, MinSpacing: 105 * time.Minute}
)

func filterDrop(margin float64) *models.Drop {
	return &models.Drop{
		ID:        "d1",
		Kind:      models.KindArbitrage,
		MarginPct: margin,
		Match:     "Lakers vs Celtics",
		League:    "NBA",
		Sport:     "Basketball",
		Outcomes: []models.Outcome{
			{AmericanOdds: -200, Book: "Betsson"},
			{AmericanOdds: 255, Book: "Coolbet"},
		},
	}
}

func activeUser(id int64, tier models.Tier) *models.User {
	return &models.User{
		ID:                   id,
		Language:             "en",
		Tier:                 tier,
		NotificationsEnabled: true,
		Active:               true,
		DefaultCashh:         400,
	}
}

func TestEligible_Order(t *testing.T) {
	past := filterNow.Add(-time.Hour)
	tomorrow := filterNow.Add(24 * time.Hour)
	today := filterNow.Add(2 * time.Hour)

	tests := []struct {
		name   string
		drop   func() *models.Drop
		user   func() *models.User
		ok     bool
		reason Reason
	}{
		{"premium passes", func() *models.Drop { return filterDrop(3.2) }, func() *models.User { return activeUser(1, models.PremiumTier(nil)) }, true, ""},
		{"banned", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.Banned = true
			return u
		}, false, ReasonInactive},
		{"notifications off", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.NotificationsEnabled = false
			return u
		}, false, ReasonInactive},
		{"expired premium", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			return activeUser(1, models.PremiumTier(&past))
		}, false, ReasonSubscription},
		{"middle disabled", func() *models.Drop {
			d := filterDrop(1)
			d.Kind = models.KindMiddle
			return d
		}, func() *models.User { return activeUser(1, models.PremiumTier(nil)) }, false, ReasonKindDisabled},
		{"free gets 2.0", func() *models.Drop { return filterDrop(2.0) }, func() *models.User { return activeUser(2, models.FreeTier(freeCaps)) }, true, ""},
		{"free rejects 3.0", func() *models.Drop { return filterDrop(3.0) }, func() *models.User { return activeUser(2, models.FreeTier(freeCaps)) }, false, ReasonTierCap},
		{"free never gets middle even if flag set", func() *models.Drop {
			d := filterDrop(1)
			d.Kind = models.KindMiddle
			return d
		}, func() *models.User {
			u := activeUser(2, models.FreeTier(freeCaps))
			u.EnableMiddle = true
			return u
		}, false, ReasonTierCap},
		{"window inclusive max", func() *models.Drop { return filterDrop(4) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.Windows = map[models.Kind]models.Window{models.KindArbitrage: {Min: 1, Max: 4}}
			return u
		}, true, ""},
		{"below window", func() *models.Drop { return filterDrop(0.5) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.Windows = map[models.Kind]models.Window{models.KindArbitrage: {Min: 1, Max: 4}}
			return u
		}, false, ReasonWindow},
		{"casino allow-list misses both books", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.SelectedCasinos = []string{"Pinnacle"}
			return u
		}, false, ReasonCasino},
		{"casino allow-list hits one book", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.SelectedCasinos = []string{"coolbet"}
			return u
		}, true, ""},
		{"sport allow-list by league alias", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.SelectedSports = []string{"NBA"}
			return u
		}, true, ""},
		{"sport allow-list miss", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.SelectedSports = []string{"soccer"}
			return u
		}, false, ReasonSport},
		{"today only, tomorrow", func() *models.Drop {
			d := filterDrop(1)
			d.CommenceTime = &tomorrow
			return d
		}, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.MatchTodayOnly = true
			return u
		}, false, ReasonNotToday},
		{"today only, today", func() *models.Drop {
			d := filterDrop(1)
			d.CommenceTime = &today
			return d
		}, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.MatchTodayOnly = true
			return u
		}, true, ""},
		{"today only, no commence time", func() *models.Drop { return filterDrop(1) }, func() *models.User {
			u := activeUser(1, models.PremiumTier(nil))
			u.MatchTodayOnly = true
			return u
		}, false, ReasonNotToday},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, reason := Eligible(tt.drop(), tt.user(), filterNow, time.UTC)
			if ok != tt.ok || reason != tt.reason {
				t.Errorf("Eligible = %v %q, want %v %q", ok, reason, tt.ok, tt.reason)
			}
		})
	}
}

func TestEligible_TodayUsesUserTimezone(t *testing.T) {
	// 23:30 UTC on Mar 1 is already Mar 2 in Tokyo
	now := time.Date(2026, 3, 1, 23, 30, 0, 0, time.UTC)
	start := time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC)
	d := filterDrop(1)
	d.CommenceTime = &start

	u := activeUser(1, models.PremiumTier(nil))
	u.MatchTodayOnly = true
	if ok, _ := Eligible(d, u, now, time.UTC); ok {
		t.Error("in UTC the match is tomorrow")
	}
	u.Timezone = "Asia/Tokyo"
	if ok, reason := Eligible(d, u, now, time.UTC); !ok {
		t.Errorf("in Tokyo the match is today, got %q", reason)
	}
}

func TestEligible_DoesNotMutateUser(t *testing.T) {
	u := activeUser(1, models.FreeTier(freeCaps))
	u.Counters = models.Counters{AlertsToday: 2, LastAlertDate: "2026-03-01"}
	before := *u
	Eligible(filterDrop(1), u, filterNow, time.UTC)
	if u.Counters != before.Counters || u.Active != before.Active {
		t.Error("Eligible mutated the user")
	}
}

// Tightening a window or removing a casino never lets more drops through.
func TestEligible_MonotonicityProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 300
	properties := gopter.NewProperties(parameters)

	books := []string{"Betsson", "Coolbet", "Pinnacle", "Bet365"}

	properties.Property("raising min or lowering max only shrinks the passing set", prop.ForAll(
		func(margin, lo, hi, dLo, dHi float64) bool {
			if lo > hi {
				lo, hi = hi, lo
			}
			d := filterDrop(margin)
			loose := activeUser(1, models.PremiumTier(nil))
			loose.Windows = map[models.Kind]models.Window{models.KindArbitrage: {Min: lo, Max: hi}}
			tight := activeUser(1, models.PremiumTier(nil))
			tight.Windows = map[models.Kind]models.Window{models.KindArbitrage: {Min: lo + dLo, Max: hi - dHi}}

			okTight, _ := Eligible(d, tight, filterNow, time.UTC)
			okLoose, _ := Eligible(d, loose, filterNow, time.UTC)
			return !okTight || okLoose
		},
		gen.Float64Range(0, 15),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 10),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
	))

	properties.Property("removing a casino only shrinks the passing set", prop.ForAll(
		func(mask uint8, drop uint8, b0, b1 uint8) bool {
			var selected []string
			for i, b := range books {
				if mask&(1<<i) != 0 {
					selected = append(selected, b)
				}
			}
			if len(selected) < 2 {
				return true
			}
			reduced := append([]string(nil), selected...)
			idx := int(drop) % len(reduced)
			reduced = append(reduced[:idx], reduced[idx+1:]...)

			d := filterDrop(1)
			d.Outcomes[0].Book = books[int(b0)%len(books)]
			d.Outcomes[1].Book = books[int(b1)%len(books)]

			full := activeUser(1, models.PremiumTier(nil))
			full.SelectedCasinos = selected
			less := activeUser(1, models.PremiumTier(nil))
			less.SelectedCasinos = reduced

			okLess, _ := Eligible(d, less, filterNow, time.UTC)
			okFull, _ := Eligible(d, full, filterNow, time.UTC)
			return !okLess || okFull
		},
		gen.UInt8Range(0, 15),
		gen.UInt8(),
		gen.UInt8(),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
