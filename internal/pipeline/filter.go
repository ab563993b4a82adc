package pipeline

import (
	"strings"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/enums"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// Reason explains why a user was skipped for a drop.
type Reason string

const (
	ReasonInactive     Reason = "inactive"
	ReasonSubscription Reason = "subscription_expired"
	ReasonKindDisabled Reason = "kind_disabled"
	ReasonTierCap      Reason = "tier_margin_cap"
	ReasonWindow       Reason = "outside_window"
	ReasonCasino       Reason = "casino_filter"
	ReasonSport        Reason = "sport_filter"
	ReasonNotToday     Reason = "not_today"
	ReasonQuota        Reason = "quota_exceeded"
	ReasonTooSoon      Reason = "too_soon"
	ReasonCounterError Reason = "counter_error"
	ReasonRenderError  Reason = "render_error"
	ReasonCancelled    Reason = "cancelled"
)

// Eligible evaluates the filter matrix in order and stops at the first failure.
// It never mutates u.
func Eligible(d *models.Drop, u *models.User, now time.Time, fallback *time.Location) (bool, Reason) {
	if !u.Active || u.Banned || !u.NotificationsEnabled {
		return false, ReasonInactive
	}
	if !u.Tier.Active(now) {
		return false, ReasonSubscription
	}

	switch d.Kind {
	case models.KindMiddle:
		if !u.EnableMiddle {
			return false, ReasonKindDisabled
		}
	case models.KindGoodEV:
		if !u.EnableGoodEV {
			return false, ReasonKindDisabled
		}
	}

	if u.Tier.IsFree() {
		if d.Kind != models.KindArbitrage || d.MarginPct > u.Tier.Free.MaxArbPct {
			return false, ReasonTierCap
		}
	}

	if !u.Window(d.Kind).Contains(d.MarginPct) {
		return false, ReasonWindow
	}

	if len(u.SelectedCasinos) > 0 && !anyBookAllowed(d, u.SelectedCasinos) {
		return false, ReasonCasino
	}

	if len(u.SelectedSports) > 0 && !sportAllowed(d, u.SelectedSports) {
		return false, ReasonSport
	}

	if u.MatchTodayOnly {
		if d.CommenceTime == nil {
			return false, ReasonNotToday
		}
		loc := u.Location(fallback)
		if models.DateKey(*d.CommenceTime, loc) != models.DateKey(now, loc) {
			return false, ReasonNotToday
		}
	}

	return true, ""
}

func anyBookAllowed(d *models.Drop, casinos []string) bool {
	for _, o := range d.Outcomes {
		for _, c := range casinos {
			if strings.EqualFold(strings.TrimSpace(c), strings.TrimSpace(o.Book)) {
				return true
			}
		}
	}
	return false
}

func sportAllowed(d *models.Drop, sports []string) bool {
	class := enums.Classify(d.Sport, d.League)
	for _, s := range sports {
		if enums.Normalize(s) == class {
			return true
		}
	}
	return false
}
