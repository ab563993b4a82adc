package models

import (
	"strings"
	"time"
)

// TierKind names a subscription class.
type TierKind string

const (
	TierFree    TierKind = "free"
	TierPremium TierKind = "premium"
)

// FreeCaps are the limits that apply only to the free tier.
type FreeCaps struct {
	MaxAlertsPerDay int
	MaxArbPct       float64
	MinSpacing      time.Duration
}

// Tier is a tagged variant: Free carries caps, Premium carries the subscription end.
// A nil SubscriptionEnd on a premium tier means lifetime access.
type Tier struct {
	Kind            TierKind
	Free            FreeCaps
	SubscriptionEnd *time.Time
}

func FreeTier(caps FreeCaps) Tier {
	return Tier{Kind: TierFree, Free: caps}
}

func PremiumTier(end *time.Time) Tier {
	return Tier{Kind: TierPremium, SubscriptionEnd: end}
}

func (t Tier) IsFree() bool { return t.Kind != TierPremium }

// Active reports whether the subscription grants access at now.
func (t Tier) Active(now time.Time) bool {
	if t.IsFree() {
		return true
	}
	return t.SubscriptionEnd == nil || t.SubscriptionEnd.After(now)
}

// DailyCap returns the per-day alert cap and whether one applies.
func (t Tier) DailyCap() (int, bool) {
	if t.IsFree() && t.Free.MaxAlertsPerDay > 0 {
		return t.Free.MaxAlertsPerDay, true
	}
	return 0, false
}

// Spacing returns the minimum gap between two alerts, zero when unrestricted.
func (t Tier) Spacing() time.Duration {
	if t.IsFree() {
		return t.Free.MinSpacing
	}
	return 0
}

// Window is an inclusive percentage range.
type Window struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (w Window) Contains(v float64) bool {
	return v >= w.Min && v <= w.Max
}

// DefaultWindow accepts every non-negative margin.
var DefaultWindow = Window{Min: 0, Max: 100}

// RoundingMode selects how stakes snap to the rounding unit.
type RoundingMode string

const (
	RoundDown    RoundingMode = "down"
	RoundUp      RoundingMode = "up"
	RoundNearest RoundingMode = "nearest"
)

// Counters are the per-user daily quota counters.
type Counters struct {
	AlertsToday   int        `json:"alerts_today"`
	LastAlertDate string     `json:"last_alert_date"` // YYYY-MM-DD in the user's timezone
	LastAlertAt   *time.Time `json:"last_alert_at,omitempty"`
}

// User is the read-only snapshot consulted during fanout.
type User struct {
	ID                   int64           `json:"user_id"`
	Language             string          `json:"language"`
	Timezone             string          `json:"timezone"`
	Tier                 Tier            `json:"-"`
	NotificationsEnabled bool            `json:"notifications_enabled"`
	Banned               bool            `json:"banned"`
	Active               bool            `json:"active"`
	EnableMiddle         bool            `json:"enable_middle"`
	EnableGoodEV         bool            `json:"enable_good_ev"`
	Windows              map[Kind]Window `json:"windows"`
	SelectedCasinos      []string        `json:"selected_casinos"`
	SelectedSports       []string        `json:"selected_sports"`
	MatchTodayOnly       bool            `json:"match_today_only"`
	DefaultCashh         float64         `json:"default_cashh"`
	StakeRounding        int             `json:"stake_rounding"`
	RoundingMode         RoundingMode    `json:"rounding_mode"`
	Counters             Counters        `json:"counters"`
}

// Window returns the user's range for kind, falling back to DefaultWindow.
func (u *User) Window(k Kind) Window {
	if w, ok := u.Windows[k]; ok {
		return w
	}
	return DefaultWindow
}

// Location resolves the user's timezone, falling back to fallback when unset or unknown.
func (u *User) Location(fallback *time.Location) *time.Location {
	if u.Timezone != "" {
		if loc, err := time.LoadLocation(u.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

// Sanitize enforces write-time invariants: free users cannot enable middle or good-ev,
// and rounding settings snap to supported values.
func (u *User) Sanitize() {
	if u.Tier.IsFree() {
		u.EnableMiddle = false
		u.EnableGoodEV = false
	}
	switch u.StakeRounding {
	case 0, 1, 5, 10:
	default:
		u.StakeRounding = 0
	}
	switch u.RoundingMode {
	case RoundDown, RoundUp, RoundNearest:
	default:
		u.RoundingMode = RoundNearest
	}
	lang := strings.ToLower(strings.TrimSpace(u.Language))
	if lang == "" {
		lang = "en"
	}
	u.Language = lang
}

// DateKey formats t as a calendar date in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}
