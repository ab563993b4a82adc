package render

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/Vodeneev/dropalerts/internal/pkg/enums"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/stake"
)

const (
	// DefaultCashh is used when a user has not set a stake base.
	DefaultCashh = 100.0
	// EVHorizon is the number of bets the good-ev projection covers.
	EVHorizon = 100
)

// Renderer formats drops into per-user alerts. Output depends only on its inputs.
type Renderer struct {
	fallback *time.Location
}

func New(fallback *time.Location) *Renderer {
	if fallback == nil {
		fallback = time.UTC
	}
	return &Renderer{fallback: fallback}
}

// Render builds the alert for d as seen by u.
func (r *Renderer) Render(d *models.Drop, u *models.User) (Alert, error) {
	cat := catalogFor(u.Language)
	cashh := u.DefaultCashh
	if cashh <= 0 {
		cashh = DefaultCashh
	}

	var (
		b     strings.Builder
		alert Alert
		err   error
	)
	alert.DropID = d.ID
	alert.Kind = d.Kind
	alert.Language = cat.tag.String()

	switch d.Kind {
	case models.KindArbitrage:
		err = r.arbitrage(&b, &alert, cat, d, u, cashh)
	case models.KindMiddle:
		err = r.middle(&b, &alert, cat, d, u, cashh)
	case models.KindGoodEV:
		err = r.goodEV(&b, &alert, cat, d, u, cashh)
	default:
		err = fmt.Errorf("render: unknown kind %q", d.Kind)
	}
	if err != nil {
		return Alert{}, err
	}

	alert.Text = b.String()
	alert.Actions = actions(cat, d)
	return alert, nil
}

func (r *Renderer) header(b *strings.Builder, cat *catalog, title string, d *models.Drop, u *models.User) {
	fmt.Fprintf(b, "%s %.2f%%\n", title, d.MarginPct)
	fmt.Fprintf(b, "%s\n", d.Match)
	if class := enums.Classify(d.Sport, d.League); class != enums.Other {
		fmt.Fprintf(b, "%s: %s\n", cat.sport, class.GetSportInfo().Name)
	}
	if d.League != "" {
		fmt.Fprintf(b, "%s: %s\n", cat.league, d.League)
	}
	if d.Market != "" {
		fmt.Fprintf(b, "%s: %s\n", cat.market, cases.Title(cat.tag).String(d.Market))
	}
	if d.CommenceTime != nil {
		loc := u.Location(r.fallback)
		fmt.Fprintf(b, "%s: %s\n", cat.starts, d.CommenceTime.In(loc).Format("02 Jan 15:04 MST"))
	}
	b.WriteString("\n")
}

func (r *Renderer) legs(b *strings.Builder, cat *catalog, d *models.Drop, a stake.Allocation) {
	for i, o := range d.Outcomes {
		fmt.Fprintf(b, "%d) %s | %s %s\n", i+1, o.Book, o.Selection, formatOdds(o.AmericanOdds))
		fmt.Fprintf(b, "   %s %s -> %s %s\n", cat.stake, money(a.Stakes[i]), cat.returns, money(a.Returns[i]))
	}
}

// allocate computes the safe split, applies the user's rounding and re-evaluates
// so profit reflects the stakes actually shown.
func allocate(d *models.Drop, u *models.User, cashh float64) (stake.SafeResult, stake.Allocation, error) {
	odds := d.AmericanOdds()
	safe, err := stake.SafeStakes(cashh, odds)
	if err != nil {
		return stake.SafeResult{}, stake.Allocation{}, err
	}
	rounded := stake.RoundStakes(safe.Stakes, u.StakeRounding, u.RoundingMode)
	a, err := stake.Evaluate(rounded, odds)
	if err != nil {
		return stake.SafeResult{}, stake.Allocation{}, err
	}
	return safe, a, nil
}

func (r *Renderer) arbitrage(b *strings.Builder, alert *Alert, cat *catalog, d *models.Drop, u *models.User, cashh float64) error {
	safe, a, err := allocate(d, u, cashh)
	if err != nil {
		return err
	}
	r.header(b, cat, cat.arbTitle, d, u)
	r.legs(b, cat, d, a)
	b.WriteString("\n")
	fmt.Fprintf(b, "%s: %s\n", cat.total, money(a.TotalStake))
	fmt.Fprintf(b, "%s: %s (%.2f%%)\n", cat.profit, money(a.Profit), a.ROIPct)
	if !safe.HasArbitrage {
		fmt.Fprintf(b, "%s\n", cat.noArb)
	}

	alert.Stakes = a.Stakes
	alert.TotalStake = a.TotalStake
	alert.ExpectedProfit = a.Profit
	return nil
}

func (r *Renderer) middle(b *strings.Builder, alert *Alert, cat *catalog, d *models.Drop, u *models.User, cashh float64) error {
	_, a, err := allocate(d, u, cashh)
	if err != nil {
		return err
	}
	lo, hi, zoneOK := middleZone(d.Outcomes[0].Selection, d.Outcomes[1].Selection)
	hit := hitProbability(d, lo, hi, zoneOK)
	m, err := stake.MiddleScenarios(a.Stakes, d.AmericanOdds(), hit)
	if err != nil {
		return err
	}

	r.header(b, cat, cat.middleTitle, d, u)
	r.legs(b, cat, d, a)
	b.WriteString("\n")
	if zoneOK {
		fmt.Fprintf(b, "%s: %s - %s\n", cat.zone, trimFloat(lo), trimFloat(hi))
	} else {
		fmt.Fprintf(b, "%s\n", cat.zoneAny)
	}
	fmt.Fprintf(b, "%s: %s\n", cat.onlyFirst, money(m.OnlyFirst))
	fmt.Fprintf(b, "%s: %s\n", cat.onlySecond, money(m.OnlySecond))
	fmt.Fprintf(b, "%s: %s\n", cat.bothWin, money(m.BothWin))
	fmt.Fprintf(b, "%s: %.1f%%\n", cat.hitProb, hit*100)
	sign := cat.evPositive
	if m.EV < 0 {
		sign = cat.evNegative
	}
	fmt.Fprintf(b, "%s: %s (%s)\n", cat.evLabel, money(m.EV), sign)
	fmt.Fprintf(b, "%s: %s\n", cat.total, money(a.TotalStake))

	alert.Stakes = a.Stakes
	alert.TotalStake = a.TotalStake
	alert.ExpectedProfit = m.EV
	return nil
}

func (r *Renderer) goodEV(b *strings.Builder, alert *Alert, cat *catalog, d *models.Drop, u *models.User, cashh float64) error {
	o := d.Outcomes[0]
	st := stake.RoundStake(cashh, u.StakeRounding, u.RoundingMode)
	if st <= 0 {
		st = stake.Round2(cashh)
	}
	ev, err := stake.GoodEV(st, d.MarginPct, o.AmericanOdds, EVHorizon)
	if err != nil {
		return err
	}

	r.header(b, cat, cat.evTitle, d, u)
	fmt.Fprintf(b, "%s | %s %s\n", o.Book, o.Selection, formatOdds(o.AmericanOdds))
	fmt.Fprintf(b, "   %s %s -> %s %s\n", cat.stake, money(ev.Stake), cat.potential, money(ev.PotentialWin))
	b.WriteString("\n")
	fmt.Fprintf(b, "%s: %.1f%% (%s %.1f%%)\n", cat.trueWinRate, ev.TrueWinRate*100, cat.implied, ev.ImpliedProb*100)
	fmt.Fprintf(b, "%s: %s\n", cat.evPerBet, money(ev.EVPerBet))
	fmt.Fprintf(b, cat.evOverN+": %s\n", ev.N, money(ev.EVOverN))
	fmt.Fprintf(b, "%s\n", cat.quality[Quality(d.MarginPct)])

	alert.Stakes = []float64{ev.Stake}
	alert.TotalStake = ev.Stake
	alert.ExpectedProfit = ev.EVPerBet
	return nil
}

// Quality buckets a +EV percentage.
func Quality(evPct float64) string {
	switch {
	case evPct >= 10:
		return "excellent"
	case evPct >= 5:
		return "strong"
	case evPct >= 2:
		return "good"
	default:
		return "marginal"
	}
}

var lineNumber = regexp.MustCompile(`[-+]?\d+(?:\.\d+)?`)

// middleZone reads the numeric line from each selection ("Over 210.5", "Under 212.5")
// and returns the interval between them.
func middleZone(a, b string) (float64, float64, bool) {
	la, okA := lastNumber(a)
	lb, okB := lastNumber(b)
	if !okA || !okB {
		return 0, 0, false
	}
	la, lb = math.Abs(la), math.Abs(lb)
	if la == lb {
		return 0, 0, false
	}
	return math.Min(la, lb), math.Max(la, lb), true
}

func lastNumber(s string) (float64, bool) {
	all := lineNumber.FindAllString(s, -1)
	if len(all) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(all[len(all)-1], 64)
	return f, err == nil
}

// hitProbability prefers the feed's estimate and otherwise assumes 3% per
// point of zone width, capped at 25%.
func hitProbability(d *models.Drop, lo, hi float64, zoneOK bool) float64 {
	if v, ok := payloadFloat(d.Payload["middle_probability"]); ok && v > 0 {
		if v > 1 {
			v /= 100
		}
		return math.Min(v, 1)
	}
	if !zoneOK {
		return 0
	}
	return math.Min((hi-lo)*0.03, 0.25)
}

func payloadFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// actions emits one URL per book with a deep link plus the placed callback.
func actions(cat *catalog, d *models.Drop) []Action {
	var out []Action
	seen := make(map[string]bool)
	for _, o := range d.Outcomes {
		key := strings.ToLower(o.Book)
		if seen[key] {
			continue
		}
		seen[key] = true
		if u := d.DeepLink(o.Book); u != "" {
			out = append(out, Action{Kind: ActionURL, Label: fmt.Sprintf(cat.open, o.Book), URL: u})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Label < out[j].Label })
	if d.ID != "" {
		out = append(out, Action{Kind: ActionCallback, Label: cat.placed, Data: PlacedData(d.ID)})
	}
	return out
}

func money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

func formatOdds(a int) string {
	return fmt.Sprintf("%+d", a)
}

func trimFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
