package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/pkg/stake"
)

// ErrBadDrop marks malformed ingress payloads.
var ErrBadDrop = errors.New("bad drop")

// BadDropError names the offending field.
type BadDropError struct {
	Field  string
	Reason string
}

func (e *BadDropError) Error() string {
	return fmt.Sprintf("bad drop: %s: %s", e.Field, e.Reason)
}

func (e *BadDropError) Unwrap() error { return ErrBadDrop }

func badDrop(field, format string, args ...any) error {
	return &BadDropError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// matchSeparators are tried in order when splitting "home vs away".
var matchSeparators = []string{" vs ", " @ ", " v ", " - "}

// marginKeys maps each kind to the payload field carrying its percentage.
var marginKeys = map[models.Kind]string{
	models.KindArbitrage: "arb_percentage",
	models.KindMiddle:    "middle_percent",
	models.KindGoodEV:    "ev_percent",
}

// knownFields are consumed by Normalize; everything else lands in Payload.
var knownFields = map[string]bool{
	"event_id": true, "bet_type": true, "match": true, "league": true, "sport": true,
	"market": true, "outcomes": true, "arb_percentage": true, "middle_percent": true, "ev_percent": true,
}

// Normalize turns a raw ingress payload into a canonical drop received at now.
func Normalize(raw map[string]any, now time.Time) (*models.Drop, error) {
	if raw == nil {
		return nil, badDrop("body", "empty payload")
	}

	eventID := stringField(raw, "event_id")
	if eventID == "" {
		return nil, badDrop("event_id", "missing")
	}

	kind, err := models.ParseKind(stringField(raw, "bet_type"))
	if err != nil {
		return nil, badDrop("bet_type", "%v", err)
	}

	match := strings.Join(strings.Fields(stringField(raw, "match")), " ")
	if match == "" {
		return nil, badDrop("match", "missing")
	}
	home, away, _ := SplitTeams(match)

	outcomes, err := parseOutcomes(raw["outcomes"])
	if err != nil {
		return nil, err
	}
	if len(outcomes) != kind.OutcomeCount() {
		return nil, badDrop("outcomes", "%s requires %d outcomes, got %d", kind, kind.OutcomeCount(), len(outcomes))
	}

	margin, ok, err := numberField(raw, marginKeys[kind])
	if err != nil {
		return nil, badDrop(marginKeys[kind], "%v", err)
	}
	if !ok && kind == models.KindArbitrage {
		// derive from the odds when the feed omits it
		if pct, err := stake.ArbitragePercent(oddsOf(outcomes)); err == nil {
			margin = stake.Round2(pct)
		}
	}

	payload := make(map[string]any)
	for k, v := range raw {
		if !knownFields[k] {
			payload[k] = v
		}
	}

	return &models.Drop{
		EventID:         eventID,
		FirstReceivedAt: now,
		ReceivedAt:      now,
		Kind:            kind,
		MarginPct:       margin,
		Match:           match,
		Home:            home,
		Away:            away,
		League:          strings.TrimSpace(stringField(raw, "league")),
		Sport:           strings.TrimSpace(stringField(raw, "sport")),
		Market:          strings.TrimSpace(stringField(raw, "market")),
		Outcomes:        outcomes,
		Payload:         payload,
	}, nil
}

// SplitTeams extracts home and away from a match label.
func SplitTeams(name string) (string, string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", false
	}
	lower := strings.ToLower(name)
	for _, sep := range matchSeparators {
		idx := strings.Index(lower, sep)
		if idx < 0 {
			continue
		}
		home := strings.TrimSpace(name[:idx])
		away := strings.TrimSpace(name[idx+len(sep):])
		if home == "" || away == "" {
			return "", "", false
		}
		return home, away, true
	}
	return "", "", false
}

func parseOutcomes(v any) ([]models.Outcome, error) {
	if v == nil {
		return nil, badDrop("outcomes", "missing")
	}
	list, ok := v.([]any)
	if !ok {
		return nil, badDrop("outcomes", "expected array, got %T", v)
	}
	out := make([]models.Outcome, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, badDrop(fmt.Sprintf("outcomes[%d]", i), "expected object")
		}
		odds, err := americanOdds(obj["odds"])
		if err != nil {
			return nil, badDrop(fmt.Sprintf("outcomes[%d].odds", i), "%v", err)
		}
		book := firstString(obj, "casino", "bookmaker", "book")
		if book == "" {
			return nil, badDrop(fmt.Sprintf("outcomes[%d].casino", i), "missing")
		}
		out = append(out, models.Outcome{
			Selection:    firstString(obj, "selection", "name", "outcome"),
			AmericanOdds: odds,
			Book:         book,
		})
	}
	return out, nil
}

func americanOdds(v any) (int, error) {
	var f float64
	switch x := v.(type) {
	case nil:
		return 0, errors.New("missing")
	case float64:
		f = x
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		n, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", x)
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("not numeric: %q", x)
		}
		f = n
	default:
		return 0, fmt.Errorf("not numeric: %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.New("not finite")
	}
	a := int(math.Round(f))
	if a == 0 {
		return 0, errors.New("zero odds")
	}
	return a, nil
}

func oddsOf(outcomes []models.Outcome) []int {
	odds := make([]int, len(outcomes))
	for i, o := range outcomes {
		odds[i] = o.AmericanOdds
	}
	return odds
}

func stringField(raw map[string]any, key string) string {
	switch v := raw[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

func firstString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(raw, k); s != "" {
			return s
		}
	}
	return ""
}

// numberField reads a numeric field that may arrive as a JSON number or string.
// NaN and infinities are rejected.
func numberField(raw map[string]any, key string) (float64, bool, error) {
	f, ok, err := parseNumber(raw[key])
	if err == nil && ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return 0, false, fmt.Errorf("not finite: %v", f)
	}
	return f, ok, err
}

func parseNumber(v any) (float64, bool, error) {
	switch v := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case json.Number:
		f, err := v.Float64()
		return f, err == nil, err
	case string:
		s := strings.TrimSuffix(strings.TrimSpace(v), "%")
		if s == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil, err
	default:
		return 0, false, fmt.Errorf("not numeric: %T", v)
	}
}
