package models

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the drop discriminator.
type Kind string

const (
	KindArbitrage Kind = "arbitrage"
	KindMiddle    Kind = "middle"
	KindGoodEV    Kind = "good_ev"
)

// Kinds lists every supported kind in display order.
var Kinds = []Kind{KindArbitrage, KindMiddle, KindGoodEV}

// ParseKind maps a bet_type value to a Kind. Empty input defaults to arbitrage.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "arbitrage", "arb", "surebet":
		return KindArbitrage, nil
	case "middle", "middles":
		return KindMiddle, nil
	case "good_ev", "goodev", "good-ev", "ev", "positive_ev", "+ev":
		return KindGoodEV, nil
	default:
		return "", fmt.Errorf("unknown bet_type %q", s)
	}
}

// OutcomeCount returns the exact number of outcomes a drop of this kind carries.
func (k Kind) OutcomeCount() int {
	if k == KindGoodEV {
		return 1
	}
	return 2
}

func (k Kind) Valid() bool {
	return k == KindArbitrage || k == KindMiddle || k == KindGoodEV
}

// Outcome is one leg of a drop.
type Outcome struct {
	Selection    string `json:"selection"`
	AmericanOdds int    `json:"american_odds"`
	Book         string `json:"book"`
}

// Drop is the canonical record of one opportunity observed upstream.
type Drop struct {
	ID              string            `json:"id"`
	EventID         string            `json:"event_id"`
	FirstReceivedAt time.Time         `json:"first_received_at"`
	ReceivedAt      time.Time         `json:"received_at"`
	Kind            Kind              `json:"kind"`
	MarginPct       float64           `json:"margin_pct"`
	Match           string            `json:"match"`
	Home            string            `json:"home"`
	Away            string            `json:"away"`
	League          string            `json:"league"`
	Sport           string            `json:"sport"`
	Market          string            `json:"market"`
	CommenceTime    *time.Time        `json:"commence_time,omitempty"`
	Outcomes        []Outcome         `json:"outcomes"`
	DeepLinks       map[string]string `json:"deep_links,omitempty"` // book -> URL
	Payload         map[string]any    `json:"payload,omitempty"`
}

// AmericanOdds returns the odds of every outcome in order.
func (d *Drop) AmericanOdds() []int {
	out := make([]int, len(d.Outcomes))
	for i, o := range d.Outcomes {
		out[i] = o.AmericanOdds
	}
	return out
}

// Books returns the book of every outcome in order.
func (d *Drop) Books() []string {
	out := make([]string, len(d.Outcomes))
	for i, o := range d.Outcomes {
		out[i] = o.Book
	}
	return out
}

// Clone returns a deep copy so a fanout can hold an immutable snapshot.
func (d *Drop) Clone() *Drop {
	if d == nil {
		return nil
	}
	c := *d
	c.Outcomes = append([]Outcome(nil), d.Outcomes...)
	if d.CommenceTime != nil {
		t := *d.CommenceTime
		c.CommenceTime = &t
	}
	if d.DeepLinks != nil {
		c.DeepLinks = make(map[string]string, len(d.DeepLinks))
		for k, v := range d.DeepLinks {
			c.DeepLinks[k] = v
		}
	}
	if d.Payload != nil {
		c.Payload = make(map[string]any, len(d.Payload))
		for k, v := range d.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}

// DeepLink returns the deep link for a book, matching case-insensitively.
func (d *Drop) DeepLink(book string) string {
	if d.DeepLinks == nil {
		return ""
	}
	if u, ok := d.DeepLinks[book]; ok {
		return u
	}
	for k, u := range d.DeepLinks {
		if strings.EqualFold(k, book) {
			return u
		}
	}
	return ""
}
