package render

import (
	"strings"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
)

// ActionKind tells the surface how to present an action.
type ActionKind string

const (
	ActionURL      ActionKind = "url"
	ActionCallback ActionKind = "callback"
)

// Action is a transport-neutral button.
type Action struct {
	Kind  ActionKind `json:"kind"`
	Label string     `json:"label"`
	URL   string     `json:"url,omitempty"`
	Data  string     `json:"data,omitempty"`
}

// Alert is the rendered payload handed to the conversation surface.
type Alert struct {
	DropID         string      `json:"drop_id"`
	Kind           models.Kind `json:"kind"`
	Language       string      `json:"language"`
	Text           string      `json:"text"`
	Actions        []Action    `json:"actions,omitempty"`
	Stakes         []float64   `json:"stakes"`
	TotalStake     float64     `json:"total_stake"`
	ExpectedProfit float64     `json:"expected_profit"`
}

const placedPrefix = "bet:"

// PlacedData is the callback payload for "I placed this bet".
func PlacedData(dropID string) string {
	return placedPrefix + dropID
}

// ParsePlaced extracts the drop id from a PlacedData payload.
func ParsePlaced(data string) (string, bool) {
	if !strings.HasPrefix(data, placedPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(data, placedPrefix)
	return id, id != ""
}
