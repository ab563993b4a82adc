package surface

import (
	"context"
	"log/slog"

	"github.com/Vodeneev/dropalerts/internal/render"
)

// Log writes alerts to the logger instead of a chat. It is used when no bot
// token is configured.
type Log struct {
	log *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{log: logger.With("component", "log_surface")}
}

func (l *Log) SendAlert(ctx context.Context, userID int64, alert render.Alert) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.log.Info("Alert", "user_id", userID, "drop_id", alert.DropID, "kind", alert.Kind,
		"total_stake", alert.TotalStake, "expected_profit", alert.ExpectedProfit, "text", alert.Text)
	return nil
}
