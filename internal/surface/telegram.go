// Package surface delivers rendered alerts to users over Telegram.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/Vodeneev/dropalerts/internal/pkg/config"
	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/render"
)

// Telegram caps callback_data at 64 bytes.
const maxCallbackData = 64

const urlButtonsPerRow = 2

var ErrStopped = errors.New("telegram surface stopped")

// sender is the part of *tgbotapi.BotAPI used for outbound calls.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// BetRecorder receives "I placed this bet" confirmations.
type BetRecorder interface {
	RecordFromAlert(ctx context.Context, userID int64, dropID string) (*models.Bet, bool, error)
}

// Telegram sends alerts to private chats (chat id == user id) and routes
// callback buttons back to the ledger.
type Telegram struct {
	bot       sender
	api       *tgbotapi.BotAPI
	limiter   *rate.Limiter
	bets      BetRecorder
	callbacks bool
	log       *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// NewTelegram connects to the Bot API. bets may be nil when callbacks are disabled.
func NewTelegram(cfg config.TelegramConfig, bets BetRecorder) (*Telegram, error) {
	if cfg.BotToken == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	bot.Debug = false

	t := newTelegram(bot, cfg.MessagesPerSecond, bets)
	t.api = bot
	t.callbacks = cfg.EnableCallbacks && bets != nil
	t.log.Info("Telegram surface initialized", "bot", bot.Self.UserName, "messages_per_second", cfg.MessagesPerSecond)
	return t, nil
}

func newTelegram(bot sender, messagesPerSecond float64, bets BetRecorder) *Telegram {
	limit := rate.Inf
	burst := 1
	if messagesPerSecond > 0 {
		limit = rate.Limit(messagesPerSecond)
		burst = int(messagesPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(limit, burst),
		bets:    bets,
		log:     slog.Default().With("component", "telegram"),
	}
}

// SendAlert waits for a send slot and delivers the alert. It returns when
// Telegram answers or ctx is done, whichever comes first.
func (t *Telegram) SendAlert(ctx context.Context, userID int64, alert render.Alert) error {
	t.mu.Lock()
	stopped := t.stopped
	t.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	msg := tgbotapi.NewMessage(userID, alert.Text)
	msg.DisableWebPagePreview = true
	if kb, ok := keyboard(alert.Actions); ok {
		msg.ReplyMarkup = kb
	}

	done := make(chan error, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("telegram send to %d: %w", userID, err)
		}
		t.log.Debug("Telegram send: success", "user_id", userID, "drop_id", alert.DropID, "kind", alert.Kind)
		return nil
	}
}

// keyboard lays URL buttons out two per row with callbacks on their own rows.
func keyboard(actions []render.Action) (tgbotapi.InlineKeyboardMarkup, bool) {
	var (
		rows      [][]tgbotapi.InlineKeyboardButton
		row       []tgbotapi.InlineKeyboardButton
		callbacks [][]tgbotapi.InlineKeyboardButton
	)
	for _, a := range actions {
		switch a.Kind {
		case render.ActionURL:
			if a.URL == "" {
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonURL(a.Label, a.URL))
			if len(row) == urlButtonsPerRow {
				rows = append(rows, row)
				row = nil
			}
		case render.ActionCallback:
			if a.Data == "" || len(a.Data) > maxCallbackData {
				continue
			}
			callbacks = append(callbacks, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(a.Label, a.Data)))
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	rows = append(rows, callbacks...)
	if len(rows) == 0 {
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...), true
}

// Start begins long-polling for callback queries. It is a no-op when
// callbacks are disabled.
func (t *Telegram) Start(ctx context.Context) {
	if !t.callbacks || t.api == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = []string{"callback_query"}
	updates := t.api.GetUpdatesChan(u)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				if update.CallbackQuery != nil {
					t.handleCallback(ctx, update.CallbackQuery)
				}
			}
		}
	}()
	t.log.Info("Telegram surface: listening for callbacks")
}

func (t *Telegram) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	answer := "Unknown action"
	dropID, ok := render.ParsePlaced(cb.Data)
	if ok && t.bets != nil && cb.From != nil {
		bet, created, err := t.bets.RecordFromAlert(ctx, cb.From.ID, dropID)
		switch {
		case err != nil:
			t.log.Error("Failed to record bet from alert", "user_id", cb.From.ID, "drop_id", dropID, "error", err)
			answer = "Could not record this bet"
		case created:
			answer = fmt.Sprintf("Bet recorded: $%.2f staked", bet.TotalStake)
		default:
			answer = "Already recorded"
		}
	}
	if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, answer)); err != nil {
		t.log.Warn("Failed to answer callback", "callback_id", cb.ID, "error", err)
	}
}

// Stop ends the update loop. Later SendAlert calls fail with ErrStopped.
func (t *Telegram) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
	t.log.Info("Telegram surface stopped")
}
