package surface

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Vodeneev/dropalerts/internal/pkg/models"
	"github.com/Vodeneev/dropalerts/internal/render"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	answers  []tgbotapi.CallbackConfig
	sendErr  error
	sendWait time.Duration
}

func (f *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.sendWait > 0 {
		time.Sleep(f.sendWait)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return tgbotapi.Message{}, f.sendErr
	}
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func (f *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		f.answers = append(f.answers, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

type fakeRecorder struct {
	calls   []string
	created bool
	err     error
}

func (f *fakeRecorder) RecordFromAlert(_ context.Context, userID int64, dropID string) (*models.Bet, bool, error) {
	f.calls = append(f.calls, dropID)
	if f.err != nil {
		return nil, false, f.err
	}
	return &models.Bet{ID: "b1", UserID: userID, DropID: dropID, TotalStake: 400}, f.created, nil
}

func testAlert() render.Alert {
	return render.Alert{
		DropID: "d1",
		Kind:   models.KindArbitrage,
		Text:   "ARBITRAGE 3.20%\nLakers vs Celtics",
		Actions: []render.Action{
			{Kind: render.ActionURL, Label: "Open Betsson", URL: "https://betsson.example/1"},
			{Kind: render.ActionURL, Label: "Open Coolbet", URL: "https://coolbet.example/1"},
			{Kind: render.ActionURL, Label: "Open Pinnacle", URL: "https://pinnacle.example/1"},
			{Kind: render.ActionCallback, Label: "I placed it", Data: render.PlacedData("d1")},
		},
	}
}

func TestKeyboard_Layout(t *testing.T) {
	kb, ok := keyboard(testAlert().Actions)
	if !ok {
		t.Fatal("expected a keyboard")
	}
	rows := kb.InlineKeyboard
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	if len(rows[0]) != 2 || len(rows[1]) != 1 || len(rows[2]) != 1 {
		t.Errorf("row sizes = %d,%d,%d", len(rows[0]), len(rows[1]), len(rows[2]))
	}
	if rows[0][0].URL == nil || *rows[0][0].URL != "https://betsson.example/1" {
		t.Errorf("first button = %+v", rows[0][0])
	}
	last := rows[2][0]
	if last.CallbackData == nil || *last.CallbackData != "bet:d1" {
		t.Errorf("callback button = %+v", last)
	}
}

func TestKeyboard_SkipsInvalidActions(t *testing.T) {
	tests := []struct {
		name    string
		actions []render.Action
		wantOK  bool
	}{
		{"none", nil, false},
		{"url without target", []render.Action{{Kind: render.ActionURL, Label: "x"}}, false},
		{"oversized data", []render.Action{{Kind: render.ActionCallback, Label: "x", Data: "bet:" + strings.Repeat("a", 70)}}, false},
		{"callback only", []render.Action{{Kind: render.ActionCallback, Label: "x", Data: "bet:1"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := keyboard(tt.actions); ok != tt.wantOK {
				t.Errorf("ok = %v, want %v", ok, tt.wantOK)
			}
		})
	}
}

func TestSendAlert(t *testing.T) {
	bot := &fakeBot{}
	tg := newTelegram(bot, 0, nil)

	if err := tg.SendAlert(context.Background(), 42, testAlert()); err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("sent = %d", len(bot.sent))
	}
	msg := bot.sent[0]
	if msg.ChatID != 42 || !strings.Contains(msg.Text, "Lakers vs Celtics") || !msg.DisableWebPagePreview {
		t.Errorf("message = %+v", msg)
	}
	if _, ok := msg.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup); !ok {
		t.Errorf("reply markup = %T", msg.ReplyMarkup)
	}
}

func TestSendAlert_Errors(t *testing.T) {
	t.Run("transport", func(t *testing.T) {
		tg := newTelegram(&fakeBot{sendErr: errors.New("Forbidden: bot was blocked by the user")}, 0, nil)
		if err := tg.SendAlert(context.Background(), 1, testAlert()); err == nil {
			t.Error("expected error")
		}
	})
	t.Run("deadline", func(t *testing.T) {
		tg := newTelegram(&fakeBot{sendWait: 300 * time.Millisecond}, 0, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := tg.SendAlert(ctx, 1, testAlert()); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("err = %v, want deadline exceeded", err)
		}
	})
	t.Run("stopped", func(t *testing.T) {
		tg := newTelegram(&fakeBot{}, 0, nil)
		tg.Stop()
		if err := tg.SendAlert(context.Background(), 1, testAlert()); !errors.Is(err, ErrStopped) {
			t.Errorf("err = %v, want ErrStopped", err)
		}
	})
}

func TestSendAlert_RateLimited(t *testing.T) {
	tg := newTelegram(&fakeBot{}, 1, nil)
	if err := tg.SendAlert(context.Background(), 1, testAlert()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := tg.SendAlert(ctx, 1, testAlert()); err == nil {
		t.Error("second send within the same second should wait past the deadline")
	}
}

func TestHandleCallback(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		recorder  *fakeRecorder
		wantCalls int
		wantText  string
	}{
		{"new bet", "bet:d1", &fakeRecorder{created: true}, 1, "Bet recorded: $400.00 staked"},
		{"repeat click", "bet:d1", &fakeRecorder{}, 1, "Already recorded"},
		{"ledger error", "bet:d1", &fakeRecorder{err: errors.New("db down")}, 1, "Could not record this bet"},
		{"unknown data", "settings:open", &fakeRecorder{}, 0, "Unknown action"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{}
			tg := newTelegram(bot, 0, tt.recorder)
			tg.handleCallback(context.Background(), &tgbotapi.CallbackQuery{
				ID:   "cb1",
				From: &tgbotapi.User{ID: 7},
				Data: tt.data,
			})
			if len(tt.recorder.calls) != tt.wantCalls {
				t.Errorf("recorder calls = %v", tt.recorder.calls)
			}
			if len(bot.answers) != 1 || bot.answers[0].Text != tt.wantText || bot.answers[0].CallbackQueryID != "cb1" {
				t.Errorf("answers = %+v", bot.answers)
			}
		})
	}
}

func TestLogSurface(t *testing.T) {
	l := NewLog(nil)
	if err := l.SendAlert(context.Background(), 1, testAlert()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.SendAlert(ctx, 1, testAlert()); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
