package tgbot

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrabble-bot/internal/admin"
	"scrabble-bot/internal/clock"
	"scrabble-bot/internal/config"
	"scrabble-bot/internal/metrics"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/proof"
	"scrabble-bot/internal/roster"
	"scrabble-bot/internal/wizard"
)

// botAPI is the subset of *tgbotapi.BotAPI the app uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Roster is what the bot needs from the synchronizer.
type Roster interface {
	wizard.Submitter
	admin.Roster
}

type Deps struct {
	Roster Roster
	Proof  proof.Channel

	// Identity returns a fresh identity client per chat. Nil disables /admin.
	Identity func() admin.IdentityProvider

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

type App struct {
	cfg  config.Config
	bot  botAPI
	deps Deps

	mu    sync.Mutex
	chats map[int64]*chatState
}

// chatState is the per-chat conversation: at most one registration wizard
// and, for admins, one gate bound to that chat's own session.
type chatState struct {
	slot *wizard.Slot
	// awaiting names what the next plain text message fills in.
	awaiting string
	// editOne returns to the step card after one field instead of
	// prompting for the next.
	editOne    bool
	adminEmail string
	gate       *admin.Gate
}

const (
	awaitName          = "name"
	awaitEmail         = "email"
	awaitPhone         = "phone"
	awaitRating        = "rating"
	awaitAdminEmail    = "admin_email"
	awaitAdminPassword = "admin_password"
)

func New(cfg config.Config, deps Deps) (*App, error) {
	b, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, err
	}
	b.Debug = cfg.TelegramDebug
	return newApp(cfg, b, deps), nil
}

func newApp(cfg config.Config, bot botAPI, deps Deps) *App {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop()
	}
	deps.Logger = deps.Logger.With(slog.String("component", "tgbot"))
	return &App{cfg: cfg, bot: bot, deps: deps, chats: map[int64]*chatState{}}
}

func (a *App) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := a.bot.GetUpdatesChan(u)
	defer a.bot.StopReceivingUpdates()
	defer a.closeChats()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			a.HandleUpdate(ctx, upd)
		}
	}
}

// HandleUpdate processes one update. Errors are logged, never returned:
// a failed update must not stop the bot.
func (a *App) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		if err := a.handleMessage(ctx, upd.Message); err != nil {
			a.deps.Logger.Error("handle message", slog.Int64("chat", upd.Message.Chat.ID), slog.String("error", err.Error()))
		}
	case upd.CallbackQuery != nil:
		if err := a.handleCallback(ctx, upd.CallbackQuery); err != nil {
			a.deps.Logger.Error("handle callback", slog.String("data", upd.CallbackQuery.Data), slog.String("error", err.Error()))
		}
	}
}

func (a *App) chat(id int64) *chatState {
	a.mu.Lock()
	defer a.mu.Unlock()
	st, ok := a.chats[id]
	if !ok {
		st = &chatState{slot: wizard.NewSlot(func() *wizard.Wizard {
			return wizard.New(a.deps.Roster, a.deps.Proof)
		})}
		a.chats[id] = st
	}
	return st
}

func (a *App) closeChats() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, st := range a.chats {
		st.slot.Close()
		if st.gate != nil {
			st.gate.Close()
		}
	}
}

func (a *App) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := a.bot.Send(msg)
	return err
}

func (a *App) sendHTML(chatID int64, text string, kb *tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if kb != nil {
		msg.ReplyMarkup = *kb
	}
	_, err := a.bot.Send(msg)
	return err
}

// ---------- Message handling ----------

func (a *App) handleMessage(ctx context.Context, m *tgbotapi.Message) error {
	chatID := m.Chat.ID
	txt := strings.TrimSpace(m.Text)
	st := a.chat(chatID)

	switch {
	case strings.HasPrefix(txt, "/start"):
		st.awaiting = ""
		return a.showStart(chatID)
	case strings.HasPrefix(txt, "/register"):
		return a.openWizard(chatID, st)
	case strings.HasPrefix(txt, "/roster"):
		return a.showRoster(chatID, strings.TrimSpace(strings.TrimPrefix(txt, "/roster")))
	case strings.HasPrefix(txt, "/admin"):
		if !m.Chat.IsPrivate() {
			return a.SendText(chatID, adminPrivateOnly)
		}
		return a.startAdmin(chatID, st)
	case strings.HasPrefix(txt, "/cancel"):
		st.slot.Close()
		st.awaiting = ""
		return a.SendText(chatID, "Cancelled. Your draft was discarded. /start")
	}

	switch st.awaiting {
	case awaitName, awaitEmail, awaitPhone, awaitRating:
		return a.handleWizardInput(chatID, st, txt)
	case awaitAdminEmail, awaitAdminPassword:
		return a.handleAdminInput(ctx, chatID, st, m.MessageID, txt)
	}
	return a.showStart(chatID)
}

// ---------- Callback handling ----------

func (a *App) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q.Message == nil {
		return nil
	}
	chatID := q.Message.Chat.ID
	data := q.Data

	// ack
	cb := tgbotapi.NewCallback(q.ID, "")
	_, _ = a.bot.Request(cb)

	st := a.chat(chatID)
	switch {
	case strings.HasPrefix(data, "u:"):
		return a.handleUserCallback(chatID, st, data)
	case strings.HasPrefix(data, "w:"):
		return a.handleWizardCallback(ctx, chatID, st, data)
	case strings.HasPrefix(data, "a:"):
		// Admin sessions belong to a private chat, whose only member is the admin.
		if !q.Message.Chat.IsPrivate() {
			return a.SendText(chatID, adminPrivateOnly)
		}
		return a.handleAdminCallback(ctx, chatID, st, data)
	}
	return nil
}

func (a *App) handleUserCallback(chatID int64, st *chatState, data string) error {
	switch data {
	case "u:start":
		return a.showStart(chatID)
	case "u:register":
		return a.openWizard(chatID, st)
	case "u:roster":
		return a.showRoster(chatID, "")
	}
	return nil
}

func statusIcon(s models.Status) string {
	if s == models.StatusConfirmed {
		return "✅"
	}
	return "⏳"
}

// reason prefers the store's own message for rejected writes.
func reason(err error) string {
	var we *roster.WriteError
	if errors.As(err, &we) {
		return we.Reason
	}
	return err.Error()
}
