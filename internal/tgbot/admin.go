package tgbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrabble-bot/internal/admin"
	"scrabble-bot/internal/export"
	"scrabble-bot/internal/models"
	"scrabble-bot/internal/store"
	"scrabble-bot/internal/util"
)

const (
	sessionEnded     = "Session ended. /admin to sign in again."
	adminPrivateOnly = "Admin commands only work in a private chat with the bot."
)

func (a *App) startAdmin(chatID int64, st *chatState) error {
	if a.deps.Identity == nil {
		return a.SendText(chatID, "Admin access is not configured.")
	}
	if st.gate == nil {
		st.gate = admin.New(a.deps.Identity(), a.deps.Roster,
			admin.WithLogger(a.deps.Logger),
			admin.WithClock(a.deps.Clock))
	}
	if _, err := st.gate.List(); err == nil {
		st.awaiting = ""
		return a.showAdmin(chatID, st)
	}
	st.awaiting = awaitAdminEmail
	st.adminEmail = ""
	return a.SendText(chatID, "🔐 Admin sign-in\n\nSend your admin email:")
}

func (a *App) handleAdminInput(ctx context.Context, chatID int64, st *chatState, msgID int, txt string) error {
	if st.gate == nil {
		st.awaiting = ""
		return a.startAdmin(chatID, st)
	}

	if st.awaiting == awaitAdminEmail {
		st.adminEmail = txt
		st.awaiting = awaitAdminPassword
		return a.SendText(chatID, "Password:")
	}

	// The password should not linger in the chat history.
	if _, err := a.bot.Request(tgbotapi.NewDeleteMessage(chatID, msgID)); err != nil {
		a.deps.Logger.Debug("delete password message", slog.Int64("chat", chatID), slog.String("error", err.Error()))
	}

	email := st.adminEmail
	st.adminEmail = ""
	st.awaiting = ""
	if err := st.gate.SignIn(ctx, email, txt); err != nil {
		var ae *admin.AuthError
		if errors.As(err, &ae) {
			return a.SendText(chatID, "❌ "+ae.Reason+". /admin to try again.")
		}
		return err
	}
	return a.showAdmin(chatID, st)
}

func (a *App) handleAdminCallback(ctx context.Context, chatID int64, st *chatState, data string) error {
	if st.gate == nil {
		return a.SendText(chatID, sessionEnded)
	}
	g := st.gate

	var err error
	switch {
	case data == "a:list":
		err = a.showAdmin(chatID, st)

	case strings.HasPrefix(data, "a:toggle:"):
		id := strings.TrimPrefix(data, "a:toggle:")
		var next models.Status
		if next, err = g.ToggleStatus(ctx, id); err == nil {
			a.deps.Logger.Info("status toggled", slog.String("id", id), slog.String("status", string(next)))
			err = a.showAdmin(chatID, st)
		}

	case strings.HasPrefix(data, "a:del:"):
		var c admin.Confirmation
		if c, err = g.RequestDelete(strings.TrimPrefix(data, "a:del:")); err == nil {
			kb := tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("🗑 Yes, delete", "a:delok:"+c.Token),
				tgbotapi.NewInlineKeyboardButtonData("Cancel", "a:delno:"+c.Token),
			))
			err = a.sendHTML(chatID, fmt.Sprintf("Remove <b>%s</b> (%s) from the roster?",
				html.EscapeString(c.Registrant.Name), html.EscapeString(c.Registrant.Category.Short())), &kb)
		}

	case strings.HasPrefix(data, "a:delok:"):
		if err = g.ConfirmDelete(ctx, strings.TrimPrefix(data, "a:delok:")); err == nil {
			if err = a.SendText(chatID, "🗑 Removed."); err == nil {
				err = a.showAdmin(chatID, st)
			}
		}

	case strings.HasPrefix(data, "a:delno:"):
		g.CancelDelete(strings.TrimPrefix(data, "a:delno:"))
		err = a.SendText(chatID, "Kept.")

	case data == "a:export":
		err = a.sendExport(chatID, g)

	case data == "a:logout":
		if err = g.SignOut(ctx); err == nil {
			err = a.SendText(chatID, "Signed out.")
		}
	}

	switch {
	case errors.Is(err, admin.ErrUnauthenticated):
		return a.SendText(chatID, sessionEnded)
	case errors.Is(err, admin.ErrUnknownConfirmation):
		return a.SendText(chatID, "That confirmation has expired. Pick the player again.")
	case errors.Is(err, store.ErrNotFound):
		if sendErr := a.SendText(chatID, "That player is no longer on the roster."); sendErr != nil {
			return sendErr
		}
		return a.showAdmin(chatID, st)
	case err != nil:
		var sendErr error
		if strings.HasPrefix(data, "a:toggle:") || strings.HasPrefix(data, "a:delok:") {
			sendErr = a.SendText(chatID, "❌ Update failed: "+reason(err))
		}
		return errors.Join(err, sendErr)
	}
	return nil
}

func (a *App) showAdmin(chatID int64, st *chatState) error {
	snap, err := st.gate.List()
	if err != nil {
		return err
	}
	stats := snap.Stats(a.cfg.Event.Capacity)

	var b strings.Builder
	fmt.Fprintf(&b, "🛠 <b>Admin</b> · %s\n", html.EscapeString(st.gate.Email()))
	fmt.Fprintf(&b, "%d registered, %d confirmed, %d pending\n\n", stats.Total, stats.Confirmed, stats.Total-stats.Confirmed)

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, r := range snap.Registrants() {
		if i == maxRosterLines {
			fmt.Fprintf(&b, "… and %d more, see the export\n", snap.Len()-i)
			break
		}
		fmt.Fprintf(&b, "%d. %s %s · %s · %s\n", i+1, statusIcon(r.Status),
			html.EscapeString(r.Name), html.EscapeString(r.Category.Short()), util.FormatRegisteredAt(r.RegisteredAt))
		if r.Email != "" || r.Phone != "" {
			fmt.Fprintf(&b, "    %s %s\n", html.EscapeString(r.Email), html.EscapeString(r.Phone))
		}
		label := "✅ Confirm"
		if r.Status == models.StatusConfirmed {
			label = "⏳ Unconfirm"
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(fmt.Sprintf("%d. %s", i+1, label), "a:toggle:"+r.ID),
			tgbotapi.NewInlineKeyboardButtonData("🗑", "a:del:"+r.ID),
		))
	}
	if snap.Len() == 0 {
		b.WriteString("No registrations yet.\n")
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "a:list"),
		tgbotapi.NewInlineKeyboardButtonData("📄 Export CSV", "a:export"),
		tgbotapi.NewInlineKeyboardButtonData("🚪 Sign out", "a:logout"),
	))
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return a.sendHTML(chatID, b.String(), &kb)
}

func (a *App) sendExport(chatID int64, g *admin.Gate) error {
	snap, err := g.List()
	if err != nil {
		return err
	}
	data, err := export.CSV(snap)
	if err != nil {
		return err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: "roster.csv", Bytes: data})
	doc.Caption = fmt.Sprintf("%d registrants", snap.Len())
	if _, err := a.bot.Send(doc); err != nil {
		return err
	}
	if a.cfg.BasePublicURL == "" {
		return nil
	}
	return a.SendText(chatID, "Live export link:\n"+export.Link(a.cfg.BasePublicURL, a.cfg.ExportSecret))
}
