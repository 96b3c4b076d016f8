package tgbot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrabble-bot/internal/event"
	"scrabble-bot/internal/util"
)

// maxRosterLines keeps a roster message under Telegram's length limit.
const maxRosterLines = 100

func (a *App) showStart(chatID int64) error {
	ev := a.cfg.Event
	snap := a.deps.Roster.Snapshot()
	stats := snap.Stats(ev.Capacity)
	left := event.Countdown(a.deps.Clock.Now(), ev.Start)

	var b strings.Builder
	fmt.Fprintf(&b, "♟ <b>%s</b>\n", html.EscapeString(ev.Name))
	fmt.Fprintf(&b, "📅 %s\n", util.FormatRegisteredAt(ev.Start))
	if ev.Venue != "" {
		fmt.Fprintf(&b, "📍 %s\n", html.EscapeString(ev.Venue))
	}
	fmt.Fprintf(&b, "💰 Entry fee: %s\n\n", html.EscapeString(ev.Fee))
	if left.Started {
		b.WriteString("⏱ The tournament has started.\n")
	} else {
		fmt.Fprintf(&b, "⏱ Starts in %s\n", left)
	}
	if ev.Capacity > 0 {
		fmt.Fprintf(&b, "👥 %d / %d registered (%d%% full)\n", stats.Total, stats.Capacity, stats.Occupancy)
	} else {
		fmt.Fprintf(&b, "👥 %d registered\n", stats.Total)
	}
	for _, c := range stats.Categories {
		fmt.Fprintf(&b, "   • %s: %d\n", html.EscapeString(c.Category), c.Count)
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📝 Register", "u:register"),
			tgbotapi.NewInlineKeyboardButtonData("📋 Roster", "u:roster"),
		),
	)
	return a.sendHTML(chatID, b.String(), &kb)
}

func (a *App) showRoster(chatID int64, term string) error {
	snap := a.deps.Roster.Snapshot()
	items := snap.Search(term)

	if len(items) == 0 {
		if term != "" {
			return a.SendText(chatID, fmt.Sprintf("No players match %q.", term))
		}
		return a.SendText(chatID, "No players registered yet. Be the first: /register")
	}

	var b strings.Builder
	if term != "" {
		fmt.Fprintf(&b, "🔎 <b>%d</b> of %d players match “%s”\n\n", len(items), snap.Len(), html.EscapeString(term))
	} else {
		fmt.Fprintf(&b, "📋 <b>Registered players</b> (%d)\n\n", len(items))
	}
	for i, r := range items {
		if i == maxRosterLines {
			fmt.Fprintf(&b, "… and %d more\n", len(items)-i)
			break
		}
		fmt.Fprintf(&b, "%d. %s %s · %s · %s\n",
			i+1,
			statusIcon(r.Status),
			html.EscapeString(r.Name),
			html.EscapeString(r.Category.Short()),
			util.FormatRegisteredAt(r.RegisteredAt),
		)
	}
	b.WriteString("\n✅ confirmed · ⏳ awaiting payment check")
	return a.sendHTML(chatID, b.String(), nil)
}
