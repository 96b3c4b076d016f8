package tgbot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"scrabble-bot/internal/models"
	"scrabble-bot/internal/wizard"
)

// skip clears an optional field.
const skip = "-"

var fieldOrder = []string{awaitName, awaitEmail, awaitPhone, awaitRating}

var fieldPrompts = map[string]string{
	awaitName:   "Send your full name as it should appear on the roster:",
	awaitEmail:  "Email address (send - to skip):",
	awaitPhone:  "Phone number (send - to skip):",
	awaitRating: "Rating ID, if you have one (send - to skip):",
}

func (a *App) openWizard(chatID int64, st *chatState) error {
	st.slot.Open()
	st.awaiting = awaitName
	st.editOne = false
	return a.SendText(chatID, "📝 Registration · Step 1/5\n\n"+fieldPrompts[awaitName])
}

func (a *App) handleWizardInput(chatID int64, st *chatState, txt string) error {
	w, ok := st.slot.Current()
	if !ok {
		st.awaiting = ""
		return a.SendText(chatID, "No registration in progress. /register")
	}

	field := st.awaiting
	value := txt
	if value == skip {
		value = ""
	}

	var err error
	switch field {
	case awaitName:
		if strings.TrimSpace(value) == "" {
			return a.SendText(chatID, "The name can't be empty. "+fieldPrompts[awaitName])
		}
		err = w.SetName(value)
	case awaitEmail:
		if value != "" && !models.LooksLikeEmail(value) {
			return a.SendText(chatID, "That doesn't look like an email address. "+fieldPrompts[awaitEmail])
		}
		err = w.SetEmail(value)
	case awaitPhone:
		err = w.SetPhone(value)
	case awaitRating:
		err = w.SetRatingID(value)
	}
	if err != nil {
		st.awaiting = ""
		return a.wizardGone(chatID, err)
	}

	if next := nextField(field); next != "" && !st.editOne {
		st.awaiting = next
		return a.SendText(chatID, fieldPrompts[next])
	}
	st.awaiting = ""
	st.editOne = false
	return a.renderStep(chatID, w)
}

func nextField(field string) string {
	for i, f := range fieldOrder {
		if f == field && i+1 < len(fieldOrder) {
			return fieldOrder[i+1]
		}
	}
	return ""
}

func (a *App) handleWizardCallback(ctx context.Context, chatID int64, st *chatState, data string) error {
	w, ok := st.slot.Current()
	if !ok {
		return a.SendText(chatID, "This registration is closed. /register to start again.")
	}

	switch {
	case data == "w:fwd":
		return a.wizardForward(ctx, chatID, st, w)
	case data == "w:back":
		w.Back()
		st.awaiting = ""
		return a.renderStep(chatID, w)
	case data == "w:close":
		st.slot.Close()
		st.awaiting = ""
		return a.SendText(chatID, "Registration cancelled. Your draft was discarded.")
	case strings.HasPrefix(data, "w:cat:"):
		i, err := strconv.Atoi(strings.TrimPrefix(data, "w:cat:"))
		if err != nil || i < 0 || i >= len(models.Categories) {
			return nil
		}
		if err := w.SetCategory(models.Categories[i]); err != nil {
			return a.wizardGone(chatID, err)
		}
		return a.renderStep(chatID, w)
	case strings.HasPrefix(data, "w:edit:"):
		field := strings.TrimPrefix(data, "w:edit:")
		if _, ok := fieldPrompts[field]; !ok || w.Step() != wizard.StepIdentity {
			return nil
		}
		st.awaiting = field
		st.editOne = true
		return a.SendText(chatID, fieldPrompts[field])
	}
	return nil
}

func (a *App) wizardForward(ctx context.Context, chatID int64, st *chatState, w *wizard.Wizard) error {
	before := w.Step()
	wasSubmitted := w.Submitted()

	step, err := w.Forward(ctx)
	switch {
	case errors.Is(err, wizard.ErrClosed):
		return a.wizardGone(chatID, err)
	case err != nil:
		a.deps.Logger.Warn("registration rejected", slog.Int64("chat", chatID), slog.String("error", err.Error()))
		if sendErr := a.SendText(chatID, "❌ Registration failed: "+reason(err)+"\nFix your details or tap “I have paid” to try again."); sendErr != nil {
			return sendErr
		}
		return a.renderStep(chatID, w)
	}

	if w.Closed() {
		st.awaiting = ""
		return a.SendText(chatID, "All set. See you at the board! /roster")
	}
	if before == wizard.StepIdentity && step == wizard.StepIdentity {
		st.awaiting = awaitName
		return a.SendText(chatID, "Please send your name first. "+fieldPrompts[awaitName])
	}
	if !wasSubmitted && w.Submitted() {
		a.deps.Metrics.RegistrationsTotal.Inc()
		a.deps.Logger.Info("registration submitted", slog.Int64("chat", chatID), slog.String("name", w.Draft().Name))
	}
	st.awaiting = ""
	return a.renderStep(chatID, w)
}

func (a *App) wizardGone(chatID int64, err error) error {
	if errors.Is(err, wizard.ErrSubmitted) {
		return a.SendText(chatID, "Your registration was already sent and can't be changed.")
	}
	return a.SendText(chatID, "This registration is closed. /register to start again.")
}

func (a *App) renderStep(chatID int64, w *wizard.Wizard) error {
	d := w.Draft()
	step := w.Step()

	var b strings.Builder
	fmt.Fprintf(&b, "📝 <b>Registration · Step %d/5</b>\n\n", step)

	back := tgbotapi.NewInlineKeyboardButtonData("⬅️ Back", "w:back")
	next := tgbotapi.NewInlineKeyboardButtonData("Continue ➡️", "w:fwd")
	cancel := tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✖ Cancel", "w:close"))
	var rows [][]tgbotapi.InlineKeyboardButton

	switch step {
	case wizard.StepIdentity:
		b.WriteString("<b>Your details</b>\n")
		writeDraft(&b, d, false)
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Name", "w:edit:"+awaitName),
				tgbotapi.NewInlineKeyboardButtonData("✏️ Email", "w:edit:"+awaitEmail),
			),
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✏️ Phone", "w:edit:"+awaitPhone),
				tgbotapi.NewInlineKeyboardButtonData("✏️ Rating ID", "w:edit:"+awaitRating),
			),
			tgbotapi.NewInlineKeyboardRow(next),
			cancel,
		)

	case wizard.StepCategory:
		b.WriteString("<b>Choose your category</b>\n")
		for i, c := range models.Categories {
			label := string(c)
			if c == d.Category {
				label = "✅ " + label
			}
			rows = append(rows, tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData(label, "w:cat:"+strconv.Itoa(i)),
			))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(back, next), cancel)

	case wizard.StepReview:
		b.WriteString("<b>Check your entry</b>\n")
		writeDraft(&b, d, true)
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(back, next), cancel)

	case wizard.StepPayment:
		ev := a.cfg.Event
		b.WriteString("<b>Payment</b>\n")
		fmt.Fprintf(&b, "Transfer <b>%s</b> to:\n", html.EscapeString(ev.Fee))
		fmt.Fprintf(&b, "🏦 %s\n", html.EscapeString(ev.Bank.BankName))
		fmt.Fprintf(&b, "🔢 <code>%s</code>\n", html.EscapeString(ev.Bank.AccountNumber))
		fmt.Fprintf(&b, "👤 %s\n\n", html.EscapeString(ev.Bank.AccountName))
		b.WriteString("Tap “I have paid” after the transfer. Your spot stays pending until the organisers check the payment.")
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			back,
			tgbotapi.NewInlineKeyboardButtonData("✅ I have paid", "w:fwd"),
		))

	case wizard.StepConfirmation:
		fmt.Fprintf(&b, "🎉 You're on the roster, <b>%s</b>!\n", html.EscapeString(d.Name))
		b.WriteString("Status: ⏳ pending\n\nSend your payment receipt so the organisers can confirm you.")
		if link, ok := w.ProofLink(); ok {
			if strings.HasPrefix(link, "http") {
				rows = append(rows, tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonURL("📤 Send proof via "+a.deps.Proof.Name(), link),
				))
			} else {
				fmt.Fprintf(&b, "\n\n%s", html.EscapeString(link))
			}
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Done", "w:fwd"),
		))
	}

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return a.sendHTML(chatID, b.String(), &kb)
}

func writeDraft(b *strings.Builder, d models.Draft, withCategory bool) {
	fmt.Fprintf(b, "Name: %s\n", orDash(d.Name))
	fmt.Fprintf(b, "Email: %s\n", orDash(d.Email))
	fmt.Fprintf(b, "Phone: %s\n", orDash(d.Phone))
	fmt.Fprintf(b, "Rating ID: %s\n", orDash(d.RatingID))
	if withCategory {
		fmt.Fprintf(b, "Category: %s\n", orDash(string(d.Category)))
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "—"
	}
	return html.EscapeString(s)
}
