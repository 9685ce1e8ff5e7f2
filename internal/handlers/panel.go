package handlers

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chithravani/internal/storyview"
	"chithravani/internal/workspace"
)

const (
	callbackPrefix = "ws"
	// Telegram caps a keyboard at 100 buttons; beyond this many images the
	// list is managed with /move.
	maxImageRows = 20
)

const (
	actionUp          = "up"
	actionDown        = "down"
	actionRemove      = "rm"
	actionNext        = "next"
	actionGenre       = "genre"
	actionChars       = "chars"
	actionCharsSubmit = "chars_submit"
	actionCharsCancel = "chars_cancel"
	actionGenerate    = "gen"
	actionEdit        = "edit"
	actionReset       = "reset"
	actionNoop        = "noop"
)

func panelText(snap workspace.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📚 Photo Story · step %d/4\n", int(snap.Step))
	b.WriteString(snap.StepCaption + "\n")

	if len(snap.Images) > 0 {
		b.WriteString("\n")
		for _, img := range snap.Images {
			fmt.Fprintf(&b, "%d. %s %s\n", img.Position, statusIcon(img.Status), truncateLine(img.Name, 40))
		}
	}

	b.WriteString("\n")
	switch {
	case snap.Loading:
		b.WriteString("⏳ " + storyview.LoadingTitle)
	case snap.CharacterModalOpen:
		b.WriteString("👥 Describe your characters\n")
		b.WriteString("Send a message with names, looks and personalities.\n")
		if snap.HasCharacters() {
			b.WriteString("Current: " + truncateLine(snap.Characters, 200) + "\n")
		}
		b.WriteString("/cancel to close.")
	default:
		b.WriteString(stepHint(snap))
	}

	return strings.TrimSpace(b.String())
}

func stepHint(snap workspace.Snapshot) string {
	switch snap.Step {
	case workspace.StepUpload:
		if len(snap.Images) == 0 {
			return "📷 Send photos to begin. Albums keep their order."
		}
		return "📷 Send more photos, reorder with ↑ ↓ or remove with ✕."
	case workspace.StepGenre:
		return fmt.Sprintf("🎭 Genre: %s %s", snap.Genre.Emoji(), snap.Genre.Label())
	case workspace.StepCharacters:
		chars := "(none yet)"
		if snap.HasCharacters() {
			chars = truncateLine(snap.Characters, 200)
		}
		return "👥 Characters: " + chars + "\nSend a message to describe your characters."
	case workspace.StepGenerate:
		return summaryLine(snap)
	default:
		return ""
	}
}

// summaryLine is the step 4 overview of what will be sent.
func summaryLine(snap workspace.Snapshot) string {
	parts := []string{
		"📸 " + storyview.PhotoCount(len(snap.Images)),
		snap.Genre.Emoji() + " " + snap.Genre.Label(),
	}
	if snap.HasCharacters() {
		parts = append(parts, "👥 Characters defined")
	}
	return strings.Join(parts, " • ")
}

func statusIcon(st workspace.Status) string {
	switch st {
	case workspace.StatusAnalyzing:
		return "🔍"
	case workspace.StatusComplete:
		return "✅"
	default:
		return "🖼"
	}
}

func panelKeyboard(ownerID int64, snap workspace.Snapshot) tgbotapi.InlineKeyboardMarkup {
	if snap.Loading {
		return tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("⏳ Generating…", cb(ownerID, actionNoop)),
			),
		)
	}

	var rows [][]tgbotapi.InlineKeyboardButton
	for i, img := range snap.Images {
		if i >= maxImageRows {
			break
		}
		pos := strconv.Itoa(img.Position)
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("↑ "+pos, cb(ownerID, actionUp, img.ID)),
			tgbotapi.NewInlineKeyboardButtonData("↓ "+pos, cb(ownerID, actionDown, img.ID)),
			tgbotapi.NewInlineKeyboardButtonData("✕ "+pos, cb(ownerID, actionRemove, img.ID)),
		})
	}

	if snap.CharacterModalOpen {
		var row []tgbotapi.InlineKeyboardButton
		if snap.HasCharacters() {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData("Continue →", cb(ownerID, actionCharsSubmit)))
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("Cancel", cb(ownerID, actionCharsCancel)))
		rows = append(rows, row)
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	rows = append(rows, stepRows(ownerID, snap)...)
	rows = append(rows, []tgbotapi.InlineKeyboardButton{
		tgbotapi.NewInlineKeyboardButtonData("Reset", cb(ownerID, actionReset)),
	})
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func stepRows(ownerID int64, snap workspace.Snapshot) [][]tgbotapi.InlineKeyboardButton {
	switch snap.Step {
	case workspace.StepUpload:
		if len(snap.Images) == 0 {
			return nil
		}
		return [][]tgbotapi.InlineKeyboardButton{{
			tgbotapi.NewInlineKeyboardButtonData("Choose Genre →", cb(ownerID, actionNext)),
		}}
	case workspace.StepGenre:
		var rows [][]tgbotapi.InlineKeyboardButton
		var row []tgbotapi.InlineKeyboardButton
		for _, opt := range workspace.Genres() {
			label := opt.Emoji + " " + opt.Label
			if opt.Genre == snap.Genre {
				label = "✅ " + label
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(label, cb(ownerID, actionGenre, string(opt.Genre))))
			if len(row) == 2 {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
		return append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("Add Characters →", cb(ownerID, actionNext)),
		})
	case workspace.StepCharacters:
		next := "Skip for Now →"
		if snap.HasCharacters() {
			next = "Continue →"
		}
		return [][]tgbotapi.InlineKeyboardButton{{
			tgbotapi.NewInlineKeyboardButtonData("✏️ Characters", cb(ownerID, actionChars)),
			tgbotapi.NewInlineKeyboardButtonData(next, cb(ownerID, actionNext)),
		}}
	case workspace.StepGenerate:
		var rows [][]tgbotapi.InlineKeyboardButton
		if snap.CanGenerate {
			rows = append(rows, []tgbotapi.InlineKeyboardButton{
				tgbotapi.NewInlineKeyboardButtonData("Generate Story ✨", cb(ownerID, actionGenerate)),
			})
		}
		return append(rows, []tgbotapi.InlineKeyboardButton{
			tgbotapi.NewInlineKeyboardButtonData("← Edit Settings", cb(ownerID, actionEdit)),
		})
	default:
		return nil
	}
}

func cb(ownerID int64, parts ...string) string {
	return fmt.Sprintf("%s:%d:%s", callbackPrefix, ownerID, strings.Join(parts, ":"))
}

type callbackData struct {
	ownerID int64
	action  string
	arg     string
}

func parseCallback(data string) (callbackData, bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 4)
	if len(parts) < 3 || parts[0] != callbackPrefix {
		return callbackData{}, false
	}
	ownerID, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return callbackData{}, false
	}
	out := callbackData{ownerID: ownerID, action: parts[2]}
	if len(parts) == 4 {
		out.arg = parts[3]
	}
	return out, true
}

func truncateLine(s string, max int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return strings.TrimSpace(string(runes[:max])) + "…"
}
