package handlers

import (
	"context"
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"chithravani/internal/session"
	"chithravani/internal/storyapi"
	"chithravani/internal/storyview"
	"chithravani/internal/workspace"
)

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) error {
	if q == nil || q.Message == nil || q.From == nil {
		return nil
	}
	data, ok := parseCallback(q.Data)
	if !ok {
		return nil
	}
	if data.ownerID != q.From.ID {
		_ = h.tg.AnswerCallback(q.ID, "This panel belongs to someone else.", true)
		return nil
	}

	key := session.Key{ChatID: q.Message.Chat.ID, UserID: data.ownerID}
	h.sessions.Touch(key, q.From.UserName)
	h.sessions.SetPanel(key, q.Message.MessageID)
	wsKey := key.WorkspaceKey()

	switch data.action {
	case actionNoop:
		_ = h.tg.AnswerCallback(q.ID, "", false)
		return nil
	case actionGenerate, actionCharsSubmit:
		return h.handleGenerateCallback(ctx, key, q.ID, data.action)
	case actionReset:
		snap := h.workspaces.Open(wsKey)
		_ = h.tg.AnswerCallback(q.ID, "Started over", false)
		return h.renderPanel(key, snap, true)
	}

	snap, err := h.workspaces.Update(wsKey, func(ws *workspace.Workspace) error {
		return applyAction(ws, data)
	})
	if err != nil {
		_ = h.tg.AnswerCallback(q.ID, userText(err), true)
		if errors.Is(err, workspace.ErrNotFound) {
			return nil
		}
		return h.renderPanel(key, snap, true)
	}

	_ = h.tg.AnswerCallback(q.ID, "", false)
	return h.renderPanel(key, snap, true)
}

// applyAction runs one panel button against the workspace.
func applyAction(ws *workspace.Workspace, data callbackData) error {
	switch data.action {
	case actionUp, actionDown:
		overID, ok := neighbour(ws.Images(), data.arg, data.action == actionUp)
		if !ok {
			return nil
		}
		_, err := ws.ReorderImages(data.arg, overID)
		return err
	case actionRemove:
		return ws.RemoveImage(data.arg)
	case actionNext:
		_, err := ws.Continue()
		return err
	case actionGenre:
		return ws.SetGenre(workspace.Genre(data.arg))
	case actionChars:
		ws.OpenCharacterModal()
		return nil
	case actionCharsCancel:
		ws.CancelCharacterModal()
		return nil
	case actionEdit:
		return ws.EditSettings()
	default:
		return nil
	}
}

// neighbour finds the entry the image swaps with when moved one slot.
func neighbour(entries []workspace.Entry, id string, up bool) (string, bool) {
	for i, e := range entries {
		if e.ID != id {
			continue
		}
		j := i + 1
		if up {
			j = i - 1
		}
		if j < 0 || j >= len(entries) {
			return "", false
		}
		return entries[j].ID, true
	}
	return "", false
}

func (h *Handler) handleGenerateCallback(ctx context.Context, key session.Key, callbackID string, action string) error {
	wsKey := key.WorkspaceKey()

	if action == actionCharsSubmit {
		snap, err := h.workspaces.Update(wsKey, func(ws *workspace.Workspace) error {
			return ws.SubmitCharacterModal()
		})
		if err != nil {
			_ = h.tg.AnswerCallback(callbackID, userText(err), true)
			if errors.Is(err, workspace.ErrNotFound) {
				return nil
			}
			return h.renderPanel(key, snap, true)
		}
	}

	// The answer cannot wait for the story service.
	_ = h.tg.AnswerCallback(callbackID, "", false)
	return h.generate(ctx, key)
}

func (h *Handler) generate(ctx context.Context, key session.Key) error {
	h.tg.SendTyping(key.ChatID)

	snap, err := h.workspaces.Generate(ctx, key.WorkspaceKey(), h.generator, func(loading workspace.Snapshot) {
		if err := h.renderPanel(key, loading, true); err != nil {
			h.logger.Warn("loading panel render failed", "chat_id", key.ChatID, "err", err)
		}
	})

	switch {
	case err == nil:
		h.logger.Info("story delivered", "chat_id", key.ChatID, "images", len(snap.Images), "genre", string(snap.Genre))
		if err := h.renderPanel(key, snap, true); err != nil {
			return err
		}
		view := storyview.Present(snap.Story, false, len(snap.Images))
		return h.tg.SendText(key.ChatID, view.Text())
	case errors.Is(err, workspace.ErrCharactersRequired):
		return h.renderPanel(key, snap, true)
	case errors.Is(err, workspace.ErrClosed), errors.Is(err, workspace.ErrNotFound):
		return h.replyError(key.ChatID, err)
	case errors.Is(err, workspace.ErrBusy), errors.Is(err, workspace.ErrNoImages):
		return h.replyError(key.ChatID, err)
	}

	h.logger.Error("story generation failed", "chat_id", key.ChatID, "err", err)
	if renderErr := h.renderPanel(key, snap, true); renderErr != nil {
		h.logger.Warn("panel render failed", "chat_id", key.ChatID, "err", renderErr)
	}
	return h.tg.SendText(key.ChatID, "❌ "+storyapi.UserMessage(err))
}
