package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"chithravani/internal/mediagroup"
	"chithravani/internal/session"
	"chithravani/internal/storyview"
	"chithravani/internal/telegram"
	"chithravani/internal/workspace"
)

const maxParallelDownloads = 4

const (
	welcomeText = "📚 Photo Story\n\n" +
		"Turn your photos into a story.\n" +
		"1. Send photos (albums keep their order)\n" +
		"2. Choose a genre\n" +
		"3. Describe your characters\n" +
		"4. Generate your story"

	helpText = "📚 Help\n\n" +
		"Send photos or image files to add them to your story.\n" +
		"Use ↑ ↓ to reorder and ✕ to remove an image.\n\n" +
		"/start - start a new story\n" +
		"/move <from> <to> - move an image, e.g. /move 3 1\n" +
		"/story - show the current story\n" +
		"/export - download the story as a file\n" +
		"/cancel - close the character prompt\n" +
		"/reset - discard everything\n" +
		"/help - this message"

	busyText        = "⏳ A story is being generated. Please wait until it is finished."
	unsupportedText = "❌ Only JPEG, PNG, GIF and WebP images are supported."
	downloadFailed  = "❌ Failed to download the photo. Please try again."
	noStoryText     = "There is no story to export yet. Generate one first."
	expiredText     = "This story session has expired. Send /start to begin again."
)

var errUnsupportedType = errors.New("unsupported image type")

// Messenger is the part of the Telegram client the handler needs.
type Messenger interface {
	SendTyping(chatID int64)
	SendText(chatID int64, text string) error
	SendPanel(chatID int64, text string, kb telegram.Keyboard) (int, error)
	EditPanel(chatID int64, messageID int, text string, kb telegram.Keyboard) error
	AnswerCallback(callbackID string, text string, alert bool) error
	DownloadFile(ctx context.Context, fileID string) ([]byte, string, error)
	SendDocument(chatID int64, name string, data []byte, caption string) error
}

type Options struct {
	Messenger  Messenger
	Workspaces *workspace.Store
	Sessions   *session.Store
	Generator  workspace.Generator
	Logger     *slog.Logger
}

type Handler struct {
	tg         Messenger
	workspaces *workspace.Store
	sessions   *session.Store
	generator  workspace.Generator
	logger     *slog.Logger
	aggregator *mediagroup.Aggregator
	intake     *intakeQueue
}

func New(opts Options) *Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewStore(session.Options{})
	}

	return &Handler{
		tg:         opts.Messenger,
		workspaces: opts.Workspaces,
		sessions:   sessions,
		generator:  opts.Generator,
		logger:     logger,
		intake:     newIntakeQueue(),
	}
}

func (h *Handler) SetMediaGroupAggregator(ag *mediagroup.Aggregator) {
	h.aggregator = ag
}

// Prepare must be called for every update in the order Telegram delivered
// them, before HandleUpdate runs concurrently. It reserves the position of a
// single photo so that it lands in the list in message order.
func (h *Handler) Prepare(update telegram.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || msg.MediaGroupID != "" {
		return
	}
	if _, ok := fileFromMessage(msg); ok {
		h.intake.reserve(session.Key{ChatID: msg.Chat.ID, UserID: msg.From.ID}, msg.MessageID)
	}
}

func (h *Handler) HandleUpdate(ctx context.Context, update telegram.Update) error {
	if update.CallbackQuery != nil {
		return h.handleCallback(ctx, update.CallbackQuery)
	}
	if update.Message == nil || update.Message.From == nil {
		return nil
	}

	msg := update.Message
	key := session.Key{ChatID: msg.Chat.ID, UserID: msg.From.ID}
	h.sessions.Touch(key, msg.From.UserName)

	switch {
	case msg.IsCommand():
		return h.handleCommand(ctx, key, msg)
	case len(msg.Photo) > 0 || msg.Document != nil:
		return h.handlePhoto(ctx, key, msg)
	case msg.Text != "":
		return h.handleText(key, msg.Text)
	}
	return nil
}

// HandleMediaGroup adds a whole album in album order.
func (h *Handler) HandleMediaGroup(ctx context.Context, group mediagroup.Group) {
	key := session.Key{ChatID: group.ChatID, UserID: group.UserID}
	h.sessions.Touch(key, group.Username)
	if err := h.addFiles(ctx, key, group.Files); err != nil {
		h.logger.Error("media group processing failed", "chat_id", group.ChatID, "err", err)
	}
}

func (h *Handler) handleCommand(ctx context.Context, key session.Key, msg *tgbotapi.Message) error {
	wsKey := key.WorkspaceKey()

	switch msg.Command() {
	case "start":
		snap := h.workspaces.Open(wsKey)
		h.sessions.SetPanel(key, 0)
		if err := h.tg.SendText(key.ChatID, welcomeText); err != nil {
			return err
		}
		return h.renderPanel(key, snap, false)
	case "help":
		return h.tg.SendText(key.ChatID, helpText)
	case "reset":
		h.workspaces.Close(wsKey)
		h.sessions.Clear(key)
		return h.tg.SendText(key.ChatID, "🗑 Story discarded. Send /start to begin a new one.")
	case "cancel":
		snap, err := h.workspaces.Update(wsKey, func(ws *workspace.Workspace) error {
			ws.CancelCharacterModal()
			return nil
		})
		if err != nil {
			return h.replyError(key.ChatID, err)
		}
		return h.renderPanel(key, snap, true)
	case "move":
		return h.handleMove(key, msg.CommandArguments())
	case "story":
		snap, _ := h.workspaces.Get(wsKey)
		view := storyview.Present(snap.Story, snap.Loading, len(snap.Images))
		return h.tg.SendText(key.ChatID, view.Text())
	case "export":
		return h.exportStory(key)
	default:
		return h.tg.SendText(key.ChatID, "❌ Unknown command. Use /help.")
	}
}

func (h *Handler) exportStory(key session.Key) error {
	snap, _ := h.workspaces.Get(key.WorkspaceKey())
	md, ok := storyview.Present(snap.Story, snap.Loading, len(snap.Images)).Markdown()
	if !ok {
		return h.tg.SendText(key.ChatID, noStoryText)
	}
	return h.tg.SendDocument(key.ChatID, storyview.ExportName, []byte(md), "📖 "+storyview.StoryTitle)
}

func (h *Handler) handleMove(key session.Key, args string) error {
	from, to, ok := parseMoveArgs(args)
	if !ok {
		return h.tg.SendText(key.ChatID, "Usage: /move <from> <to>, e.g. /move 3 1")
	}

	snap, err := h.workspaces.Update(key.WorkspaceKey(), func(ws *workspace.Workspace) error {
		return ws.MoveImage(from-1, to-1)
	})
	if errors.Is(err, workspace.ErrInvalidIndex) {
		return h.tg.SendText(key.ChatID, fmt.Sprintf("❌ Positions must be between 1 and %d.", len(snap.Images)))
	}
	if err != nil {
		return h.replyError(key.ChatID, err)
	}
	return h.renderPanel(key, snap, false)
}

func parseMoveArgs(args string) (int, int, bool) {
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return 0, 0, false
	}
	from, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, false
	}
	to, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, 0, false
	}
	return from, to, true
}

// handleText takes the character description while the character prompt is
// open or the workspace sits on the characters step.
func (h *Handler) handleText(key session.Key, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	wsKey := key.WorkspaceKey()
	snap, ok := h.workspaces.Get(wsKey)
	if !ok {
		return h.tg.SendText(key.ChatID, "Send /start to begin a new story.")
	}
	if !snap.CharacterModalOpen && snap.Step != workspace.StepCharacters {
		return h.tg.SendText(key.ChatID, "Send photos to add them, or use the buttons on the panel.")
	}

	snap, err := h.workspaces.Update(wsKey, func(ws *workspace.Workspace) error {
		ws.SetCharacters(text)
		return nil
	})
	if err != nil {
		return h.replyError(key.ChatID, err)
	}
	return h.renderPanel(key, snap, false)
}

func (h *Handler) handlePhoto(ctx context.Context, key session.Key, msg *tgbotapi.Message) error {
	file, ok := fileFromMessage(msg)
	if !ok {
		return h.tg.SendText(key.ChatID, unsupportedText)
	}

	if msg.MediaGroupID != "" && h.aggregator != nil {
		h.aggregator.Add(mediagroup.Item{
			ChatID:       key.ChatID,
			UserID:       key.UserID,
			Username:     msg.From.UserName,
			MediaGroupID: msg.MediaGroupID,
			MessageID:    msg.MessageID,
			File:         file,
		})
		return nil
	}

	slot := h.intake.reserve(key, msg.MessageID)
	h.tg.SendTyping(key.ChatID)
	sources, dlErr := h.downloadFiles(ctx, key, []mediagroup.File{file})

	snap, committed, err := h.finishSlot(key, slot, sources)
	if dlErr != nil {
		if replyErr := h.replyDownloadError(key.ChatID, dlErr); replyErr != nil {
			return replyErr
		}
	}
	if !committed {
		// An earlier photo is still downloading and will show this one too.
		return nil
	}
	if err != nil {
		return h.replyError(key.ChatID, err)
	}
	return h.renderPanel(key, snap, false)
}

// finishSlot completes a reserved photo and appends whatever became
// committable, including photos that were waiting behind this one.
func (h *Handler) finishSlot(key session.Key, slot *intakeSlot, sources []workspace.Source) (workspace.Snapshot, bool, error) {
	var (
		snap workspace.Snapshot
		err  error
	)
	committed := h.intake.complete(key, slot, sources, func(ready []workspace.Source) {
		snap, err = h.appendImages(key, ready)
	})
	return snap, committed, err
}

func fileFromMessage(msg *tgbotapi.Message) (mediagroup.File, bool) {
	if len(msg.Photo) > 0 {
		photo := msg.Photo[len(msg.Photo)-1]
		return mediagroup.File{
			FileID:   photo.FileID,
			Name:     fmt.Sprintf("photo_%d.jpg", msg.MessageID),
			MimeType: "image/jpeg",
		}, true
	}

	doc := msg.Document
	if doc == nil || !workspace.AcceptedImageType(doc.MimeType) {
		return mediagroup.File{}, false
	}
	name := doc.FileName
	if name == "" {
		name = fmt.Sprintf("image_%d", msg.MessageID)
	}
	return mediagroup.File{FileID: doc.FileID, Name: name, MimeType: doc.MimeType}, true
}

// addFiles downloads in parallel and appends in the given order.
func (h *Handler) addFiles(ctx context.Context, key session.Key, files []mediagroup.File) error {
	if len(files) == 0 {
		return nil
	}
	h.tg.SendTyping(key.ChatID)

	sources, err := h.downloadFiles(ctx, key, files)
	if err != nil {
		return h.replyDownloadError(key.ChatID, err)
	}

	snap, err := h.appendImages(key, sources)
	if err != nil {
		return h.replyError(key.ChatID, err)
	}
	return h.renderPanel(key, snap, false)
}

func (h *Handler) downloadFiles(ctx context.Context, key session.Key, files []mediagroup.File) ([]workspace.Source, error) {
	sources := make([]workspace.Source, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxParallelDownloads)
	for i, f := range files {
		i, f := i, f
		eg.Go(func() error {
			data, mimeType, err := h.tg.DownloadFile(egCtx, f.FileID)
			if err != nil {
				return fmt.Errorf("download %s: %w", f.FileID, err)
			}
			if workspace.AcceptedImageType(f.MimeType) {
				mimeType = f.MimeType
			}
			if !workspace.AcceptedImageType(mimeType) {
				return fmt.Errorf("%w: %s", errUnsupportedType, mimeType)
			}
			sources[i] = workspace.Source{Name: f.Name, MimeType: mimeType, Data: data}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		h.logger.Error("photo download failed", "chat_id", key.ChatID, "count", len(files), "err", err)
		return nil, err
	}
	return sources, nil
}

func (h *Handler) replyDownloadError(chatID int64, err error) error {
	if errors.Is(err, errUnsupportedType) {
		return h.tg.SendText(chatID, unsupportedText)
	}
	return h.tg.SendText(chatID, downloadFailed)
}

func (h *Handler) appendImages(key session.Key, sources []workspace.Source) (workspace.Snapshot, error) {
	snap, err := h.workspaces.UpsertUpdate(key.WorkspaceKey(), func(ws *workspace.Workspace) error {
		_, err := ws.AddImages(sources...)
		return err
	})
	if err != nil {
		return snap, err
	}
	h.logger.Info("images added", "chat_id", key.ChatID, "added", len(sources), "total", len(snap.Images))
	return snap, nil
}

// renderPanel shows the workspace panel, editing the known panel message
// when edit is set and sending a fresh one otherwise.
func (h *Handler) renderPanel(key session.Key, snap workspace.Snapshot, edit bool) error {
	text := panelText(snap)
	kb := panelKeyboard(key.UserID, snap)

	if edit {
		if msgID := h.sessions.Panel(key); msgID != 0 {
			if err := h.tg.EditPanel(key.ChatID, msgID, text, kb); err == nil {
				return nil
			}
		}
	}

	msgID, err := h.tg.SendPanel(key.ChatID, text, kb)
	if err != nil {
		return err
	}
	h.sessions.SetPanel(key, msgID)
	return nil
}

func (h *Handler) replyError(chatID int64, err error) error {
	return h.tg.SendText(chatID, userText(err))
}

// userText maps workspace errors to chat replies.
func userText(err error) string {
	switch {
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, workspace.ErrClosed):
		return expiredText
	case errors.Is(err, workspace.ErrBusy):
		return busyText
	case errors.Is(err, workspace.ErrNoImages):
		return "⚠️ Please upload at least one image"
	case errors.Is(err, workspace.ErrCharactersRequired):
		return "👥 Please describe your characters first."
	case errors.Is(err, workspace.ErrImageNotFound):
		return "That image is no longer in your story."
	case errors.Is(err, workspace.ErrUnknownGenre):
		return "❌ Unknown genre."
	case errors.Is(err, workspace.ErrInvalidTransition):
		return "That step is not available right now."
	default:
		return "❌ Something went wrong. Please try again."
	}
}
