package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chithravani/internal/mediagroup"
	"chithravani/internal/preview"
	"chithravani/internal/session"
	"chithravani/internal/storyapi"
	"chithravani/internal/telegram"
	"chithravani/internal/workspace"
)

const (
	chatID = int64(100)
	userID = int64(7)
)

type sentPanel struct {
	messageID int
	text      string
	kb        telegram.Keyboard
}

type answer struct {
	text  string
	alert bool
}

type sentDoc struct {
	name    string
	data    string
	caption string
}

type fakeMessenger struct {
	mu      sync.Mutex
	nextID  int
	texts   []string
	panels  []sentPanel
	edits   []sentPanel
	answers []answer
	docs    []sentDoc
	last    sentPanel
	failIDs map[string]bool
	// hold blocks the download of a file id until the channel is closed.
	hold    map[string]chan struct{}
	started chan string
}

func (m *fakeMessenger) SendTyping(int64) {}

func (m *fakeMessenger) SendText(_ int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *fakeMessenger) SendPanel(_ int64, text string, kb telegram.Keyboard) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.last = sentPanel{messageID: m.nextID, text: text, kb: kb}
	m.panels = append(m.panels, m.last)
	return m.nextID, nil
}

func (m *fakeMessenger) EditPanel(_ int64, messageID int, text string, kb telegram.Keyboard) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last = sentPanel{messageID: messageID, text: text, kb: kb}
	m.edits = append(m.edits, m.last)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ string, text string, alert bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.answers = append(m.answers, answer{text: text, alert: alert})
	return nil
}

func (m *fakeMessenger) SendDocument(_ int64, name string, data []byte, caption string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, sentDoc{name: name, data: string(data), caption: caption})
	return nil
}

func (m *fakeMessenger) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	m.mu.Lock()
	gate := m.hold[fileID]
	m.mu.Unlock()
	if gate != nil {
		m.started <- fileID
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIDs[fileID] {
		return nil, "", errors.New("download failed")
	}
	return []byte("data-" + fileID), "application/octet-stream", nil
}

func (m *fakeMessenger) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		return ""
	}
	return m.texts[len(m.texts)-1]
}

// lastPanel is the most recent panel, sent or edited.
func (m *fakeMessenger) lastPanel() sentPanel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type fakeGenerator struct {
	mu    sync.Mutex
	story string
	err   error
	calls int
	last  workspace.GenerationRequest
}

func (g *fakeGenerator) GenerateStory(_ context.Context, req workspace.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = req
	return g.story, g.err
}

type fixture struct {
	h     *Handler
	tg    *fakeMessenger
	gen   *fakeGenerator
	store *workspace.Store
	reg   *preview.Registry
	msgID int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := preview.NewRegistry(preview.Options{})
	store := workspace.NewStore(workspace.StoreOptions{Previews: reg})
	tg := &fakeMessenger{
		failIDs: map[string]bool{},
		hold:    map[string]chan struct{}{},
		started: make(chan string, 8),
	}
	gen := &fakeGenerator{story: "Arthur woke.\n\nHe rode out.\n\nHe came home."}
	h := New(Options{
		Messenger:  tg,
		Workspaces: store,
		Sessions:   session.NewStore(session.Options{}),
		Generator:  gen,
	})
	return &fixture{h: h, tg: tg, gen: gen, store: store, reg: reg}
}

func (f *fixture) wsKey() string {
	return session.Key{ChatID: chatID, UserID: userID}.WorkspaceKey()
}

func (f *fixture) snapshot(t *testing.T) workspace.Snapshot {
	t.Helper()
	snap, ok := f.store.Get(f.wsKey())
	require.True(t, ok)
	return snap
}

func (f *fixture) send(t *testing.T, text string) {
	t.Helper()
	f.msgID++
	msg := &tgbotapi.Message{
		MessageID: f.msgID,
		From:      &tgbotapi.User{ID: userID, UserName: "alice"},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Text:      text,
	}
	if strings.HasPrefix(text, "/") {
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(strings.Fields(text)[0])}}
	}
	require.NoError(t, f.h.HandleUpdate(context.Background(), telegram.Update{Message: msg}))
}

func (f *fixture) sendPhoto(t *testing.T, fileID string) {
	t.Helper()
	require.NoError(t, f.h.HandleUpdate(context.Background(), f.photoUpdate(fileID)))
}

func (f *fixture) photoUpdate(fileID string) telegram.Update {
	f.msgID++
	msg := &tgbotapi.Message{
		MessageID: f.msgID,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: fileID + "-small", Width: 90, Height: 90},
			{FileID: fileID, Width: 1280, Height: 960},
		},
	}
	return telegram.Update{Message: msg}
}

func (f *fixture) press(t *testing.T, from int64, parts ...string) {
	t.Helper()
	q := &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: from},
		Message: &tgbotapi.Message{MessageID: 1, Chat: &tgbotapi.Chat{ID: chatID}},
		Data:    cb(userID, parts...),
	}
	require.NoError(t, f.h.HandleUpdate(context.Background(), telegram.Update{CallbackQuery: q}))
}

func (f *fixture) addAlbum(t *testing.T, fileIDs ...string) {
	t.Helper()
	files := make([]mediagroup.File, 0, len(fileIDs))
	for _, id := range fileIDs {
		files = append(files, mediagroup.File{FileID: id, Name: id + ".jpg", MimeType: "image/jpeg"})
	}
	f.h.HandleMediaGroup(context.Background(), mediagroup.Group{ChatID: chatID, UserID: userID, Files: files})
}

func imageNames(snap workspace.Snapshot) []string {
	out := make([]string, 0, len(snap.Images))
	for _, img := range snap.Images {
		out = append(out, img.Name)
	}
	return out
}

func buttonData(kb telegram.Keyboard) []string {
	var out []string
	for _, row := range kb.InlineKeyboard {
		for _, b := range row {
			if b.CallbackData != nil {
				out = append(out, *b.CallbackData)
			}
		}
	}
	return out
}

func TestStartSendsWelcomeAndPanel(t *testing.T) {
	f := newFixture(t)

	f.send(t, "/start")

	assert.Contains(t, f.tg.texts[0], "Photo Story")
	require.Len(t, f.tg.panels, 1)
	assert.Contains(t, f.tg.panels[0].text, "Step 1: Upload photos to begin")
	assert.Equal(t, workspace.StepUpload, f.snapshot(t).Step)
}

func TestPhotoIsAdded(t *testing.T) {
	f := newFixture(t)

	f.sendPhoto(t, "file-a")

	snap := f.snapshot(t)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "image/jpeg", snap.Images[0].MimeType)
	assert.Equal(t, len("data-file-a"), snap.Images[0].Size)
	assert.Contains(t, f.tg.lastPanel().text, "1 photo uploaded")
	assert.Contains(t, buttonData(f.tg.lastPanel().kb), cb(userID, actionNext))
}

func TestSlowPhotoKeepsItsPlace(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/start")
	f.tg.hold["A"] = make(chan struct{})
	first, second := f.photoUpdate("A"), f.photoUpdate("B")

	done := make(chan error, 1)
	go func() { done <- f.h.HandleUpdate(context.Background(), first) }()
	require.Equal(t, "A", <-f.tg.started)

	require.NoError(t, f.h.HandleUpdate(context.Background(), second))
	assert.Empty(t, f.snapshot(t).Images, "later photo waits for the earlier one")

	close(f.tg.hold["A"])
	require.NoError(t, <-done)

	want := []string{
		fmt.Sprintf("photo_%d.jpg", first.Message.MessageID),
		fmt.Sprintf("photo_%d.jpg", second.Message.MessageID),
	}
	assert.Equal(t, want, imageNames(f.snapshot(t)))
	assert.Contains(t, f.tg.lastPanel().text, "2 photos uploaded")
	assert.Zero(t, f.h.intake.len(session.Key{ChatID: chatID, UserID: userID}))
}

func TestPrepareFixesDeliveryOrder(t *testing.T) {
	f := newFixture(t)
	first, second := f.photoUpdate("A"), f.photoUpdate("B")
	f.h.Prepare(first)
	f.h.Prepare(second)

	require.NoError(t, f.h.HandleUpdate(context.Background(), second))
	_, ok := f.store.Get(f.wsKey())
	assert.False(t, ok)

	require.NoError(t, f.h.HandleUpdate(context.Background(), first))
	assert.Equal(t, []string{"photo_1.jpg", "photo_2.jpg"}, imageNames(f.snapshot(t)))
}

func TestFailedPhotoReleasesLaterOnes(t *testing.T) {
	f := newFixture(t)
	f.tg.failIDs["A"] = true
	first, second := f.photoUpdate("A"), f.photoUpdate("B")
	f.h.Prepare(first)
	f.h.Prepare(second)

	require.NoError(t, f.h.HandleUpdate(context.Background(), second))
	require.NoError(t, f.h.HandleUpdate(context.Background(), first))

	assert.Equal(t, []string{"photo_2.jpg"}, imageNames(f.snapshot(t)))
	assert.Contains(t, f.tg.texts, downloadFailed)
	assert.Contains(t, f.tg.lastPanel().text, "1 photo uploaded")
}

func TestUnsupportedDocumentIsRejected(t *testing.T) {
	f := newFixture(t)
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Document:  &tgbotapi.Document{FileID: "doc", FileName: "notes.pdf", MimeType: "application/pdf"},
	}

	require.NoError(t, f.h.HandleUpdate(context.Background(), telegram.Update{Message: msg}))

	assert.Equal(t, unsupportedText, f.tg.lastText())
	_, ok := f.store.Get(f.wsKey())
	assert.False(t, ok)
}

func TestImageDocumentIsAdded(t *testing.T) {
	f := newFixture(t)
	msg := &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: chatID},
		Document:  &tgbotapi.Document{FileID: "doc", FileName: "beach.webp", MimeType: "image/webp"},
	}

	require.NoError(t, f.h.HandleUpdate(context.Background(), telegram.Update{Message: msg}))

	snap := f.snapshot(t)
	require.Len(t, snap.Images, 1)
	assert.Equal(t, "beach.webp", snap.Images[0].Name)
	assert.Equal(t, "image/webp", snap.Images[0].MimeType)
}

func TestAlbumKeepsOrder(t *testing.T) {
	f := newFixture(t)

	f.addAlbum(t, "a", "b", "c", "d", "e", "f")

	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg", "d.jpg", "e.jpg", "f.jpg"}, imageNames(f.snapshot(t)))
	assert.Equal(t, 6, f.reg.Len())
}

func TestAlbumDownloadFailureAddsNothing(t *testing.T) {
	f := newFixture(t)
	f.tg.failIDs["b"] = true

	f.addAlbum(t, "a", "b")

	assert.Equal(t, downloadFailed, f.tg.lastText())
	_, ok := f.store.Get(f.wsKey())
	assert.False(t, ok)
}

func TestFullFlowGeneratesStory(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/start")
	f.addAlbum(t, "img1", "img2", "img3")

	f.press(t, userID, actionNext)
	assert.Equal(t, workspace.StepGenre, f.snapshot(t).Step)

	f.press(t, userID, actionGenre, "fantasy")
	f.press(t, userID, actionNext)
	assert.Equal(t, workspace.StepCharacters, f.snapshot(t).Step)

	f.send(t, "A knight named Arthur")
	assert.Equal(t, "A knight named Arthur", f.snapshot(t).Characters)

	f.press(t, userID, actionNext)
	require.Equal(t, workspace.StepGenerate, f.snapshot(t).Step)
	assert.Contains(t, f.tg.lastPanel().text, "📸 3 photos")
	assert.Contains(t, f.tg.lastPanel().text, "Characters defined")

	f.press(t, userID, actionGenerate)

	require.Equal(t, 1, f.gen.calls)
	assert.Equal(t, workspace.GenreFantasy, f.gen.last.Genre)
	assert.Equal(t, "A knight named Arthur", f.gen.last.Characters)
	require.Len(t, f.gen.last.Images, 3)
	assert.Equal(t, "img1.jpg", f.gen.last.Images[0].Name)
	assert.Equal(t, "img3.jpg", f.gen.last.Images[2].Name)

	story := f.tg.lastText()
	assert.Contains(t, story, "Generated from 3 images")
	assert.Contains(t, story, "Arthur woke.")
	assert.Contains(t, story, "He came home.")

	snap := f.snapshot(t)
	assert.False(t, snap.Loading)
	for _, img := range snap.Images {
		assert.Equal(t, workspace.StatusComplete, img.Status)
	}
}

func TestGenerateWithoutCharactersOpensPrompt(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a", "b")

	f.press(t, userID, actionGenerate)

	assert.Equal(t, 0, f.gen.calls)
	assert.True(t, f.snapshot(t).CharacterModalOpen)
	panel := f.tg.lastPanel()
	assert.Contains(t, panel.text, "Describe your characters")
	assert.NotContains(t, buttonData(panel.kb), cb(userID, actionCharsSubmit))
	assert.Contains(t, buttonData(panel.kb), cb(userID, actionCharsCancel))

	f.send(t, "Felix the fox")
	assert.Contains(t, buttonData(f.tg.lastPanel().kb), cb(userID, actionCharsSubmit))

	f.press(t, userID, actionCharsSubmit)
	assert.Equal(t, 1, f.gen.calls)
	assert.Equal(t, "Felix the fox", f.gen.last.Characters)
}

func TestGenerateWithoutImagesSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.send(t, "/start")

	f.press(t, userID, actionGenerate)

	assert.Equal(t, 0, f.gen.calls)
	assert.Equal(t, "⚠️ Please upload at least one image", f.tg.lastText())
}

func TestGenerateFailureShowsDetail(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a")
	_, err := f.store.Update(f.wsKey(), func(ws *workspace.Workspace) error {
		ws.SetCharacters("someone")
		return nil
	})
	require.NoError(t, err)
	f.gen.err = &storyapi.Error{StatusCode: 500, Detail: "quota exceeded"}
	f.gen.story = ""

	f.press(t, userID, actionGenerate)

	assert.Equal(t, "❌ quota exceeded", f.tg.lastText())
	snap := f.snapshot(t)
	assert.False(t, snap.Loading)
	assert.Empty(t, snap.Story)
	assert.True(t, snap.CanGenerate)
}

func TestCallbackFromAnotherUserIsRefused(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a")

	f.press(t, 999, actionNext)

	require.NotEmpty(t, f.tg.answers)
	assert.True(t, f.tg.answers[len(f.tg.answers)-1].alert)
	assert.Equal(t, workspace.StepUpload, f.snapshot(t).Step)
}

func TestReorderButtonsAndMoveCommand(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a", "b", "c")
	ids := f.snapshot(t).ImageIDs()

	f.press(t, userID, actionUp, ids[2])
	assert.Equal(t, []string{"a.jpg", "c.jpg", "b.jpg"}, imageNames(f.snapshot(t)))

	f.press(t, userID, actionUp, ids[0])
	assert.Equal(t, []string{"a.jpg", "c.jpg", "b.jpg"}, imageNames(f.snapshot(t)), "top image cannot move up")

	f.press(t, userID, actionDown, ids[0])
	assert.Equal(t, []string{"c.jpg", "a.jpg", "b.jpg"}, imageNames(f.snapshot(t)))

	f.send(t, "/move 3 1")
	assert.Equal(t, []string{"b.jpg", "c.jpg", "a.jpg"}, imageNames(f.snapshot(t)))

	f.send(t, "/move 9 1")
	assert.Equal(t, "❌ Positions must be between 1 and 3.", f.tg.lastText())

	f.press(t, userID, actionRemove, ids[1])
	assert.Equal(t, []string{"c.jpg", "a.jpg"}, imageNames(f.snapshot(t)))
	assert.Equal(t, 2, f.reg.Len())
}

func TestResetReleasesEverything(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a", "b")

	f.send(t, "/reset")

	_, ok := f.store.Get(f.wsKey())
	assert.False(t, ok)
	assert.Equal(t, 0, f.reg.Len())
}

func TestStoryCommand(t *testing.T) {
	f := newFixture(t)

	f.send(t, "/story")
	assert.Contains(t, f.tg.lastText(), "Your Story Awaits")

	f.addAlbum(t, "a", "b")
	f.send(t, "/story")
	assert.Contains(t, f.tg.lastText(), "2 photos ready")
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t)
	f.addAlbum(t, "a", "b")

	f.send(t, "/export")
	assert.Equal(t, noStoryText, f.tg.lastText())
	assert.Empty(t, f.tg.docs)

	_, err := f.store.Update(f.wsKey(), func(ws *workspace.Workspace) error {
		ws.SetCharacters("someone")
		return nil
	})
	require.NoError(t, err)
	f.press(t, userID, actionGenerate)

	f.send(t, "/export")
	require.Len(t, f.tg.docs, 1)
	doc := f.tg.docs[0]
	assert.Equal(t, "story.md", doc.name)
	assert.Contains(t, doc.data, "Generated from 2 images")
	assert.Contains(t, doc.data, "He came home.")
	assert.True(t, strings.HasSuffix(doc.data, "~ The End ~\n"))
}

func TestPanelKeyboardWhileLoading(t *testing.T) {
	snap := workspace.Snapshot{
		Step:        workspace.StepGenerate,
		Loading:     true,
		Images:      []workspace.ImageInfo{{ID: "x", Position: 1}},
		Characters:  "someone",
		CanGenerate: false,
	}

	data := buttonData(panelKeyboard(userID, snap))

	assert.Equal(t, []string{cb(userID, actionNoop)}, data)
}

func TestParseCallback(t *testing.T) {
	data, ok := parseCallback(cb(42, actionGenre, "scifi"))
	require.True(t, ok)
	assert.Equal(t, callbackData{ownerID: 42, action: actionGenre, arg: "scifi"}, data)

	data, ok = parseCallback(cb(42, actionNext))
	require.True(t, ok)
	assert.Equal(t, "", data.arg)

	for _, bad := range []string{"", "pv:1:x", "ws:abc:next", "ws:1"} {
		_, ok := parseCallback(bad)
		assert.False(t, ok, bad)
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	id := fmt.Sprintf("%036d", 0)
	assert.LessOrEqual(t, len(cb(9999999999, actionDown, id)), 64)
}
