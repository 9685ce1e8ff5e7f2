package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxMessageBytes  = 4096
	maxCallbackText  = 200
	maxCaptionBytes  = 1024
	defaultFileLimit = 20 << 20
)

var ErrFileTooLarge = errors.New("telegram file too large")

type Options struct {
	Token      string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Debug      bool
	// MaxFileBytes caps a single download. Telegram bots cannot fetch more
	// than 20 MB anyway.
	MaxFileBytes int64
}

type Client struct {
	bot          *tgbotapi.BotAPI
	httpClient   *http.Client
	logger       *slog.Logger
	maxFileBytes int64
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if opts.HTTPClient == nil {
		return nil, errors.New("http client is nil")
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, tgbotapi.APIEndpoint, opts.HTTPClient)
	if err != nil {
		return nil, err
	}
	bot.Debug = opts.Debug

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	maxFileBytes := opts.MaxFileBytes
	if maxFileBytes <= 0 {
		maxFileBytes = defaultFileLimit
	}

	return &Client{
		bot:          bot,
		httpClient:   opts.HTTPClient,
		logger:       logger,
		maxFileBytes: maxFileBytes,
	}, nil
}

func (c *Client) Username() string {
	return c.bot.Self.UserName
}

type (
	Update   = tgbotapi.Update
	Keyboard = tgbotapi.InlineKeyboardMarkup
)

type UpdatesOptions struct {
	Timeout time.Duration
}

func (c *Client) Updates(opts UpdatesOptions) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	if opts.Timeout > 0 {
		u.Timeout = int(opts.Timeout.Seconds())
	} else {
		u.Timeout = 30
	}
	u.AllowedUpdates = []string{"message", "callback_query"}
	return c.bot.GetUpdatesChan(u)
}

func (c *Client) StopUpdates() {
	c.bot.StopReceivingUpdates()
}

func (c *Client) SendTyping(chatID int64) {
	_, _ = c.bot.Send(tgbotapi.NewChatAction(chatID, tgbotapi.ChatTyping))
}

// SendText sends text, split into several messages when it exceeds the
// Telegram limit.
func (c *Client) SendText(chatID int64, text string) error {
	for _, p := range splitByBytes(text, maxMessageBytes) {
		if _, err := c.bot.Send(tgbotapi.NewMessage(chatID, p)); err != nil {
			return err
		}
	}
	return nil
}

// SendPanel sends a message carrying an inline keyboard and returns its id.
func (c *Client) SendPanel(chatID int64, text string, kb Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, truncateByBytes(text, maxMessageBytes))
	msg.ReplyMarkup = kb
	sent, err := c.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditPanel replaces text and keyboard of a panel sent earlier. An edit
// that changes nothing is not an error.
func (c *Client) EditPanel(chatID int64, messageID int, text string, kb Keyboard) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, truncateByBytes(text, maxMessageBytes), kb)
	if _, err := c.bot.Request(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return err
	}
	return nil
}

func (c *Client) AnswerCallback(callbackID string, text string, alert bool) error {
	text = truncateByBytes(text, maxCallbackText)
	cfg := tgbotapi.NewCallback(callbackID, text)
	if alert {
		cfg = tgbotapi.NewCallbackWithAlert(callbackID, text)
	}
	_, err := c.bot.Request(cfg)
	return err
}

// SendDocument uploads data as a file attachment.
func (c *Client) SendDocument(chatID int64, name string, data []byte, caption string) error {
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{Name: name, Bytes: data})
	doc.Caption = truncateByBytes(caption, maxCaptionBytes)
	_, err := c.bot.Send(doc)
	return err
}

// DownloadFile fetches a file by id and returns its bytes and content type.
func (c *Client) DownloadFile(ctx context.Context, fileID string) ([]byte, string, error) {
	fileURL, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, "", fmt.Errorf("telegram file download %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxFileBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > c.maxFileBytes {
		return nil, "", fmt.Errorf("%w: over %d bytes", ErrFileTooLarge, c.maxFileBytes)
	}

	return data, DetectImageType(resp.Header.Get("content-type"), data), nil
}

// DetectImageType trusts the declared content type when it names an image,
// otherwise sniffs the bytes. Telegram serves photos as octet-stream.
func DetectImageType(declared string, data []byte) string {
	mimeType := stripParams(declared)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = stripParams(http.DetectContentType(data))
	}
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = "image/jpeg"
	}
	return mimeType
}

func stripParams(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return strings.ToLower(mimeType)
}

// cutAt returns the largest prefix length of text that fits in maxBytes
// without splitting a rune.
func cutAt(text string, maxBytes int) int {
	if len(text) <= maxBytes {
		return len(text)
	}
	n := maxBytes
	for n > 0 && !utf8.RuneStart(text[n]) {
		n--
	}
	return n
}

func splitByBytes(text string, maxBytes int) []string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		n := cutAt(text, maxBytes)
		if n == 0 {
			// A single rune wider than maxBytes; emit it alone.
			_, n = utf8.DecodeRuneInString(text)
		}
		parts = append(parts, text[:n])
		text = text[n:]
	}
	return parts
}

func truncateByBytes(text string, maxBytes int) string {
	if maxBytes <= 0 {
		return text
	}
	return text[:cutAt(text, maxBytes)]
}
