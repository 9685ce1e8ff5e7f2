package storyapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"chithravani/internal/httpclient"
	"chithravani/internal/workspace"
)

const generatePath = "/api/generate-story"

type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout bounds a single generation call. Zero means no bound beyond
	// the HTTP client's own.
	Timeout   time.Duration
	Logger    *slog.Logger
	UserAgent string
}

type Client struct {
	baseURL string
	rest    *resty.Client
	timeout time.Duration
	logger  *slog.Logger
}

func New(opts Options) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = httpclient.DefaultUserAgent
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	rest := resty.NewWithClient(httpClient).
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", userAgent)

	return &Client{
		baseURL: baseURL,
		rest:    rest,
		timeout: opts.Timeout,
		logger:  logger,
	}
}

// GenerateStory posts the images, in order, with genre and characters and
// returns the story text. It never retries.
func (c *Client) GenerateStory(ctx context.Context, req workspace.GenerationRequest) (string, error) {
	if len(req.Images) == 0 {
		return "", &Error{Err: workspace.ErrNoImages}
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	files := make([]*resty.MultipartField, 0, len(req.Images))
	for i, img := range req.Images {
		name := img.Name
		if name == "" {
			name = fmt.Sprintf("image-%d", i+1)
		}
		contentType := img.MimeType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		files = append(files, &resty.MultipartField{
			Param:       "files",
			FileName:    name,
			ContentType: contentType,
			Reader:      bytes.NewReader(img.Data),
		})
	}

	var (
		result  storyResponse
		errBody errorResponse
	)
	start := time.Now()
	resp, err := c.rest.R().
		SetContext(ctx).
		SetMultipartFields(files...).
		SetMultipartFormData(map[string]string{
			"genre":      string(req.Genre),
			"characters": req.Characters,
		}).
		SetResult(&result).
		SetError(&errBody).
		Post(generatePath)

	status := 0
	if resp != nil {
		status = resp.StatusCode()
	}
	if err != nil {
		c.logger.Warn("story request failed", "images", len(req.Images), "status", status, "err", err)
		return "", &Error{StatusCode: status, Err: fmt.Errorf("post %s: %w", generatePath, err)}
	}

	if resp.IsError() {
		apiErr := &Error{StatusCode: status, Detail: errBody.text()}
		if apiErr.Detail == "" {
			apiErr.Err = fmt.Errorf("unexpected status %s", resp.Status())
		}
		c.logger.Warn("story service error", "status", status, "detail", apiErr.Detail)
		return "", apiErr
	}

	if strings.TrimSpace(result.Story) == "" {
		return "", &Error{StatusCode: status, Err: ErrMalformedResponse}
	}

	c.logger.Info("story generated",
		"images", len(req.Images),
		"genre", string(req.Genre),
		"chars", len(result.Story),
		"dur_ms", time.Since(start).Milliseconds(),
	)
	return result.Story, nil
}
