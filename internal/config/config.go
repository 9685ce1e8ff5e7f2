package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	TelegramToken string
	StoryAPIURL   string

	LogLevel string
	Debug    bool

	PreferIPv4 bool

	MediaGroupDebounce time.Duration
	MaxConcurrent      int
	RequestTimeout     time.Duration
	HTTPTimeout        time.Duration

	WebAddr        string
	MaxUploadBytes int64

	WorkspaceIdleTimeout time.Duration
	JanitorSchedule      string
}

const DefaultStoryAPIURL = "http://localhost:8000"

// Load reads the environment. Nothing is required here; front ends check
// what they need (see RequireTelegram).
func Load() (Config, error) {
	cfg := Config{
		StoryAPIURL:          strings.TrimRight(getEnv("STORY_API_URL", DefaultStoryAPIURL), "/"),
		LogLevel:             strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info"))),
		Debug:                getEnvBool("DEBUG", false),
		PreferIPv4:           getEnvBool("PREFER_IPV4", true),
		MediaGroupDebounce:   time.Duration(getEnvInt("MEDIA_GROUP_DEBOUNCE_MS", 1200)) * time.Millisecond,
		MaxConcurrent:        getEnvInt("MAX_CONCURRENT", 4),
		RequestTimeout:       time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 180)) * time.Second,
		HTTPTimeout:          time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 180)) * time.Second,
		WebAddr:              strings.TrimSpace(getEnv("WEB_ADDR", ":8080")),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_MB", 25)) << 20,
		WorkspaceIdleTimeout: time.Duration(getEnvInt("WORKSPACE_IDLE_MINUTES", 60)) * time.Minute,
		JanitorSchedule:      strings.TrimSpace(getEnv("JANITOR_SCHEDULE", "@every 5m")),
	}

	cfg.TelegramToken = strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))

	if !strings.HasPrefix(cfg.StoryAPIURL, "http://") && !strings.HasPrefix(cfg.StoryAPIURL, "https://") {
		return Config{}, errors.New("STORY_API_URL must be an http(s) URL")
	}

	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 180 * time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 180 * time.Second
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 25 << 20
	}
	if cfg.WorkspaceIdleTimeout <= 0 {
		cfg.WorkspaceIdleTimeout = time.Hour
	}

	return cfg, nil
}

func (c Config) RequireTelegram() error {
	if c.TelegramToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
