// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// NewsAPI
	NewsAPIKeys []string // 設定順に試行される

	// Gemini
	GeminiAPIKey string
	GeminiModel  string

	// Tumblr（4キー+ブログ名が揃った場合のみ有効）
	TumblrConsumerKey    string
	TumblrConsumerSecret string
	TumblrOAuthToken     string
	TumblrOAuthSecret    string
	TumblrBlogName       string

	// Telegram（トークン+チャットIDが揃った場合のみ有効）
	TelegramBotToken string
	TelegramChatID   string

	// Pipeline
	Country         string
	CooldownWindow  time.Duration
	ChunkSize       int
	TagCount        int
	CycleInterval   time.Duration
	SafetyPause     time.Duration
	PostPauseMin    time.Duration
	PostPauseMax    time.Duration
	PostVerifyDelay time.Duration
	FullTextMinLen  int
	RetentionDays   int
	HaltOnPostDrop  bool

	// Alert（SMTPホストと宛先が揃った場合のみ有効）
	AlertSMTPHost string
	AlertSMTPPort string
	AlertSMTPUser string
	AlertSMTPPass string
	AlertFrom     string
	AlertTo       string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.NewsAPIKeys = splitKeys(os.Getenv("NEWS_API_KEYS"))
	if len(cfg.NewsAPIKeys) == 0 {
		missing = append(missing, "NEWS_API_KEYS")
	}

	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Platforms
	cfg.TumblrConsumerKey = os.Getenv("TUMBLR_CONSUMER_KEY")
	cfg.TumblrConsumerSecret = os.Getenv("TUMBLR_CONSUMER_SECRET")
	cfg.TumblrOAuthToken = os.Getenv("TUMBLR_OAUTH_TOKEN")
	cfg.TumblrOAuthSecret = os.Getenv("TUMBLR_OAUTH_SECRET")
	cfg.TumblrBlogName = os.Getenv("TUMBLR_BLOG_NAME")
	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = os.Getenv("TELEGRAM_CHAT_ID")

	if !cfg.TumblrEnabled() && !cfg.TelegramEnabled() {
		return nil, fmt.Errorf("no publish platform is configured: set Tumblr or Telegram credentials")
	}

	// Optional fields with defaults
	cfg.GeminiModel = getEnvString("GEMINI_MODEL", "gemini-2.5-pro")
	cfg.Country = getEnvString("COUNTRY", "us")
	cfg.CooldownWindow = time.Duration(getEnvInt("COOLDOWN_HOURS", 2)) * time.Hour
	cfg.ChunkSize = getEnvInt("CHUNK_SIZE", 10)
	cfg.TagCount = getEnvInt("TAG_COUNT", 3)
	cfg.CycleInterval = getEnvDuration("CYCLE_INTERVAL", 30*time.Minute)
	cfg.SafetyPause = getEnvDuration("SAFETY_PAUSE", 5*time.Minute)
	cfg.PostPauseMin = getEnvDuration("POST_PAUSE_MIN", 3*time.Minute)
	cfg.PostPauseMax = getEnvDuration("POST_PAUSE_MAX", 5*time.Minute)
	cfg.PostVerifyDelay = getEnvDuration("POST_VERIFY_DELAY", 3*time.Second)
	cfg.FullTextMinLen = getEnvInt("FULLTEXT_MIN_CHARS", 250)
	cfg.RetentionDays = getEnvInt("RETENTION_DAYS", 90)
	cfg.HaltOnPostDrop = getEnvBool("HALT_ON_POST_DROP", false)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	// Alert
	cfg.AlertSMTPHost = os.Getenv("ALERT_SMTP_HOST")
	cfg.AlertSMTPPort = getEnvString("ALERT_SMTP_PORT", "587")
	cfg.AlertSMTPUser = os.Getenv("ALERT_SMTP_USER")
	cfg.AlertSMTPPass = os.Getenv("ALERT_SMTP_PASS")
	cfg.AlertFrom = os.Getenv("ALERT_FROM")
	cfg.AlertTo = os.Getenv("ALERT_TO")

	if cfg.PostPauseMax < cfg.PostPauseMin {
		cfg.PostPauseMax = cfg.PostPauseMin
	}

	return cfg, nil
}

// TumblrEnabled はTumblr投稿に必要な認証情報がすべて設定されているかを返す。
func (c *Config) TumblrEnabled() bool {
	return c.TumblrConsumerKey != "" && c.TumblrConsumerSecret != "" &&
		c.TumblrOAuthToken != "" && c.TumblrOAuthSecret != "" && c.TumblrBlogName != ""
}

// TelegramEnabled はTelegram投稿に必要な認証情報がすべて設定されているかを返す。
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != "" && c.TelegramChatID != ""
}

// AlertEnabled は障害通知メールの送信に必要な設定が揃っているかを返す。
func (c *Config) AlertEnabled() bool {
	return c.AlertSMTPHost != "" && c.AlertFrom != "" && c.AlertTo != ""
}

// splitKeys はカンマ区切りのAPIキーリストをパースする。
// 空要素と前後空白は除去し、設定順を維持する。
func splitKeys(raw string) []string {
	if raw == "" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		k = strings.TrimSpace(k)
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
