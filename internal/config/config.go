// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort             = "8080"
	DefaultPollInterval     = 40 * time.Second
	DefaultGatewayTimeout   = 10 * time.Second
	DefaultReferralPercent  = 0.1
	DefaultSubscriptionGift = 10
	DefaultInitDataMaxAge   = 24 * time.Hour
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	TelegramToken string
	BotUsername   string
	DatabaseURL   string
	AppEnv        string
	Port          string
	OwnerChatID   int64

	YooKassaShopID    string
	YooKassaSecretKey string
	YooKassaReturnURL string

	// Сети, с которых принимаются уведомления. nil означает список по умолчанию.
	WebhookAllowedCIDRs []string
	// Прокси, которым доверяем X-Forwarded-For. nil означает список по умолчанию.
	WebhookTrustedProxies []string
	PollInterval        time.Duration
	GatewayTimeout      time.Duration

	ReferralBonusPercent  float64
	SubscriptionChannelID int64
	SubscriptionBonus     int64

	AdminAPIToken  string
	CORSOrigins    []string
	InitDataMaxAge time.Duration

	GenerationAPIURL string
	GenerationAPIKey string
	GenerationModel  string

	LogLevel string
}

// Getenv is os.Getenv; tests swap it for a map lookup.
type Getenv func(string) string

// LoadConfig загружает конфигурацию из переменных окружения.
func LoadConfig(log *slog.Logger) (*Config, error) {
	return Load(os.Getenv, log)
}

// Load reads the configuration through getenv. Missing required values are
// returned as one joined error; malformed optional values fall back to their
// defaults with a warning.
func Load(getenv Getenv, log *slog.Logger) (*Config, error) {
	cfg := &Config{
		TelegramToken:     getenv("TELEGRAM_APITOKEN"),
		BotUsername:       strings.TrimPrefix(getenv("BOT_USERNAME"), "@"),
		DatabaseURL:       getenv("DATABASE_URL"),
		AppEnv:            getenv("ENV"),
		Port:              getenv("PORT"),
		YooKassaShopID:    getenv("YOOKASSA_SHOP_ID"),
		YooKassaSecretKey: getenv("YOOKASSA_SECRET_KEY"),
		YooKassaReturnURL: getenv("YOOKASSA_RETURN_URL"),
		AdminAPIToken:     getenv("ADMIN_API_TOKEN"),
		GenerationAPIURL:  getenv("GENERATION_API_URL"),
		GenerationAPIKey:  getenv("GENERATION_API_KEY"),
		GenerationModel:   getenv("GENERATION_MODEL"),
		LogLevel:          getenv("LOG_LEVEL"),
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}

	var errs []error
	for name, v := range map[string]string{
		"TELEGRAM_APITOKEN":   cfg.TelegramToken,
		"DATABASE_URL":        cfg.DatabaseURL,
		"YOOKASSA_SHOP_ID":    cfg.YooKassaShopID,
		"YOOKASSA_SECRET_KEY": cfg.YooKassaSecretKey,
	} {
		if v == "" {
			errs = append(errs, fmt.Errorf("%s не установлен", name))
		}
	}
	if cfg.DatabaseURL != "" {
		if _, err := url.Parse(cfg.DatabaseURL); err != nil {
			errs = append(errs, fmt.Errorf("ошибка парсинга DATABASE_URL: %w", err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	cfg.OwnerChatID = parseInt(getenv, log, "OWNER_CHAT_ID", 0)
	cfg.SubscriptionChannelID = parseInt(getenv, log, "SUBSCRIPTION_CHANNEL_ID", 0)
	cfg.SubscriptionBonus = parseInt(getenv, log, "SUBSCRIPTION_BONUS", DefaultSubscriptionGift)
	cfg.PollInterval = parseDuration(getenv, log, "POLL_INTERVAL", DefaultPollInterval)
	cfg.GatewayTimeout = parseDuration(getenv, log, "GATEWAY_TIMEOUT", DefaultGatewayTimeout)
	cfg.InitDataMaxAge = parseDuration(getenv, log, "INIT_DATA_MAX_AGE", DefaultInitDataMaxAge)
	cfg.WebhookAllowedCIDRs = splitList(getenv("WEBHOOK_ALLOWED_CIDRS"))
	cfg.WebhookTrustedProxies = splitList(getenv("WEBHOOK_TRUSTED_PROXIES"))
	cfg.CORSOrigins = splitList(getenv("CORS_ORIGINS"))

	cfg.ReferralBonusPercent = DefaultReferralPercent
	if s := getenv("REFERRAL_BONUS_PERCENT"); s != "" {
		pct, err := strconv.ParseFloat(s, 64)
		if err != nil || pct < 0 || pct >= 1 {
			log.Warn("некорректный REFERRAL_BONUS_PERCENT, используется значение по умолчанию",
				"value", s, "default", DefaultReferralPercent)
		} else {
			cfg.ReferralBonusPercent = pct
		}
	}

	if cfg.BotUsername == "" {
		log.Warn("BOT_USERNAME не установлен, реферальные ссылки работать не будут")
	}
	if cfg.OwnerChatID == 0 {
		log.Warn("OWNER_CHAT_ID не установлен, админ-команды отключены")
	}
	if cfg.AdminAPIToken == "" {
		log.Warn("ADMIN_API_TOKEN не установлен, админ API отключён")
	}
	return cfg, nil
}

// IsDev reports whether the bot runs in debug mode.
func (c *Config) IsDev() bool { return c.AppEnv == "dev" }

func parseInt(getenv Getenv, log *slog.Logger, name string, def int64) int64 {
	s := getenv(name)
	if s == "" {
		return def
	}
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		log.Warn("не удалось прочитать переменную", "name", name, "value", s, "default", def)
		return def
	}
	return v
}

func parseDuration(getenv Getenv, log *slog.Logger, name string, def time.Duration) time.Duration {
	s := getenv(name)
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		log.Warn("не удалось прочитать интервал", "name", name, "value", s, "default", def)
		return def
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
