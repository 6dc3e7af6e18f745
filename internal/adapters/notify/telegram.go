package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"hermes/pkg/errors"
	"hermes/pkg/logger"
)

// TelegramConfig contains the alert channel configuration
type TelegramConfig struct {
	Token          string
	ChatID         int64
	Debug          bool
	HTTPTimeout    time.Duration
	RateLimitBurst int // default: 30
	RateLimitRate  int // per second, default: 20
}

// TelegramSink delivers alerts to a Telegram chat. Delivery happens in
// a background goroutine so a slow Telegram API never stalls order
// submission.
type TelegramSink struct {
	api         *tgbotapi.BotAPI
	chatID      int64
	log         *logger.Logger
	rateLimiter *rate.Limiter
}

// NewTelegramSink creates a Telegram-backed alert sink
func NewTelegramSink(cfg TelegramConfig) (*TelegramSink, error) {
	if cfg.Token == "" {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram bot token is required")
	}
	if cfg.ChatID == 0 {
		return nil, errors.Wrapf(errors.ErrInvalidInput, "telegram chat id is required")
	}

	if cfg.HTTPTimeout == 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 30 // Telegram allows bursts
	}
	if cfg.RateLimitRate == 0 {
		cfg.RateLimitRate = 20 // conservative, Telegram limit is 30
	}

	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create telegram bot")
	}
	api.Debug = cfg.Debug

	log := logger.Get().With("component", "telegram_notify")
	log.Infof("Authorized on account %s", api.Self.UserName)

	return &TelegramSink{
		api:         api,
		chatID:      cfg.ChatID,
		log:         log,
		rateLimiter: rate.NewLimiter(rate.Limit(cfg.RateLimitRate), cfg.RateLimitBurst),
	}, nil
}

// Report formats and sends the alert asynchronously
func (s *TelegramSink) Report(severity Severity, title, body string) {
	text := fmt.Sprintf("%s *%s*\n%s", severityEmoji(severity), title, body)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.send(ctx, text); err != nil {
			s.log.Errorw("Failed to deliver alert",
				"severity", severity,
				"title", title,
				"error", err,
			)
		}
	}()
}

func (s *TelegramSink) send(ctx context.Context, text string) error {
	if err := s.rateLimiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limiter wait failed")
	}

	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = "Markdown"

	if _, err := s.api.Send(msg); err != nil {
		return errors.Wrap(err, "failed to send message")
	}
	return nil
}

func severityEmoji(severity Severity) string {
	switch severity {
	case SeverityError:
		return "🚨"
	case SeverityWarning:
		return "⚠️"
	default:
		return "ℹ️"
	}
}
