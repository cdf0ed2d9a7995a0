package bot

import (
	"context"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/db"
)

type ServiceOptions struct {
	DefaultLanguage string
	// CaptchaEnabledByDefault seeds the enabled flag of chats seen for the first time.
	CaptchaEnabledByDefault bool
	SupportedLanguages      []string
}

type service struct {
	bot  Client
	db   db.Client
	opts ServiceOptions
}

func NewService(bot Client, dbClient db.Client, opts ServiceOptions) *service {
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	return &service{
		bot:  bot,
		db:   dbClient,
		opts: opts,
	}
}

func (s *service) GetBot() Client {
	return s.bot
}

func (s *service) GetDB() db.Client {
	return s.db
}

func (s *service) GetBanSettings(ctx context.Context, key db.ChatKey) (*db.BanSettings, error) {
	settings, err := s.db.GetBanSettings(ctx, key)
	if err != nil {
		return nil, errors.WithMessage(err, "cant get ban settings")
	}
	if settings != nil {
		return settings, nil
	}
	settings = db.DefaultBanSettings(key)
	if err := s.db.SetBanSettings(ctx, settings); err != nil {
		return nil, errors.WithMessage(err, "cant create ban settings")
	}
	return settings, nil
}

func (s *service) GetCaptchaSettings(ctx context.Context, chatID int64) (*db.CaptchaSettings, error) {
	settings, err := s.db.GetCaptchaSettings(ctx, chatID)
	if err != nil {
		return nil, errors.WithMessage(err, "cant get captcha settings")
	}
	if settings != nil {
		return settings, nil
	}
	settings = db.DefaultCaptchaSettings(chatID, s.opts.CaptchaEnabledByDefault)
	if err := s.db.SetCaptchaSettings(ctx, settings); err != nil {
		return nil, errors.WithMessage(err, "cant create captcha settings")
	}
	return settings, nil
}

// GetLanguage prefers the user's client language when it is supported, then the bot default.
func (s *service) GetLanguage(chat *api.Chat, user *api.User) string {
	if user != nil && user.LanguageCode != "" {
		code := strings.ToLower(strings.SplitN(user.LanguageCode, "-", 2)[0])
		for _, supported := range s.opts.SupportedLanguages {
			if supported == code {
				return code
			}
		}
	}
	return s.opts.DefaultLanguage
}
