package bot

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/db"
)

// Client is the subset of *api.BotAPI the handlers talk to.
type Client interface {
	Send(c api.Chattable) (api.Message, error)
	Request(c api.Chattable) (*api.APIResponse, error)
	GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error)
	GetChatAdministrators(config api.ChatAdministratorsConfig) ([]api.ChatMember, error)
	GetChat(config api.ChatInfoConfig) (api.ChatFullInfo, error)
}

type ServiceBot interface {
	GetBot() Client
}

type ServiceDB interface {
	GetDB() db.Client
}

// Service bundles the bot client and storage with settings accessors that create defaults.
type Service interface {
	ServiceBot
	ServiceDB
	GetBanSettings(ctx context.Context, key db.ChatKey) (*db.BanSettings, error)
	GetCaptchaSettings(ctx context.Context, chatID int64) (*db.CaptchaSettings, error)
	GetLanguage(chat *api.Chat, user *api.User) string
}

// Handler defines the interface for all update handlers in the system
type Handler interface {
	Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (proceed bool, err error)
}
