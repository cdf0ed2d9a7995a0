package welcome

import (
	"context"
	"fmt"
	"html"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/commands"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/settings"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const commandWelcome = "welcome"

type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID int64, userID int64) (bool, error)
}

// Asker sends a settings prompt to an admin in private.
type Asker interface {
	Ask(ctx context.Context, userID int64, lang string, prompt settings.Prompt, extra ...api.InlineKeyboardButton) error
}

// Welcome copies the chat's welcome message as a reply to every join.
type Welcome struct {
	s      bot.Service
	admins AdminChecker
	asker  Asker
	// recacheChatID receives forwarded copies of welcome messages whose source is gone.
	recacheChatID int64
}

func NewWelcome(s bot.Service, admins AdminChecker, asker Asker, recacheChatID int64) *Welcome {
	return &Welcome{
		s:             s,
		admins:        admins,
		asker:         asker,
		recacheChatID: recacheChatID,
	}
}

func (w *Welcome) getLogEntry() *log.Entry {
	return log.WithField("handler", "welcome")
}

func (w *Welcome) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	msg := u.Message
	if msg == nil || chat == nil || chat.IsPrivate() {
		return true, nil
	}
	if len(msg.NewChatMembers) > 0 {
		return true, w.greet(ctx, msg)
	}
	if msg.IsCommand() && msg.Command() == commandWelcome && user != nil {
		return false, w.handleCommand(ctx, msg, chat, user)
	}
	return true, nil
}

func (w *Welcome) Commands() []commands.Command {
	return []commands.Command{
		{Name: commandWelcome, Description: i18n.N("Set up the welcome message"), Scope: commands.ScopeAllChatAdministrators},
	}
}

func (w *Welcome) greet(ctx context.Context, msg *api.Message) error {
	settings, err := w.s.GetDB().GetWelcomeSettings(ctx, msg.Chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get welcome settings")
	}
	if settings == nil {
		return nil
	}
	err = w.copyWelcome(settings, msg)
	if !bot.IsMessageToCopyNotFound(err) || w.recacheChatID == 0 {
		return errors.WithMessage(err, "cant send welcome")
	}

	w.getLogEntry().WithField("chat_id", msg.Chat.ID).Info("welcome source is gone, recaching")
	if err := w.recache(ctx, settings); err != nil {
		return err
	}
	return errors.WithMessage(w.copyWelcome(settings, msg), "cant send recached welcome")
}

func (w *Welcome) copyWelcome(settings *db.WelcomeSettings, joined *api.Message) error {
	cfg := api.NewCopyMessage(joined.Chat.ID, settings.SourceChatID, settings.SourceMessageID)
	cfg.ReplyParameters.MessageID = joined.MessageID
	cfg.ReplyParameters.AllowSendingWithoutReply = true
	if joined.IsTopicMessage {
		cfg.MessageThreadID = joined.MessageThreadID
	}
	_, err := w.s.GetBot().Request(cfg)
	return err
}

// recache forwards the source message to the recache chat and repoints the settings to the copy.
func (w *Welcome) recache(ctx context.Context, settings *db.WelcomeSettings) error {
	forwarded, err := w.s.GetBot().Send(api.NewForward(w.recacheChatID, settings.SourceChatID, settings.SourceMessageID))
	if err != nil {
		return errors.WithMessage(err, "cant forward welcome to recache chat")
	}
	settings.SourceChatID = w.recacheChatID
	settings.SourceMessageID = forwarded.MessageID
	return errors.WithMessage(w.s.GetDB().SetWelcomeSettings(ctx, settings), "cant save recached welcome")
}

func (w *Welcome) handleCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	isAdmin, err := w.admins.IsAdmin(ctx, chat.ID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check admin")
	}
	if !isAdmin {
		return nil
	}
	lang := w.s.GetLanguage(chat, user)
	current, err := w.s.GetDB().GetWelcomeSettings(ctx, chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get welcome settings")
	}
	var extra []api.InlineKeyboardButton
	if current != nil {
		extra = append(extra, settings.Button(chat.ID, i18n.Get("Unset", lang), dataUnset))
	}
	prompt := settings.Prompt{
		ChatID:   chat.ID,
		DrawerID: drawerID,
		Field:    dataSet,
		Text:     promptText(chat.Title, lang),
	}
	err = w.asker.Ask(ctx, user.ID, lang, prompt, extra...)
	if errors.Is(err, bot.ErrUnreachable) {
		_, err = bot.Reply(ctx, w.s.GetBot(), msg, i18n.Get("Looks like you didn't start the bot. Open a private chat with it, press Start and try again", lang))
	}
	return err
}

func promptText(title, lang string) string {
	if title == "" {
		return i18n.Get("Ok, send me the message which should be used as welcome message", lang)
	}
	return fmt.Sprintf(
		i18n.Get("Ok, send me the message which should be used as welcome message for chat %s", lang),
		"<u>"+html.EscapeString(title)+"</u>",
	)
}
