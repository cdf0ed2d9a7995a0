package bans

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/admins"
	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/event"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	cmdWarn            = "warn"
	cmdWarning         = "warning"
	cmdUnwarn          = "unwarn"
	cmdUnwarning       = "unwarning"
	cmdSetWarnsCount   = "set_chat_warnings_count"
	cmdCountWarns      = "ban_count_warns"
	cmdBan             = "ban"
	cmdEnableBanPlugin = "enable_ban_plugin"
	cmdDisablePlugin   = "disable_ban_plugin"
)

type AdminChecker interface {
	Admins(ctx context.Context, chatID int64) ([]admins.Admin, error)
	IsAdmin(ctx context.Context, chatID int64, userID int64) (bool, error)
	IsAdminLive(ctx context.Context, chatID int64, userID int64) (bool, error)
}

// Bans runs the warning ledger and its escalation to bans.
type Bans struct {
	s      bot.Service
	admins AdminChecker
	events event.Publisher
}

// target is the author of a replied message: a user, or a channel posting on its own behalf.
type target struct {
	id      int64
	user    *api.User
	chat    *api.Chat
	isAdmin bool
}

func NewBans(s bot.Service, adminChecker AdminChecker, events event.Publisher) *Bans {
	if events == nil {
		events = event.Nop{}
	}
	return &Bans{
		s:      s,
		admins: adminChecker,
		events: events,
	}
}

func (b *Bans) getLogEntry() *log.Entry {
	return log.WithField("handler", "bans")
}

func (b *Bans) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	msg := u.Message
	if msg == nil || chat == nil || chat.IsPrivate() || !msg.IsCommand() {
		return true, nil
	}

	var err error
	switch msg.Command() {
	case cmdWarn, cmdWarning:
		err = b.Warn(ctx, msg)
	case cmdUnwarn, cmdUnwarning:
		err = b.Unwarn(ctx, msg)
	case cmdSetWarnsCount:
		err = b.SetWarningsCount(ctx, msg)
	case cmdCountWarns:
		err = b.CountWarnings(ctx, msg)
	case cmdBan:
		err = b.Ban(ctx, msg)
	case cmdEnableBanPlugin:
		err = b.setWorkMode(ctx, msg, db.WorkModeEnabled)
	case cmdDisablePlugin:
		err = b.setWorkMode(ctx, msg, db.WorkModeDisabled)
	default:
		return true, nil
	}
	return false, err
}

// checkBanPluginEnabled gates warn actions by the chat work mode and the actor role.
func checkBanPluginEnabled(settings *db.BanSettings, actorIsAdmin bool) bool {
	return settings.WorkMode.Allows(actorIsAdmin)
}

func (b *Bans) lang(msg *api.Message) string {
	return b.s.GetLanguage(&msg.Chat, msg.From)
}

func (b *Bans) reply(ctx context.Context, msg *api.Message, text string) error {
	if _, err := bot.Reply(ctx, b.s.GetBot(), msg, text); err != nil {
		return errors.WithMessage(err, "cant reply")
	}
	return nil
}

// prepare loads settings, resolves the actor role and applies the work mode gate. A nil settings
// result means the gate already answered.
func (b *Bans) prepare(ctx context.Context, msg *api.Message) (*db.BanSettings, bool, error) {
	settings, err := b.s.GetBanSettings(ctx, bot.ChatKeyOf(msg))
	if err != nil {
		return nil, false, err
	}
	isAdmin, err := b.isActorAdmin(ctx, msg)
	if err != nil {
		return nil, false, err
	}
	if !checkBanPluginEnabled(settings, isAdmin) {
		lang := b.lang(msg)
		return nil, isAdmin, b.reply(ctx, msg, fmt.Sprintf(i18n.Get("Ban plugin is disabled for you here. Admins can turn it on with /%s", lang), cmdEnableBanPlugin))
	}
	return settings, isAdmin, nil
}

func (b *Bans) isActorAdmin(ctx context.Context, msg *api.Message) (bool, error) {
	if msg.SenderChat != nil && msg.SenderChat.ID == msg.Chat.ID {
		return true, nil
	}
	if msg.From == nil {
		return false, nil
	}
	return b.isUserAdmin(ctx, msg.Chat.ID, msg.From)
}

// isUserAdmin asks the API directly for bots, since bot promotions rarely reach the cache in time.
func (b *Bans) isUserAdmin(ctx context.Context, chatID int64, user *api.User) (bool, error) {
	var (
		isAdmin bool
		err     error
	)
	if user.IsBot {
		isAdmin, err = b.admins.IsAdminLive(ctx, chatID, user.ID)
	} else {
		isAdmin, err = b.admins.IsAdmin(ctx, chatID, user.ID)
	}
	if err != nil {
		return false, errors.WithMessage(err, "cant resolve admin role")
	}
	return isAdmin, nil
}

func (b *Bans) targetOf(ctx context.Context, msg *api.Message) (*target, error) {
	reply := msg.ReplyToMessage
	if reply == nil || reply.ForumTopicCreated != nil {
		return nil, nil
	}
	if reply.SenderChat != nil {
		if reply.SenderChat.ID == msg.Chat.ID || reply.IsAutomaticForward {
			return &target{id: reply.SenderChat.ID, chat: reply.SenderChat, isAdmin: true}, nil
		}
		return &target{id: reply.SenderChat.ID, chat: reply.SenderChat}, nil
	}
	if reply.From == nil {
		return nil, nil
	}
	isAdmin, err := b.isUserAdmin(ctx, msg.Chat.ID, reply.From)
	if err != nil {
		return nil, err
	}
	return &target{id: reply.From.ID, user: reply.From, isAdmin: isAdmin}, nil
}

func (t *target) mention() string {
	if t.chat != nil {
		return bot.MentionChat(t.chat)
	}
	return bot.Mention(t.user)
}

func warningKey(msg *api.Message, t *target) db.WarningKey {
	return db.WarningKey{ChatKey: bot.ChatKeyOf(msg), TargetID: t.id}
}

// Warn appends a warning for the replied author and bans them once the chat threshold is reached.
func (b *Bans) Warn(ctx context.Context, msg *api.Message) error {
	settings, isAdmin, err := b.prepare(ctx, msg)
	if err != nil || settings == nil {
		return err
	}
	lang := b.lang(msg)
	t, err := b.targetOf(ctx, msg)
	if err != nil {
		return err
	}
	if t == nil {
		return b.reply(ctx, msg, i18n.Get("Reply to a message of the one you want to warn", lang))
	}
	if !isAdmin {
		return b.callAdmins(ctx, msg, lang)
	}
	if t.isAdmin && !settings.AllowWarnAdmins {
		return b.reply(ctx, msg, i18n.Get("Warning admins is not allowed in this chat", lang))
	}

	key := warningKey(msg, t)
	if err := b.s.GetDB().AddWarning(ctx, key, msg.ReplyToMessage.MessageID); err != nil {
		return errors.WithMessage(err, "cant add warning")
	}
	count, err := b.s.GetDB().CountWarnings(ctx, key)
	if err != nil {
		return errors.WithMessage(err, "cant count warnings")
	}
	b.publish(msg, t, event.TypeWarningIssued, count, settings.WarningsUntilBan)

	if count < settings.WarningsUntilBan {
		return b.reply(ctx, msg, fmt.Sprintf(
			i18n.Get("%s has been warned (%d/%d), %d more until ban", lang),
			t.mention(), count, settings.WarningsUntilBan, settings.WarningsUntilBan-count,
		))
	}
	return b.banAndReport(ctx, msg, t, lang, count, settings.WarningsUntilBan)
}

func (b *Bans) callAdmins(ctx context.Context, msg *api.Message, lang string) error {
	chatAdmins, err := b.admins.Admins(ctx, msg.Chat.ID)
	if err != nil {
		return errors.WithMessage(err, "cant get admins")
	}
	var mentions []string
	for _, admin := range chatAdmins {
		if admin.IsBot {
			continue
		}
		mentions = append(mentions, bot.Mention(admin.User()))
	}
	return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("Only admins can warn. Calling them: %s", lang), strings.Join(mentions, ", ")))
}

func (b *Bans) banAndReport(ctx context.Context, msg *api.Message, t *target, lang string, count, limit int) error {
	if b.ban(ctx, msg.Chat.ID, t) {
		b.publish(msg, t, event.TypeUserBanned, count, limit)
		return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("%s has been banned", lang), t.mention()))
	}
	return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("%s has not been banned", lang), t.mention()))
}

// ban reports whether the platform accepted the ban; rejections only change the reply text.
func (b *Bans) ban(ctx context.Context, chatID int64, t *target) bool {
	var err error
	if t.chat != nil {
		err = bot.BanSenderChat(ctx, b.s.GetBot(), chatID, t.id)
	} else {
		err = bot.BanUserFromChat(ctx, b.s.GetBot(), t.id, chatID, 0)
	}
	if err != nil {
		b.getLogEntry().
			WithField("error", err.Error()).
			WithField("chat_id", chatID).
			WithField("target_id", t.id).
			Warn("ban rejected")
		return false
	}
	return true
}

func (b *Bans) publish(msg *api.Message, t *target, eventType string, count, limit int) {
	e := event.Event{
		Type:     eventType,
		ChatID:   msg.Chat.ID,
		ThreadID: bot.ChatKeyOf(msg).ThreadID,
		UserID:   t.id,
		Count:    count,
		Limit:    limit,
		At:       time.Now(),
	}
	if msg.From != nil {
		e.ActorID = msg.From.ID
	}
	b.events.Publish(e)
}

// Unwarn drops the most recent warning of the replied author.
func (b *Bans) Unwarn(ctx context.Context, msg *api.Message) error {
	settings, isAdmin, err := b.prepare(ctx, msg)
	if err != nil || settings == nil {
		return err
	}
	lang := b.lang(msg)
	if !isAdmin {
		return b.reply(ctx, msg, i18n.Get("Only admins can remove warnings", lang))
	}
	t, err := b.targetOf(ctx, msg)
	if err != nil {
		return err
	}
	if t == nil {
		return b.reply(ctx, msg, i18n.Get("Reply to a message of the one you want to unwarn", lang))
	}

	key := warningKey(msg, t)
	warnings, err := b.s.GetDB().GetWarnings(ctx, key)
	if err != nil {
		return errors.WithMessage(err, "cant get warnings")
	}
	if len(warnings) == 0 {
		return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("%s has no warnings", lang), t.mention()))
	}
	rest := warnings[:len(warnings)-1]
	if err := b.s.GetDB().ReplaceWarnings(ctx, key, rest); err != nil {
		return errors.WithMessage(err, "cant replace warnings")
	}
	return b.reply(ctx, msg, fmt.Sprintf(
		i18n.Get("Removed the last warning of %s (%d/%d)", lang),
		t.mention(), len(rest), settings.WarningsUntilBan,
	))
}

// SetWarningsCount stores the warnings threshold given as the last command argument.
func (b *Bans) SetWarningsCount(ctx context.Context, msg *api.Message) error {
	settings, isAdmin, err := b.prepare(ctx, msg)
	if err != nil || settings == nil {
		return err
	}
	lang := b.lang(msg)
	if !isAdmin {
		return b.reply(ctx, msg, i18n.Get("Only admins can change the warnings count", lang))
	}

	count, ok := parseCount(msg.CommandArguments())
	if !ok {
		return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("Usage: /%s 3", lang), cmdSetWarnsCount))
	}
	settings.WarningsUntilBan = count
	if err := settings.Validate(); err != nil {
		return err
	}
	if err := b.s.GetDB().SetBanSettings(ctx, settings); err != nil {
		return errors.WithMessage(err, "cant save ban settings")
	}
	return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("Warnings until ban set to %d", lang), count))
}

func parseCount(args string) (int, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	count, err := strconv.Atoi(fields[len(fields)-1])
	if err != nil || count < 1 {
		return 0, false
	}
	return count, true
}

// CountWarnings reports the ledger of the replied author, or of the requester without a reply.
func (b *Bans) CountWarnings(ctx context.Context, msg *api.Message) error {
	settings, err := b.s.GetBanSettings(ctx, bot.ChatKeyOf(msg))
	if err != nil {
		return err
	}
	lang := b.lang(msg)
	t, err := b.targetOf(ctx, msg)
	if err != nil {
		return err
	}
	if t == nil {
		switch {
		case msg.SenderChat != nil:
			t = &target{id: msg.SenderChat.ID, chat: msg.SenderChat}
		case msg.From != nil:
			t = &target{id: msg.From.ID, user: msg.From}
		default:
			return nil
		}
	}

	count, err := b.s.GetDB().CountWarnings(ctx, warningKey(msg, t))
	if err != nil {
		return errors.WithMessage(err, "cant count warnings")
	}
	left := settings.WarningsUntilBan - count
	if left < 0 {
		left = 0
	}
	return b.reply(ctx, msg, fmt.Sprintf(
		i18n.Get("%s has %d/%d warnings, %d left until ban", lang),
		t.mention(), count, settings.WarningsUntilBan, left,
	))
}

// Ban bans the replied author right away, bypassing the ledger.
func (b *Bans) Ban(ctx context.Context, msg *api.Message) error {
	settings, err := b.s.GetBanSettings(ctx, bot.ChatKeyOf(msg))
	if err != nil {
		return err
	}
	lang := b.lang(msg)
	if !settings.WorkMode.AllowsAdmin() {
		return b.reply(ctx, msg, fmt.Sprintf(i18n.Get("Ban plugin is disabled for you here. Admins can turn it on with /%s", lang), cmdEnableBanPlugin))
	}
	isAdmin, err := b.isActorAdmin(ctx, msg)
	if err != nil {
		return err
	}
	if !isAdmin {
		return b.reply(ctx, msg, i18n.Get("Only admins can ban", lang))
	}
	t, err := b.targetOf(ctx, msg)
	if err != nil {
		return err
	}
	if t == nil {
		return b.reply(ctx, msg, i18n.Get("Reply to a message of the one you want to ban", lang))
	}
	return b.banAndReport(ctx, msg, t, lang, 0, 0)
}

func (b *Bans) setWorkMode(ctx context.Context, msg *api.Message, mode db.WorkMode) error {
	lang := b.lang(msg)
	isAdmin, err := b.isActorAdmin(ctx, msg)
	if err != nil {
		return err
	}
	if !isAdmin {
		return b.reply(ctx, msg, i18n.Get("Only admins can change ban plugin settings", lang))
	}
	settings, err := b.s.GetBanSettings(ctx, bot.ChatKeyOf(msg))
	if err != nil {
		return err
	}
	settings.WorkMode = mode
	if err := b.s.GetDB().SetBanSettings(ctx, settings); err != nil {
		return errors.WithMessage(err, "cant save ban settings")
	}
	if mode == db.WorkModeDisabled {
		return b.reply(ctx, msg, i18n.Get("Ban plugin has been disabled", lang))
	}
	return b.reply(ctx, msg, i18n.Get("Ban plugin has been enabled", lang))
}
