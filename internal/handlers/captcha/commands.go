package captcha

import (
	"context"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/commands"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const replyTTL = 5 * time.Second

// settingCommand is an admin command flipping one captcha setting.
type settingCommand struct {
	name        string
	description string
	reply       string
	apply       func(s *db.CaptchaSettings)
}

var settingCommands = []settingCommand{
	{
		name:        "enable_captcha",
		description: i18n.N("Enable captcha for new users"),
		reply:       i18n.N("Captcha has been enabled"),
		apply:       func(s *db.CaptchaSettings) { s.Enabled = true },
	},
	{
		name:        "disable_captcha",
		description: i18n.N("Disable captcha for new users"),
		reply:       i18n.N("Captcha has been disabled"),
		apply:       func(s *db.CaptchaSettings) { s.Enabled = false },
	},
	{
		name:        "captcha_auto_delete_commands_on",
		description: i18n.N("Delete captcha commands after use"),
		reply:       i18n.N("Ok, captcha commands will be deleted"),
		apply:       func(s *db.CaptchaSettings) { s.AutoRemoveCommands = true },
	},
	{
		name:        "captcha_auto_delete_commands_off",
		description: i18n.N("Keep captcha commands after use"),
		reply:       i18n.N("Ok, captcha commands will not be deleted"),
		apply:       func(s *db.CaptchaSettings) { s.AutoRemoveCommands = false },
	},
	{
		name:        "captcha_auto_delete_events_on",
		description: i18n.N("Delete user joined service messages"),
		reply:       i18n.N("Ok, user joined service messages will be deleted"),
		apply:       func(s *db.CaptchaSettings) { s.AutoRemoveEvents = true },
	},
	{
		name:        "captcha_auto_delete_events_off",
		description: i18n.N("Keep user joined service messages"),
		reply:       i18n.N("Ok, user joined service messages will not be deleted"),
		apply:       func(s *db.CaptchaSettings) { s.AutoRemoveEvents = false },
	},
	{
		name:        "captcha_use_simple",
		description: i18n.N("Use a single button captcha"),
		reply:       i18n.N("Ok, the button captcha will be used"),
		apply:       func(s *db.CaptchaSettings) { s.Provider = s.Provider.WithKind(db.ProviderSimple) },
	},
	{
		name:        "captcha_use_slot_machine",
		description: i18n.N("Use the slot machine captcha"),
		reply:       i18n.N("Ok, the slot machine captcha will be used"),
		apply:       func(s *db.CaptchaSettings) { s.Provider = s.Provider.WithKind(db.ProviderSlotMachine) },
	},
	{
		name:        "captcha_use_expression",
		description: i18n.N("Use the arithmetic expression captcha"),
		reply:       i18n.N("Ok, the expression captcha will be used"),
		apply:       func(s *db.CaptchaSettings) { s.Provider = s.Provider.WithKind(db.ProviderExpression) },
	},
	{
		name:        "captcha_enable_kick",
		description: i18n.N("Kick users who fail captcha"),
		reply:       i18n.N("Ok, new users who fail captcha will be kicked"),
		apply:       func(s *db.CaptchaSettings) { s.KickOnUnsuccess = true },
	},
	{
		name:        "captcha_disable_kick",
		description: i18n.N("Do not kick users who fail captcha"),
		reply:       i18n.N("Ok, new users who fail captcha will NOT be kicked"),
		apply:       func(s *db.CaptchaSettings) { s.KickOnUnsuccess = false },
	},
	{
		name:        "captcha_enable_cas",
		description: i18n.N("Users banned in CAS fail captcha automatically"),
		reply:       i18n.N("Ok, CAS banned users will automatically fail captcha"),
		apply:       func(s *db.CaptchaSettings) { s.CASEnabled = true },
	},
	{
		name:        "captcha_disable_cas",
		description: i18n.N("Users banned in CAS get a usual captcha"),
		reply:       i18n.N("Ok, CAS banned users will NOT automatically fail captcha"),
		apply:       func(s *db.CaptchaSettings) { s.CASEnabled = false },
	},
	{
		name:        "captcha_enable_join_requests",
		description: i18n.N("Check join requests with captcha in private"),
		reply:       i18n.N("Ok, join requests will be checked with captcha"),
		apply:       func(s *db.CaptchaSettings) { s.ReactOnJoinRequest = true },
	},
	{
		name:        "captcha_disable_join_requests",
		description: i18n.N("Leave join requests to admins"),
		reply:       i18n.N("Ok, join requests will be left to admins"),
		apply:       func(s *db.CaptchaSettings) { s.ReactOnJoinRequest = false },
	},
	{
		name:        "captcha_enable_auto_pass",
		description: i18n.N("Skip captcha for users who passed it before"),
		reply:       i18n.N("Ok, users who passed captcha before will not be asked again"),
		apply:       func(s *db.CaptchaSettings) { s.AutoPassKnown = true },
	},
	{
		name:        "captcha_disable_auto_pass",
		description: i18n.N("Always ask captcha"),
		reply:       i18n.N("Ok, every new user will be asked captcha"),
		apply:       func(s *db.CaptchaSettings) { s.AutoPassKnown = false },
	},
}

func (e *Engine) Commands() []commands.Command {
	res := make([]commands.Command, 0, len(settingCommands))
	for _, cmd := range settingCommands {
		res = append(res, commands.Command{
			Name:        cmd.name,
			Description: cmd.description,
			Scope:       commands.ScopeAllChatAdministrators,
		})
	}
	return res
}

func (e *Engine) onCommand(ctx context.Context, msg *api.Message) (bool, error) {
	var cmd *settingCommand
	for i := range settingCommands {
		if settingCommands[i].name == msg.Command() {
			cmd = &settingCommands[i]
			break
		}
	}
	if cmd == nil {
		return true, nil
	}

	isAdmin := msg.SenderChat != nil && msg.SenderChat.ID == msg.Chat.ID
	if !isAdmin && msg.From != nil {
		var err error
		if isAdmin, err = e.admins.IsAdmin(ctx, msg.Chat.ID, msg.From.ID); err != nil {
			return false, errors.WithMessage(err, "cant check admin")
		}
	}
	if !isAdmin {
		return false, nil
	}

	settings, err := e.s.GetCaptchaSettings(ctx, msg.Chat.ID)
	if err != nil {
		return false, err
	}
	cmd.apply(settings)
	if err := settings.Validate(); err != nil {
		return false, err
	}
	if err := e.s.GetDB().SetCaptchaSettings(ctx, settings); err != nil {
		return false, errors.WithMessage(err, "cant save captcha settings")
	}

	client := e.s.GetBot()
	reply, err := bot.Reply(ctx, client, msg, i18n.Get(cmd.reply, e.s.GetLanguage(&msg.Chat, msg.From)))
	if err != nil {
		e.getLogEntry().WithField("error", err.Error()).Debug("cant reply to captcha command")
	} else {
		bot.DeleteChatMessageAfter(client, msg.Chat.ID, reply.MessageID, replyTTL)
	}
	if settings.AutoRemoveCommands {
		if err := bot.DeleteChatMessage(ctx, client, msg.Chat.ID, msg.MessageID); err != nil {
			e.getLogEntry().WithField("error", err.Error()).Debug("cant delete captcha command")
		}
	}
	return false, nil
}
