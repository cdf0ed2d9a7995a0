package bans

import (
	"context"
	"fmt"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/settings"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	drawerID = "ban"

	dataUserToggle      = drawerID + "_userToggle"
	dataAdminToggle     = drawerID + "_adminToggle"
	dataAllowWarnAdmins = drawerID + "_allowWarnAdmins"
	dataWarns           = drawerID + "_warns"

	maxWarningsUntilBan = 100
)

// Drawer edits the chat-wide ban settings from the settings panel.
type Drawer struct {
	s bot.Service
}

func NewDrawer(s bot.Service) *Drawer {
	return &Drawer{s: s}
}

func (d *Drawer) ID() string     { return drawerID }
func (d *Drawer) Name() string   { return i18n.N("Bans") }
func (d *Drawer) Keys() []string { return nil }

func (d *Drawer) settings(ctx context.Context, chatID int64) (*db.BanSettings, error) {
	return d.s.GetBanSettings(ctx, db.ChatKey{ChatID: chatID})
}

func (d *Drawer) Draw(ctx context.Context, v settings.View) ([][]api.InlineKeyboardButton, error) {
	s, err := d.settings(ctx, v.ChatID)
	if err != nil {
		return nil, err
	}
	return [][]api.InlineKeyboardButton{
		{
			settings.Button(v.ChatID, settings.Toggle(i18n.Get("Users can warn", v.Lang), s.WorkMode.AllowsUser()), dataUserToggle),
			settings.Button(v.ChatID, settings.Toggle(i18n.Get("Admins can warn", v.Lang), s.WorkMode.AllowsAdmin()), dataAdminToggle),
		},
		{
			settings.Button(v.ChatID, settings.Toggle(i18n.Get("Warn admins", v.Lang), s.AllowWarnAdmins), dataAllowWarnAdmins),
		},
		{
			settings.Button(v.ChatID, fmt.Sprintf(i18n.Get("Warnings until ban: %d", v.Lang), s.WarningsUntilBan), dataWarns),
		},
	}, nil
}

func (d *Drawer) HandleCallback(ctx context.Context, v settings.View, _ *api.CallbackQuery, data string) (settings.Result, error) {
	s, err := d.settings(ctx, v.ChatID)
	if err != nil {
		return settings.Result{}, err
	}
	switch data {
	case dataUserToggle:
		s.WorkMode = toggleUsers(s.WorkMode)
	case dataAdminToggle:
		s.WorkMode = toggleAdmins(s.WorkMode)
	case dataAllowWarnAdmins:
		s.AllowWarnAdmins = !s.AllowWarnAdmins
	case dataWarns:
		return settings.Result{
			Handled: true,
			Prompt: &settings.Prompt{
				Field: dataWarns,
				Text:  fmt.Sprintf(i18n.Get("Send the number of warnings until ban, from 1 to %d", v.Lang), maxWarningsUntilBan),
			},
		}, nil
	default:
		return settings.Result{}, nil
	}
	if err := d.s.GetDB().SetBanSettings(ctx, s); err != nil {
		return settings.Result{}, errors.WithMessage(err, "cant save ban settings")
	}
	return settings.Result{Handled: true, Redraw: true}, nil
}

func (d *Drawer) ReceiveInput(ctx context.Context, v settings.View, p settings.Prompt, msg *api.Message) (string, bool, error) {
	if p.Field != dataWarns {
		return "", true, nil
	}
	count, ok := settings.ParseBounded(msg.Text, 1, maxWarningsUntilBan)
	if !ok {
		return fmt.Sprintf(i18n.Get("Send the number of warnings until ban, from 1 to %d", v.Lang), maxWarningsUntilBan), false, nil
	}
	s, err := d.settings(ctx, v.ChatID)
	if err != nil {
		return "", false, err
	}
	s.WarningsUntilBan = count
	if err := s.Validate(); err != nil {
		return "", false, err
	}
	if err := d.s.GetDB().SetBanSettings(ctx, s); err != nil {
		return "", false, errors.WithMessage(err, "cant save ban settings")
	}
	return fmt.Sprintf(i18n.Get("Warnings until ban set to %d", v.Lang), count), true, nil
}

// toggleUsers flips whether members may warn, keeping the admin side.
func toggleUsers(mode db.WorkMode) db.WorkMode {
	return modeOf(mode.AllowsAdmin(), !mode.AllowsUser())
}

func toggleAdmins(mode db.WorkMode) db.WorkMode {
	return modeOf(!mode.AllowsAdmin(), mode.AllowsUser())
}

func modeOf(admins, users bool) db.WorkMode {
	switch {
	case admins && users:
		return db.WorkModeEnabled
	case admins:
		return db.WorkModeEnabledForAdmins
	case users:
		return db.WorkModeEnabledForUsers
	default:
		return db.WorkModeDisabled
	}
}
