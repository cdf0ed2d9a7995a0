package welcome

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/settings"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	drawerID = "welcome"

	dataGet   = drawerID + "_gm"
	dataSet   = drawerID + "_s"
	dataUnset = drawerID + "_us"
)

type Drawer struct {
	s bot.Service
}

func NewDrawer(s bot.Service) *Drawer {
	return &Drawer{s: s}
}

func (d *Drawer) ID() string     { return drawerID }
func (d *Drawer) Name() string   { return i18n.N("Welcome") }
func (d *Drawer) Keys() []string { return nil }

func (d *Drawer) Draw(ctx context.Context, v settings.View) ([][]api.InlineKeyboardButton, error) {
	current, err := d.s.GetDB().GetWelcomeSettings(ctx, v.ChatID)
	if err != nil {
		return nil, errors.WithMessage(err, "cant get welcome settings")
	}
	rows := [][]api.InlineKeyboardButton{{
		settings.Button(v.ChatID, i18n.Get("Set new", v.Lang), dataSet),
		settings.Button(v.ChatID, i18n.Get("Unset", v.Lang), dataUnset),
	}}
	if current != nil {
		rows = append(rows, []api.InlineKeyboardButton{settings.Button(v.ChatID, i18n.Get("Get message", v.Lang), dataGet)})
	}
	return rows, nil
}

func (d *Drawer) HandleCallback(ctx context.Context, v settings.View, _ *api.CallbackQuery, data string) (settings.Result, error) {
	switch data {
	case dataSet:
		return settings.Result{
			Handled: true,
			Prompt:  &settings.Prompt{Field: dataSet, Text: promptText("", v.Lang)},
		}, nil
	case dataUnset:
		if err := d.s.GetDB().DeleteWelcomeSettings(ctx, v.ChatID); err != nil {
			return settings.Result{}, errors.WithMessage(err, "cant unset welcome")
		}
		return settings.Result{Handled: true, Redraw: true, Toast: i18n.Get("Welcome message has been removed", v.Lang)}, nil
	case dataGet:
		current, err := d.s.GetDB().GetWelcomeSettings(ctx, v.ChatID)
		if err != nil {
			return settings.Result{}, errors.WithMessage(err, "cant get welcome settings")
		}
		if current == nil {
			return settings.Result{Handled: true, Redraw: true, Toast: i18n.Get("Welcome message is not set", v.Lang)}, nil
		}
		if _, err := d.s.GetBot().Request(api.NewCopyMessage(v.UserID, current.SourceChatID, current.SourceMessageID)); err != nil {
			return settings.Result{Handled: true, Toast: i18n.Get("Can't find the welcome message, set it again", v.Lang)}, nil
		}
		return settings.Result{Handled: true}, nil
	}
	return settings.Result{}, nil
}

func (d *Drawer) ReceiveInput(ctx context.Context, v settings.View, p settings.Prompt, msg *api.Message) (string, bool, error) {
	if p.Field != dataSet {
		return "", true, nil
	}
	err := d.s.GetDB().SetWelcomeSettings(ctx, &db.WelcomeSettings{
		ChatID:          v.ChatID,
		SourceChatID:    msg.Chat.ID,
		SourceMessageID: msg.MessageID,
	})
	if err != nil {
		return "", false, errors.WithMessage(err, "cant set welcome")
	}
	return i18n.Get("Welcome message has been changed", v.Lang) + "\n\n<b>" +
		i18n.Get("Please, do not delete this message and do not stop the bot, otherwise the welcome message stops working", v.Lang) + "</b>", true, nil
}
