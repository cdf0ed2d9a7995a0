package captcha

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
	drawerID = "captcha"

	dataEnabled      = drawerID + "_e"
	dataRemoveEvents = drawerID + "_rm_e"
	dataRemoveCmds   = drawerID + "_rm_c"
	dataKick         = drawerID + "_kick"
	dataCAS          = drawerID + "_cas"
	dataJoinRequests = drawerID + "_jr"
	dataAutoPass     = drawerID + "_ap"
	dataProvider     = drawerID + "_p"
	dataCheckTime    = drawerID + "_t"
	dataMaxPerNumber = drawerID + "_om"
	dataOperations   = drawerID + "_o"
	dataAnswers      = drawerID + "_an"
	dataAttempts     = drawerID + "_a"
)

var providerCycle = []db.ProviderKind{db.ProviderSimple, db.ProviderSlotMachine, db.ProviderExpression}

// numericField is a provider knob edited through a prompt.
type numericField struct {
	label    string
	min, max int
	get      func(p *db.ProviderConfig) int
	set      func(p *db.ProviderConfig, v int)
}

var numericFields = map[string]numericField{
	dataCheckTime: {
		label: i18n.N("Time to solve, seconds: %d"),
		min:   15, max: 300,
		get: func(p *db.ProviderConfig) int { return p.CheckTimeSeconds },
		set: func(p *db.ProviderConfig, v int) { p.CheckTimeSeconds = v },
	},
	dataMaxPerNumber: {
		label: i18n.N("Max number: %d"),
		min:   1, max: 1000,
		get: func(p *db.ProviderConfig) int { return p.MaxPerNumber },
		set: func(p *db.ProviderConfig, v int) { p.MaxPerNumber = v },
	},
	dataOperations: {
		label: i18n.N("Operations: %d"),
		min:   1, max: 10,
		get: func(p *db.ProviderConfig) int { return p.Operations },
		set: func(p *db.ProviderConfig, v int) { p.Operations = v },
	},
	dataAnswers: {
		label: i18n.N("Answers: %d"),
		min:   2, max: 10,
		get: func(p *db.ProviderConfig) int { return p.Answers },
		set: func(p *db.ProviderConfig, v int) { p.Answers = v },
	},
	dataAttempts: {
		label: i18n.N("Attempts: %d"),
		min:   1, max: 10,
		get: func(p *db.ProviderConfig) int { return p.Attempts },
		set: func(p *db.ProviderConfig, v int) { p.Attempts = v },
	},
}

// Drawer edits the captcha settings of a chat from the settings panel.
type Drawer struct {
	s bot.Service
}

func NewDrawer(s bot.Service) *Drawer {
	return &Drawer{s: s}
}

func (d *Drawer) ID() string     { return drawerID }
func (d *Drawer) Name() string   { return i18n.N("Captcha") }
func (d *Drawer) Keys() []string { return nil }

func (d *Drawer) Draw(ctx context.Context, v settings.View) ([][]api.InlineKeyboardButton, error) {
	s, err := d.s.GetCaptchaSettings(ctx, v.ChatID)
	if err != nil {
		return nil, err
	}
	toggle := func(key string, on bool, data string) api.InlineKeyboardButton {
		return settings.Button(v.ChatID, settings.Toggle(i18n.Get(key, v.Lang), on), data)
	}
	number := func(data string) api.InlineKeyboardButton {
		f := numericFields[data]
		return settings.Button(v.ChatID, fmt.Sprintf(i18n.Get(f.label, v.Lang), f.get(&s.Provider)), data)
	}

	rows := [][]api.InlineKeyboardButton{
		{toggle(i18n.N("Captcha enabled"), s.Enabled, dataEnabled)},
		{
			toggle(i18n.N("Delete join messages"), s.AutoRemoveEvents, dataRemoveEvents),
			toggle(i18n.N("Delete commands"), s.AutoRemoveCommands, dataRemoveCmds),
		},
		{
			toggle(i18n.N("Kick on fail"), s.KickOnUnsuccess, dataKick),
			toggle(i18n.N("CAS check"), s.CASEnabled, dataCAS),
		},
		{
			toggle(i18n.N("Join requests"), s.ReactOnJoinRequest, dataJoinRequests),
			toggle(i18n.N("Skip known users"), s.AutoPassKnown, dataAutoPass),
		},
		{settings.Button(v.ChatID, fmt.Sprintf(i18n.Get("Captcha type: %s", v.Lang), providerName(s.Provider.Kind, v.Lang)), dataProvider)},
		{number(dataCheckTime)},
	}
	if s.Provider.Kind == db.ProviderExpression {
		rows = append(rows,
			[]api.InlineKeyboardButton{number(dataMaxPerNumber), number(dataOperations)},
			[]api.InlineKeyboardButton{number(dataAnswers), number(dataAttempts)},
		)
	}
	return rows, nil
}

func (d *Drawer) HandleCallback(ctx context.Context, v settings.View, _ *api.CallbackQuery, data string) (settings.Result, error) {
	s, err := d.s.GetCaptchaSettings(ctx, v.ChatID)
	if err != nil {
		return settings.Result{}, err
	}
	if f, ok := numericFields[data]; ok {
		return settings.Result{
			Handled: true,
			Prompt: &settings.Prompt{
				Field: data,
				Text:  fmt.Sprintf(i18n.Get("Send a number from %d to %d", v.Lang), f.min, f.max),
			},
		}, nil
	}
	switch data {
	case dataEnabled:
		s.Enabled = !s.Enabled
	case dataRemoveEvents:
		s.AutoRemoveEvents = !s.AutoRemoveEvents
	case dataRemoveCmds:
		s.AutoRemoveCommands = !s.AutoRemoveCommands
	case dataKick:
		s.KickOnUnsuccess = !s.KickOnUnsuccess
	case dataCAS:
		s.CASEnabled = !s.CASEnabled
	case dataJoinRequests:
		s.ReactOnJoinRequest = !s.ReactOnJoinRequest
	case dataAutoPass:
		s.AutoPassKnown = !s.AutoPassKnown
	case dataProvider:
		s.Provider = s.Provider.WithKind(nextProvider(s.Provider.Kind))
	default:
		return settings.Result{}, nil
	}
	if err := d.save(ctx, s); err != nil {
		return settings.Result{}, err
	}
	return settings.Result{Handled: true, Redraw: true}, nil
}

func (d *Drawer) ReceiveInput(ctx context.Context, v settings.View, p settings.Prompt, msg *api.Message) (string, bool, error) {
	f, ok := numericFields[p.Field]
	if !ok {
		return "", true, nil
	}
	n, ok := settings.ParseBounded(msg.Text, f.min, f.max)
	if !ok {
		return fmt.Sprintf(i18n.Get("Send a number from %d to %d", v.Lang), f.min, f.max), false, nil
	}
	s, err := d.s.GetCaptchaSettings(ctx, v.ChatID)
	if err != nil {
		return "", false, err
	}
	if p.Field != dataCheckTime && s.Provider.Kind != db.ProviderExpression {
		return "", true, nil
	}
	f.set(&s.Provider, n)
	if err := d.save(ctx, s); err != nil {
		return "", false, err
	}
	return fmt.Sprintf(i18n.Get(f.label, v.Lang), n), true, nil
}

func (d *Drawer) save(ctx context.Context, s *db.CaptchaSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return errors.WithMessage(d.s.GetDB().SetCaptchaSettings(ctx, s), "cant save captcha settings")
}

func nextProvider(kind db.ProviderKind) db.ProviderKind {
	for i, k := range providerCycle {
		if k == kind {
			return providerCycle[(i+1)%len(providerCycle)]
		}
	}
	return db.ProviderSimple
}

func providerName(kind db.ProviderKind, lang string) string {
	switch kind {
	case db.ProviderSlotMachine:
		return i18n.Get("slot machine", lang)
	case db.ProviderExpression:
		return i18n.Get("expression", lang)
	default:
		return i18n.Get("button", lang)
	}
}
