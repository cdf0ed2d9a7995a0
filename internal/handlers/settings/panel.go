package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"strconv"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/commands"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const promptKVPrefix = "settings_prompt:"

type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID int64, userID int64) (bool, error)
}

// Panel serves the /settings command and routes inline button presses to drawers.
type Panel struct {
	s      bot.Service
	admins AdminChecker

	mu      sync.RWMutex
	drawers []Drawer
}

func NewPanel(s bot.Service, admins AdminChecker) *Panel {
	return &Panel{
		s:      s,
		admins: admins,
	}
}

func (p *Panel) getLogEntry() *log.Entry {
	return log.WithField("handler", "settings")
}

func (p *Panel) Register(drawers ...Drawer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.drawers = append(p.drawers, drawers...)
}

func (p *Panel) Commands() []commands.Command {
	return []commands.Command{
		{Name: "settings", Description: i18n.N("Open the chat settings in private"), Scope: commands.ScopeAllChatAdministrators},
		{Name: "cancel", Description: i18n.N("Cancel the pending settings input"), Scope: commands.ScopeAllPrivateChats},
	}
}

func (p *Panel) route(data string) Drawer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var found Drawer
	for _, d := range p.drawers {
		if ownsData(d, data) && (found == nil || len(d.ID()) > len(found.ID())) {
			found = d
		}
	}
	return found
}

func (p *Panel) drawer(id string) Drawer {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, d := range p.drawers {
		if d.ID() == id {
			return d
		}
	}
	return nil
}

func (p *Panel) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	if u.CallbackQuery != nil {
		return p.handleCallback(ctx, u.CallbackQuery)
	}
	msg := u.Message
	if msg == nil || chat == nil || user == nil {
		return true, nil
	}
	if chat.IsPrivate() {
		return p.handlePrivate(ctx, msg, user)
	}
	if msg.IsCommand() && msg.Command() == "settings" {
		return false, p.handleSettingsCommand(ctx, msg, chat, user)
	}
	return true, nil
}

func (p *Panel) handleSettingsCommand(ctx context.Context, msg *api.Message, chat *api.Chat, user *api.User) error {
	lang := p.s.GetLanguage(chat, user)
	isAdmin, err := p.admins.IsAdmin(ctx, chat.ID, user.ID)
	if err != nil {
		return errors.WithMessage(err, "cant check admin")
	}
	if !isAdmin || (msg.SenderChat != nil && msg.SenderChat.ID == chat.ID) {
		_, err := bot.Reply(ctx, p.s.GetBot(), msg, i18n.Get("Only admins may trigger settings", lang))
		return err
	}

	v := View{ChatID: chat.ID, UserID: user.ID, Key: DefaultKey, Lang: lang}
	dm := api.NewMessage(user.ID, fmt.Sprintf(i18n.Get("Settings for chat %s", lang), "<b>"+html.EscapeString(chat.Title)+"</b>"))
	dm.ParseMode = api.ModeHTML
	dm.ReplyMarkup = p.drawRoot(v)
	if _, err := p.s.GetBot().Send(dm); err != nil {
		p.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Debug("cant send settings")
		_, err := bot.Reply(ctx, p.s.GetBot(), msg, i18n.Get("Looks like you didn't start the bot. Open a private chat with it, press Start and try again", lang))
		return err
	}
	return nil
}

func (p *Panel) drawRoot(v View) api.InlineKeyboardMarkup {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var rows [][]api.InlineKeyboardButton
	var row []api.InlineKeyboardButton
	for _, d := range p.drawers {
		if !matchesKey(d, v.Key) {
			continue
		}
		row = append(row, Button(v.ChatID, i18n.Get(d.Name(), v.Lang), d.ID()))
		if len(row) == buttonsPerRow {
			rows = append(rows, row)
			row = nil
		}
	}
	if len(row) > 0 {
		rows = append(rows, row)
	}
	return api.NewInlineKeyboardMarkup(rows...)
}

func (p *Panel) drawDrawer(ctx context.Context, d Drawer, v View) (api.InlineKeyboardMarkup, error) {
	rows, err := d.Draw(ctx, v)
	if err != nil {
		return api.InlineKeyboardMarkup{}, errors.WithMessagef(err, "draw %s", d.ID())
	}
	rows = append(rows, []api.InlineKeyboardButton{Button(v.ChatID, i18n.Get("Back", v.Lang), RootID)})
	return api.NewInlineKeyboardMarkup(rows...), nil
}

func (p *Panel) handleCallback(ctx context.Context, q *api.CallbackQuery) (bool, error) {
	chatID, data, ok := ExtractChatIDAndData(q.Data)
	if !ok || q.Message == nil || q.From == nil {
		return true, nil
	}
	d := p.route(data)
	if d == nil && data != RootID && data != cancelData {
		return true, nil
	}

	b := p.s.GetBot()
	lang := p.s.GetLanguage(&q.Message.Chat, q.From)
	isAdmin, err := p.admins.IsAdmin(ctx, chatID, q.From.ID)
	if err != nil {
		return false, errors.WithMessage(err, "cant check admin")
	}
	if !isAdmin {
		_, _ = b.Request(api.NewCallbackWithAlert(q.ID, i18n.Get("Only admins may change settings", lang)))
		return false, nil
	}

	v := View{ChatID: chatID, UserID: q.From.ID, Key: DefaultKey, Lang: lang}
	switch {
	case data == RootID:
		p.edit(q.Message, p.drawRoot(v))
	case data == cancelData:
		if err := p.clearPrompt(ctx, q.From.ID); err != nil {
			return false, err
		}
		_, _ = b.Request(api.NewEditMessageText(q.Message.Chat.ID, q.Message.MessageID, i18n.Get("Cancelled", lang)))
	case data == d.ID():
		markup, err := p.drawDrawer(ctx, d, v)
		if err != nil {
			return false, err
		}
		p.edit(q.Message, markup)
	default:
		res, err := d.HandleCallback(ctx, v, q, data)
		if err != nil {
			_, _ = b.Request(api.NewCallback(q.ID, i18n.Get("Something went wrong", lang)))
			return false, errors.WithMessagef(err, "callback %s", data)
		}
		if res.Prompt != nil {
			res.Prompt.ChatID = chatID
			res.Prompt.DrawerID = d.ID()
			res.Prompt.MessageID = q.Message.MessageID
			if err := p.Ask(ctx, q.From.ID, lang, *res.Prompt); err != nil {
				return false, err
			}
		}
		if res.Redraw {
			markup, err := p.drawDrawer(ctx, d, v)
			if err != nil {
				return false, err
			}
			p.edit(q.Message, markup)
		}
		_, _ = b.Request(api.NewCallback(q.ID, res.Toast))
		return false, nil
	}
	_, _ = b.Request(api.NewCallback(q.ID, ""))
	return false, nil
}

func (p *Panel) edit(msg *api.Message, markup api.InlineKeyboardMarkup) {
	if _, err := p.s.GetBot().Request(api.NewEditMessageReplyMarkup(msg.Chat.ID, msg.MessageID, markup)); err != nil {
		p.getLogEntry().WithField("error", err.Error()).Debug("cant edit settings markup")
	}
}

// Ask stores the prompt and sends its question to the admin in private, with a Cancel button and
// any extra buttons given.
func (p *Panel) Ask(ctx context.Context, userID int64, lang string, prompt Prompt, extra ...api.InlineKeyboardButton) error {
	data, err := json.Marshal(prompt)
	if err != nil {
		return errors.WithMessage(err, "cant encode prompt")
	}
	if err := p.s.GetDB().SetKV(ctx, promptKey(userID), string(data)); err != nil {
		return errors.WithMessage(err, "cant store prompt")
	}
	row := append(extra, Button(prompt.ChatID, i18n.Get("Cancel", lang), cancelData))
	msg := api.NewMessage(userID, prompt.Text)
	msg.ParseMode = api.ModeHTML
	msg.ReplyMarkup = api.NewInlineKeyboardMarkup(row)
	if _, err := p.s.GetBot().Send(msg); err != nil {
		_ = p.clearPrompt(ctx, userID)
		if bot.IsUnreachable(err) {
			return bot.ErrUnreachable
		}
		return errors.WithMessage(err, "cant send prompt")
	}
	return nil
}

func (p *Panel) pendingPrompt(ctx context.Context, userID int64) (*Prompt, error) {
	raw, err := p.s.GetDB().GetKV(ctx, promptKey(userID))
	if err != nil {
		return nil, errors.WithMessage(err, "cant read prompt")
	}
	if raw == "" {
		return nil, nil
	}
	prompt := &Prompt{}
	if err := json.Unmarshal([]byte(raw), prompt); err != nil {
		p.getLogEntry().WithField("error", err.Error()).Warn("dropping malformed prompt")
		return nil, p.clearPrompt(ctx, userID)
	}
	return prompt, nil
}

func (p *Panel) clearPrompt(ctx context.Context, userID int64) error {
	return errors.WithMessage(p.s.GetDB().DeleteKV(ctx, promptKey(userID)), "cant clear prompt")
}

func (p *Panel) handlePrivate(ctx context.Context, msg *api.Message, user *api.User) (bool, error) {
	lang := p.s.GetLanguage(&msg.Chat, user)
	if msg.IsCommand() {
		if msg.Command() != "cancel" {
			return true, nil
		}
		if err := p.clearPrompt(ctx, user.ID); err != nil {
			return false, err
		}
		_, err := bot.Reply(ctx, p.s.GetBot(), msg, i18n.Get("Cancelled", lang))
		return false, err
	}

	prompt, err := p.pendingPrompt(ctx, user.ID)
	if err != nil {
		return false, err
	}
	if prompt == nil {
		return true, nil
	}
	d := p.drawer(prompt.DrawerID)
	receiver, ok := d.(InputReceiver)
	if d == nil || !ok {
		return false, p.clearPrompt(ctx, user.ID)
	}
	isAdmin, err := p.admins.IsAdmin(ctx, prompt.ChatID, user.ID)
	if err != nil {
		return false, errors.WithMessage(err, "cant check admin")
	}
	if !isAdmin {
		if err := p.clearPrompt(ctx, user.ID); err != nil {
			return false, err
		}
		_, err := bot.Reply(ctx, p.s.GetBot(), msg, i18n.Get("Only admins may change settings", lang))
		return false, err
	}

	v := View{ChatID: prompt.ChatID, UserID: user.ID, Key: DefaultKey, Lang: lang}
	reply, done, err := receiver.ReceiveInput(ctx, v, *prompt, msg)
	if err != nil {
		return false, errors.WithMessagef(err, "input for %s", prompt.Field)
	}
	if reply != "" {
		if _, err := bot.Reply(ctx, p.s.GetBot(), msg, reply); err != nil {
			p.getLogEntry().WithField("error", err.Error()).Debug("cant reply to input")
		}
	}
	if !done {
		return false, nil
	}
	if err := p.clearPrompt(ctx, user.ID); err != nil {
		return false, err
	}
	if prompt.MessageID != 0 {
		markup, err := p.drawDrawer(ctx, d, v)
		if err != nil {
			return false, err
		}
		p.edit(&api.Message{MessageID: prompt.MessageID, Chat: msg.Chat}, markup)
	}
	return false, nil
}

func promptKey(userID int64) string {
	return promptKVPrefix + strconv.FormatInt(userID, 10)
}
