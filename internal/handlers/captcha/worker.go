package captcha

import (
	"context"
	"fmt"
	"html"
	"strings"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	callbackPrefix = "cpt:"
	cancelData     = callbackPrefix + "cancel"
)

type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomePassed
	OutcomeBlocked
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomePassed:
		return "passed"
	case OutcomeBlocked:
		return "blocked"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "failed"
	}
}

type (
	// Result is how a challenge ended. CancelledBy is set when an admin pressed Cancel.
	Result struct {
		Outcome     Outcome
		CancelledBy *api.User
	}

	// Worker presents one challenge to one user and waits for it to resolve. Close removes whatever
	// Run has sent and must be safe to call after a cancelled Run.
	Worker interface {
		Run(ctx context.Context) (Result, error)
		Close(ctx context.Context)
	}

	// challenge holds what every worker kind needs to talk to its user.
	challenge struct {
		client bot.Client
		hub    *hub
		admins AdminChecker

		chatID   int64
		threadID int
		groupID  int64
		replyTo  int
		user     *api.User
		lang     string
		cfg      db.ProviderConfig
		// cancellable is false when admins cannot see the challenge, as in private chats.
		cancellable bool

		mu   sync.Mutex
		sent []int
	}
)

func newWorker(c *challenge) Worker {
	switch c.cfg.Kind {
	case db.ProviderSlotMachine:
		return &slotMachineWorker{challenge: c}
	case db.ProviderExpression:
		return &expressionWorker{challenge: c}
	default:
		return &simpleWorker{challenge: c}
	}
}

func (c *challenge) getLogEntry() *log.Entry {
	return log.WithField("handler", "captcha").WithField("chat_id", c.groupID).WithField("user_id", c.user.ID)
}

// text greets the user with the configured captcha text or the translated default.
func (c *challenge) text(defaultKey string) string {
	text := i18n.Get(defaultKey, c.lang)
	if c.cfg.CaptchaText != "" {
		text = html.EscapeString(c.cfg.CaptchaText)
	}
	return bot.Mention(c.user) + ", " + text
}

func (c *challenge) cancelRow() []api.InlineKeyboardButton {
	return api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(i18n.Get("Cancel (Admins only)", c.lang), cancelData))
}

func (c *challenge) withCancel(rows [][]api.InlineKeyboardButton) api.InlineKeyboardMarkup {
	if c.cancellable {
		rows = append(rows, c.cancelRow())
	}
	return api.NewInlineKeyboardMarkup(rows...)
}

func (c *challenge) track(msg api.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg.MessageID)
}

// present sends a challenge message. Any failure means the user cannot be challenged.
func (c *challenge) present(ctx context.Context, cfg api.Chattable) (api.Message, error) {
	if err := ctx.Err(); err != nil {
		return api.Message{}, err
	}
	msg, err := c.client.Send(cfg)
	if err != nil {
		return api.Message{}, errors.WithMessage(err, "cant present challenge")
	}
	c.track(msg)
	return msg, nil
}

func (c *challenge) newMessage(text string, markup api.InlineKeyboardMarkup) api.MessageConfig {
	msg := api.NewMessage(c.chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.MessageThreadID = c.threadID
	msg.ReplyMarkup = markup
	if c.replyTo != 0 {
		msg.ReplyParameters.MessageID = c.replyTo
		msg.ReplyParameters.AllowSendingWithoutReply = true
	}
	return msg
}

func (c *challenge) edit(messageID int, text string) {
	cfg := api.NewEditMessageText(c.chatID, messageID, text)
	cfg.ParseMode = api.ModeHTML
	if _, err := c.client.Request(cfg); err != nil {
		c.getLogEntry().WithField("error", err.Error()).Debug("cant edit challenge")
	}
}

func (c *challenge) answer(q *api.CallbackQuery, text string) {
	if _, err := c.client.Request(api.NewCallback(q.ID, text)); err != nil {
		c.getLogEntry().WithField("error", err.Error()).Trace("cant answer callback")
	}
}

func (c *challenge) await(ctx context.Context, presses <-chan *api.CallbackQuery) (*api.CallbackQuery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case q := <-presses:
		return q, nil
	}
}

// screen handles presses that are not answers: an admin cancel resolves the challenge, presses by
// anyone but the user are refused. It reports whether q is an answer of the user.
func (c *challenge) screen(ctx context.Context, q *api.CallbackQuery) (cancelled bool, answer bool) {
	if q.From == nil {
		return false, false
	}
	if q.Data == cancelData {
		if c.cancellable && c.isAdmin(ctx, q.From.ID) {
			c.answer(q, i18n.Get("You have cancelled captcha", c.lang))
			return true, false
		}
		c.answer(q, i18n.Get("This button is for admins only", c.lang))
		return false, false
	}
	if q.From.ID != c.user.ID {
		c.answer(q, i18n.Get("This button is not for you", c.lang))
		return false, false
	}
	return false, true
}

func (c *challenge) isAdmin(ctx context.Context, userID int64) bool {
	if c.admins == nil {
		return false
	}
	isAdmin, err := c.admins.IsAdmin(ctx, c.groupID, userID)
	if err != nil {
		c.getLogEntry().WithField("error", err.Error()).Warn("cant check admin")
		return false
	}
	return isAdmin
}

// Close deletes every message the worker sent.
func (c *challenge) Close(ctx context.Context) {
	c.mu.Lock()
	sent := c.sent
	c.sent = nil
	c.mu.Unlock()
	for _, messageID := range sent {
		if err := bot.DeleteChatMessage(ctx, c.client, c.chatID, messageID); err != nil {
			c.getLogEntry().WithField("error", err.Error()).Debug("cant delete challenge message")
		}
	}
}

func progress(done []string, left int) string {
	return strings.Join(done, "") + strings.Repeat("✖", left)
}

func answerData(kind string, value any) string {
	return fmt.Sprintf("%s%s:%v", callbackPrefix, kind, value)
}
