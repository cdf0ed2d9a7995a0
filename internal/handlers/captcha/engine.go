package captcha

import (
	"context"
	"strings"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/cas"
	"github.com/iamwavecut/ngguard/internal/event"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	defaultMaxConcurrent = 32
	// approvedTTL is how long a user approved through a join request is not challenged again when
	// their "joined" service message arrives.
	approvedTTL  = 2 * time.Minute
	closeTimeout = 10 * time.Second
	tracerName   = "github.com/iamwavecut/ngguard/internal/handlers/captcha"
)

var errNotStarted = errors.New("captcha engine is not started")

type AdminChecker interface {
	IsAdmin(ctx context.Context, chatID int64, userID int64) (bool, error)
}

type Options struct {
	// MaxConcurrent bounds simultaneous challenges of one batch.
	MaxConcurrent int
}

type approvalKey struct {
	chatID int64
	userID int64
}

// Engine challenges new members and join requests. Challenges run in the background so the update
// loop keeps delivering the button presses they wait for.
type Engine struct {
	s      bot.Service
	admins AdminChecker
	cas    cas.Checker
	events event.Publisher
	opts   Options
	hub    *hub
	tracer trace.Tracer
	now    func() time.Time

	approvedMu sync.Mutex
	approved   map[approvalKey]time.Time

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	startStopMutex sync.Mutex
	started        bool
}

func NewEngine(s bot.Service, admins AdminChecker, casChecker cas.Checker, events event.Publisher, opts Options) *Engine {
	if events == nil {
		events = event.Nop{}
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = defaultMaxConcurrent
	}
	return &Engine{
		s:        s,
		admins:   admins,
		cas:      casChecker,
		events:   events,
		opts:     opts,
		hub:      newHub(),
		tracer:   otel.Tracer(tracerName),
		now:      time.Now,
		approved: map[approvalKey]time.Time{},
	}
}

func (e *Engine) getLogEntry() *log.Entry {
	return log.WithField("handler", "captcha")
}

func (e *Engine) Start(ctx context.Context) error {
	e.startStopMutex.Lock()
	defer e.startStopMutex.Unlock()
	if e.started {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(context.Background())
	e.started = true
	e.getLogEntry().Info("captcha engine started")
	return nil
}

// Stop cancels running challenges and waits until their outcomes are applied.
func (e *Engine) Stop(ctx context.Context) error {
	e.startStopMutex.Lock()
	if !e.started {
		e.startStopMutex.Unlock()
		return nil
	}
	e.cancel()
	e.started = false
	e.startStopMutex.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		e.getLogEntry().Info("captcha engine stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) spawn(b *batch) error {
	e.startStopMutex.Lock()
	defer e.startStopMutex.Unlock()
	if !e.started {
		return errNotStarted
	}
	e.wg.Add(1)
	go func(ctx context.Context) {
		defer e.wg.Done()
		e.runBatch(ctx, b)
	}(e.ctx)
	return nil
}

func (e *Engine) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	switch {
	case u.CallbackQuery != nil && strings.HasPrefix(u.CallbackQuery.Data, callbackPrefix):
		e.onCallback(u.CallbackQuery)
		return false, nil
	case u.ChatJoinRequest != nil:
		return e.onJoinRequest(ctx, u.ChatJoinRequest)
	case u.Message != nil && len(u.Message.NewChatMembers) > 0:
		return e.onNewMembers(ctx, u.Message)
	case u.Message != nil && chat != nil && !chat.IsPrivate() && u.Message.IsCommand():
		return e.onCommand(ctx, u.Message)
	}
	return true, nil
}

func (e *Engine) onCallback(q *api.CallbackQuery) {
	if e.hub.dispatch(q) {
		return
	}
	lang := "en"
	if q.Message != nil {
		lang = e.s.GetLanguage(&q.Message.Chat, q.From)
	}
	if _, err := e.s.GetBot().Request(api.NewCallback(q.ID, i18n.Get("This captcha is over", lang))); err != nil {
		e.getLogEntry().WithField("error", err.Error()).Trace("cant answer stale callback")
	}
}

func (e *Engine) onNewMembers(ctx context.Context, msg *api.Message) (bool, error) {
	settings, err := e.s.GetCaptchaSettings(ctx, msg.Chat.ID)
	if err != nil {
		return true, err
	}
	if !settings.Enabled {
		return true, nil
	}

	var users []*api.User
	for i := range msg.NewChatMembers {
		user := &msg.NewChatMembers[i]
		if user.IsBot || e.takeApproved(msg.Chat.ID, user.ID) {
			continue
		}
		users = append(users, user)
	}
	if len(users) == 0 {
		return true, nil
	}

	if settings.AutoRemoveEvents {
		if err := bot.DeleteChatMessage(ctx, e.s.GetBot(), msg.Chat.ID, msg.MessageID); err != nil {
			e.getLogEntry().WithField("error", err.Error()).Debug("cant delete join message")
		}
	}

	b := &batch{
		chat:      msg.Chat,
		threadID:  bot.ChatKeyOf(msg).ThreadID,
		eventTime: time.Unix(int64(msg.Date), 0),
		users:     users,
		settings:  settings,
	}
	if !settings.AutoRemoveEvents {
		b.replyTo = msg.MessageID
	}
	if err := e.spawn(b); err != nil {
		return true, err
	}
	return true, nil
}

func (e *Engine) onJoinRequest(ctx context.Context, req *api.ChatJoinRequest) (bool, error) {
	settings, err := e.s.GetCaptchaSettings(ctx, req.Chat.ID)
	if err != nil {
		return true, err
	}
	if !settings.Enabled || !settings.ReactOnJoinRequest || req.From.IsBot {
		return true, nil
	}
	user := req.From
	b := &batch{
		chat:        req.Chat,
		eventTime:   time.Unix(int64(req.Date), 0),
		users:       []*api.User{&user},
		settings:    settings,
		joinRequest: true,
	}
	if err := e.spawn(b); err != nil {
		return true, err
	}
	return false, nil
}

func (e *Engine) rememberApproved(chatID, userID int64) {
	e.approvedMu.Lock()
	defer e.approvedMu.Unlock()
	now := e.now()
	for key, at := range e.approved {
		if now.Sub(at) > approvedTTL {
			delete(e.approved, key)
		}
	}
	e.approved[approvalKey{chatID: chatID, userID: userID}] = now
}

func (e *Engine) takeApproved(chatID, userID int64) bool {
	e.approvedMu.Lock()
	defer e.approvedMu.Unlock()
	key := approvalKey{chatID: chatID, userID: userID}
	at, ok := e.approved[key]
	if !ok {
		return false
	}
	delete(e.approved, key)
	return e.now().Sub(at) <= approvedTTL
}
