package bot

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultUpdateTimeout = 5 * time.Minute
	tracerName           = "github.com/iamwavecut/ngguard/internal/bot"
)

type (
	UpdateProcessor struct {
		updateHandlers []namedHandler
		updateTimeout  time.Duration
		observe        func(handler string, started time.Time, err error)
	}

	namedHandler struct {
		name    string
		handler Handler
	}

	Registry struct {
		mu       sync.Mutex
		handlers map[string]Handler
	}
)

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

func (r *Registry) RegisterUpdateHandler(title string, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[title] = handler
}

// NewUpdateProcessor chains the enabled handlers in the order they are listed.
func NewUpdateProcessor(registry *Registry, enabled []string, updateTimeout time.Duration) *UpdateProcessor {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	enabledHandlers := make([]namedHandler, 0, len(enabled))
	for _, handlerName := range enabled {
		handler, ok := registry.handlers[handlerName]
		if !ok || handler == nil {
			log.Warnf("no registered handler: %s", handlerName)
			continue
		}
		enabledHandlers = append(enabledHandlers, namedHandler{name: handlerName, handler: handler})
	}
	if updateTimeout <= 0 {
		updateTimeout = DefaultUpdateTimeout
	}

	return &UpdateProcessor{
		updateHandlers: enabledHandlers,
		updateTimeout:  updateTimeout,
	}
}

// WithObserver sets a hook called after each handler invocation, used for metrics.
func (up *UpdateProcessor) WithObserver(observe func(handler string, started time.Time, err error)) *UpdateProcessor {
	up.observe = observe
	return up
}

func (up *UpdateProcessor) Process(ctx context.Context, u *api.Update) error {
	if u == nil {
		return errors.New("update is nil")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	updateTime := UpdateTime(u)
	if time.Since(updateTime) > up.updateTimeout {
		log.WithFields(log.Fields{
			"update_time": updateTime,
			"age":         time.Since(updateTime).String(),
		}).Debug("skipping outdated update")
		return nil
	}

	chat, user := ResolveChatAndUser(u)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "update.process")
	defer span.End()
	span.SetAttributes(attribute.Int("update_id", u.UpdateID))
	if chat != nil {
		span.SetAttributes(attribute.Int64("chat_id", chat.ID))
	}

	for _, nh := range up.updateHandlers {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		started := time.Now()
		proceed, err := nh.handler.Handle(ctx, u, chat, user)
		if up.observe != nil {
			up.observe(nh.name, started, err)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, nh.name)
			return errors.WithMessagef(err, "handler %s", nh.name)
		}
		if !proceed {
			span.SetAttributes(attribute.String("handled_by", nh.name))
			log.WithField("handler", nh.name).Trace("not proceeding")
			return nil
		}
	}
	return nil
}

func UpdateTime(u *api.Update) time.Time {
	switch {
	case u.Message != nil:
		return time.Unix(int64(u.Message.Date), 0)
	case u.EditedMessage != nil:
		return time.Unix(int64(u.EditedMessage.Date), 0)
	case u.ChatJoinRequest != nil:
		return time.Unix(int64(u.ChatJoinRequest.Date), 0)
	case u.ChatMember != nil:
		return time.Unix(int64(u.ChatMember.Date), 0)
	case u.MyChatMember != nil:
		return time.Unix(int64(u.MyChatMember.Date), 0)
	default:
		return time.Now()
	}
}

func ResolveChatAndUser(u *api.Update) (*api.Chat, *api.User) {
	chat := u.FromChat()
	if chat == nil {
		switch {
		case u.ChatJoinRequest != nil:
			chat = &u.ChatJoinRequest.Chat
		case u.MyChatMember != nil:
			chat = &u.MyChatMember.Chat
		case u.ChatMember != nil:
			chat = &u.ChatMember.Chat
		}
	}

	user := u.SentFrom()
	if user == nil {
		switch {
		case u.ChatJoinRequest != nil:
			user = &u.ChatJoinRequest.From
		case u.MyChatMember != nil:
			user = &u.MyChatMember.From
		case u.ChatMember != nil:
			user = &u.ChatMember.From
		}
	}
	return chat, user
}

func GetUpdatesChans(ctx context.Context, bot *api.BotAPI, config api.UpdateConfig) (api.UpdatesChannel, chan error) {
	ch := make(chan api.Update, bot.Buffer)
	chErr := make(chan error, 1)

	go func() {
		defer close(ch)
		defer close(chErr)
		for {
			select {
			case <-ctx.Done():
				chErr <- ctx.Err()
				return
			default:
				updates, err := bot.GetUpdates(config)
				if err != nil {
					chErr <- err
					return
				}

				for _, update := range updates {
					if update.UpdateID >= config.Offset {
						config.Offset = update.UpdateID + 1
						select {
						case ch <- update:
						case <-ctx.Done():
							chErr <- ctx.Err()
							return
						}
					}
				}
			}
		}
	}()

	return ch, chErr
}
