package captcha

import (
	"context"
	"fmt"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/cas"
	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/event"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	reasonTimeout  = "timeout"
	reasonCAS      = "cas"
	reasonKnown    = "known"
	reasonShutdown = "shutdown"
)

// batch is the set of users brought by one event.
type batch struct {
	chat        api.Chat
	threadID    int
	replyTo     int
	eventTime   time.Time
	users       []*api.User
	settings    *db.CaptchaSettings
	joinRequest bool
}

func (b *batch) deadline() time.Time {
	return b.eventTime.Add(time.Duration(b.settings.Provider.CheckTimeSeconds) * time.Second)
}

func (e *Engine) runBatch(ctx context.Context, b *batch) {
	entry := e.getLogEntry().WithField("chat_id", b.chat.ID)
	lang := e.s.GetLanguage(&b.chat, nil)

	if !b.joinRequest {
		for _, user := range b.users {
			if err := bot.RestrictChatting(ctx, e.s.GetBot(), user.ID, b.chat.ID); err != nil {
				entry.WithField("error", err.Error()).WithField("user_id", user.ID).Warn("cant restrict new member")
			}
		}
	}

	users := e.screenCAS(ctx, b, lang)
	users = e.passKnown(ctx, b, users, lang)
	if len(users) == 0 {
		return
	}

	g := errgroup.Group{}
	g.SetLimit(e.opts.MaxConcurrent)
	for _, user := range users {
		user := user
		g.Go(func() error {
			e.challengeUser(ctx, b, user)
			return nil
		})
	}
	_ = g.Wait()
}

// screenCAS removes users listed in CAS from the batch. Lookup errors let the user through.
func (e *Engine) screenCAS(ctx context.Context, b *batch, lang string) []*api.User {
	if !b.settings.CASEnabled || e.cas == nil {
		return b.users
	}
	banned := make([]bool, len(b.users))
	g := errgroup.Group{}
	g.SetLimit(e.opts.MaxConcurrent)
	for i, user := range b.users {
		i, user := i, user
		g.Go(func() error {
			isBanned, err := e.cas.IsBanned(ctx, user.ID)
			if err != nil {
				e.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Warn("cas lookup failed")
				return nil
			}
			banned[i] = isBanned
			return nil
		})
	}
	_ = g.Wait()

	var rest []*api.User
	for i, user := range b.users {
		if !banned[i] {
			rest = append(rest, user)
			continue
		}
		notice := fmt.Sprintf(
			i18n.Get("User %s is banned in %s", lang),
			bot.Mention(user),
			fmt.Sprintf(`<a href="`+cas.CASQueryURLTemplate+`">CAS System</a>`, user.ID),
		)
		e.notify(ctx, b.chat.ID, b.threadID, notice)
		switch {
		case b.joinRequest:
			if err := bot.DeclineJoinRequest(ctx, e.s.GetBot(), user.ID, b.chat.ID); err != nil {
				e.getLogEntry().WithField("error", err.Error()).Warn("cant decline cas banned request")
			}
		case b.settings.KickOnUnsuccess:
			if err := bot.BanUserFromChat(ctx, e.s.GetBot(), user.ID, b.chat.ID, 0); err != nil {
				e.getLogEntry().WithField("error", err.Error()).Warn("cant kick cas banned user")
			}
		}
		e.publish(b, user, event.TypeCaptchaSkipped, OutcomeFailed, reasonCAS)
	}
	return rest
}

// passKnown lets through users who already passed a captcha at least as hard as the current one.
func (e *Engine) passKnown(ctx context.Context, b *batch, users []*api.User, lang string) []*api.User {
	if !b.settings.AutoPassKnown {
		return users
	}
	threshold := int64(ComplexityOf(b.settings.Provider))
	var rest []*api.User
	for _, user := range users {
		passed, err := e.s.GetDB().HasPassed(ctx, user.ID, threshold)
		if err != nil {
			e.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Warn("cant check pass cache")
		}
		if !passed {
			rest = append(rest, user)
			continue
		}
		e.admit(ctx, b, user)
		e.notify(ctx, b.chat.ID, b.threadID, fmt.Sprintf(i18n.Get("%s has already passed captcha, welcome", lang), bot.Mention(user)))
		e.publish(b, user, event.TypeCaptchaSkipped, OutcomePassed, reasonKnown)
	}
	return rest
}

func (e *Engine) challengeUser(ctx context.Context, b *batch, user *api.User) {
	ctx, span := e.tracer.Start(ctx, "captcha.challenge")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("chat_id", b.chat.ID),
		attribute.Int64("user_id", user.ID),
		attribute.String("provider", string(b.settings.Provider.Kind)),
		attribute.Bool("join_request", b.joinRequest),
	)

	c := &challenge{
		client:      e.s.GetBot(),
		hub:         e.hub,
		admins:      e.admins,
		chatID:      b.chat.ID,
		threadID:    b.threadID,
		groupID:     b.chat.ID,
		replyTo:     b.replyTo,
		user:        user,
		lang:        e.s.GetLanguage(&b.chat, user),
		cfg:         b.settings.Provider,
		cancellable: !b.joinRequest,
	}
	if b.joinRequest {
		c.chatID = user.ID
		c.threadID = 0
		c.replyTo = 0
	}
	w := newWorker(c)

	res, timedOut, err := race(ctx, b.deadline(), w)
	if err != nil {
		span.RecordError(err)
		c.getLogEntry().WithField("error", err.Error()).WithField("outcome", res.Outcome.String()).Warn("challenge error")
	}
	// challenges interrupted by shutdown are cancelled
	if ctx.Err() != nil && !timedOut && (res.Outcome == OutcomeFailed || res.Outcome == OutcomeBlocked) {
		res = Result{Outcome: OutcomeCancelled}
	}

	// outcomes are applied even when the engine is stopping
	applyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	w.Close(applyCtx)

	reason := ""
	switch {
	case timedOut:
		reason = reasonTimeout
	case ctx.Err() != nil:
		reason = reasonShutdown
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()), attribute.String("reason", reason))
	if res.Outcome == OutcomeBlocked {
		span.SetStatus(codes.Error, "user unreachable")
	}
	e.resolve(applyCtx, b, c, res, reason)
}

// resolve enforces the outcome. Notices go to the group, also for challenges held in private.
func (e *Engine) resolve(ctx context.Context, b *batch, c *challenge, res Result, reason string) {
	user := c.user
	complexity := int64(ComplexityOf(b.settings.Provider))
	entry := c.getLogEntry().WithField("outcome", res.Outcome.String())

	switch res.Outcome {
	case OutcomePassed:
		e.record(ctx, b, user, true, complexity)
		e.admit(ctx, b, user)
	case OutcomeFailed:
		e.record(ctx, b, user, false, complexity)
		e.notify(ctx, b.chat.ID, b.threadID, fmt.Sprintf(i18n.Get("User %s didn't pass captcha", c.lang), bot.Mention(user)))
		switch {
		case b.joinRequest:
			if err := bot.DeclineJoinRequest(ctx, e.s.GetBot(), user.ID, b.chat.ID); err != nil {
				entry.WithField("error", err.Error()).Warn("cant decline join request")
			}
		case b.settings.KickOnUnsuccess:
			if err := bot.BanUserFromChat(ctx, e.s.GetBot(), user.ID, b.chat.ID, 0); err != nil {
				entry.WithField("error", err.Error()).Warn("cant kick user")
				e.notify(ctx, b.chat.ID, b.threadID, fmt.Sprintf(i18n.Get("Can't kick %s, check my admin rights", c.lang), bot.Mention(user)))
			}
		}
	case OutcomeBlocked:
		e.notify(ctx, b.chat.ID, b.threadID, fmt.Sprintf(i18n.Get("Can't reach %s to check them, admins please do it manually", c.lang), bot.Mention(user)))
	case OutcomeCancelled:
		e.admit(ctx, b, user)
		if res.CancelledBy != nil {
			e.notify(ctx, b.chat.ID, b.threadID, fmt.Sprintf(i18n.Get("%s cancelled captcha for %s", c.lang), bot.Mention(res.CancelledBy), bot.Mention(user)))
		}
	}
	entry.WithField("reason", reason).Debug("challenge resolved")
	e.publish(b, user, event.TypeCaptchaResolved, res.Outcome, reason)
}

// admit lets the user in: the join request is approved or the restriction is lifted.
func (e *Engine) admit(ctx context.Context, b *batch, user *api.User) {
	client := e.s.GetBot()
	if b.joinRequest {
		if err := bot.ApproveJoinRequest(ctx, client, user.ID, b.chat.ID); err != nil {
			e.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Warn("cant approve join request")
			return
		}
		e.rememberApproved(b.chat.ID, user.ID)
		return
	}
	permissions := bot.ChatDefaultPermissions(ctx, client, b.chat.ID)
	if err := bot.UnrestrictChatting(ctx, client, user.ID, b.chat.ID, permissions); err != nil {
		e.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Warn("cant lift restriction")
	}
}

func (e *Engine) record(ctx context.Context, b *batch, user *api.User, passed bool, complexity int64) {
	err := e.s.GetDB().SetPassRecord(ctx, &db.PassRecord{
		UserID:     user.ID,
		ChatID:     b.chat.ID,
		Passed:     passed,
		Complexity: complexity,
	})
	if err != nil {
		e.getLogEntry().WithField("error", err.Error()).WithField("user_id", user.ID).Error("cant record captcha pass")
	}
}

func (e *Engine) notify(ctx context.Context, chatID int64, threadID int, text string) {
	if _, err := bot.SendHTML(ctx, e.s.GetBot(), chatID, threadID, text); err != nil {
		e.getLogEntry().WithField("error", err.Error()).WithField("chat_id", chatID).Debug("cant notify")
	}
}

func (e *Engine) publish(b *batch, user *api.User, eventType string, outcome Outcome, reason string) {
	e.events.Publish(event.Event{
		Type:     eventType,
		ChatID:   b.chat.ID,
		ThreadID: b.threadID,
		UserID:   user.ID,
		Outcome:  outcome.String(),
		Reason:   reason,
		Provider: string(b.settings.Provider.Kind),
		At:       e.now(),
	})
}
