package captcha

import (
	"context"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pborman/uuid"

	"github.com/iamwavecut/ngguard/internal/i18n"
)

// simpleWorker asks the user to press a single button.
type simpleWorker struct {
	*challenge
}

func (w *simpleWorker) Run(ctx context.Context) (Result, error) {
	token := callbackPrefix + uuid.New()
	buttonText := w.cfg.ButtonText
	if buttonText == "" {
		buttonText = i18n.Get("Press me😊", w.lang)
	}
	markup := w.withCancel([][]api.InlineKeyboardButton{
		api.NewInlineKeyboardRow(api.NewInlineKeyboardButtonData(buttonText, token)),
	})
	msg, err := w.present(ctx, w.newMessage(w.text(i18n.N("press this button to pass captcha:")), markup))
	if err != nil {
		return Result{Outcome: OutcomeBlocked}, err
	}

	presses, unsubscribe := w.hub.subscribe(msg.Chat.ID, msg.MessageID)
	defer unsubscribe()
	for {
		q, err := w.await(ctx, presses)
		if err != nil {
			return Result{Outcome: OutcomeFailed}, err
		}
		cancelled, answer := w.screen(ctx, q)
		switch {
		case cancelled:
			return Result{Outcome: OutcomeCancelled, CancelledBy: q.From}, nil
		case answer && q.Data == token:
			w.answer(q, i18n.Get("Ok, thanks", w.lang))
			return Result{Outcome: OutcomePassed}, nil
		case answer:
			w.answer(q, "")
		}
	}
}
