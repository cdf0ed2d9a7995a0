package captcha

import (
	"context"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"

	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	slotMachineEmoji = "🎰"
	reelsCount       = 3
	reelDataKind     = "reel"
)

var reelImages = []string{"BAR", "🍇", "🍋", "7️⃣"}

// slotMachineWorker rolls the slot machine dice and asks the user to repeat the reels in order.
type slotMachineWorker struct {
	*challenge
}

// reelsOf decodes a slot machine dice value in [1, 64] to the reel image indexes, left to right.
func reelsOf(value int) [reelsCount]int {
	if value < 1 || value > 64 {
		value = 1
	}
	v := value - 1
	return [reelsCount]int{v & 3, (v >> 2) & 3, (v >> 4) & 3}
}

func slotMachineRows() [][]api.InlineKeyboardButton {
	var rows [][]api.InlineKeyboardButton
	for i := 0; i < len(reelImages); i += 2 {
		rows = append(rows, api.NewInlineKeyboardRow(
			api.NewInlineKeyboardButtonData(reelImages[i], answerData(reelDataKind, i)),
			api.NewInlineKeyboardButtonData(reelImages[i+1], answerData(reelDataKind, i+1)),
		))
	}
	return rows
}

func (w *slotMachineWorker) Run(ctx context.Context) (Result, error) {
	base := w.text(i18n.N("solve this captcha:"))
	textMsg, err := w.present(ctx, w.newMessage(base+" "+progress(nil, reelsCount), api.InlineKeyboardMarkup{}))
	if err != nil {
		return Result{Outcome: OutcomeBlocked}, err
	}

	dice := api.NewDiceWithEmoji(w.chatID, slotMachineEmoji)
	dice.MessageThreadID = w.threadID
	dice.ReplyParameters.MessageID = textMsg.MessageID
	dice.ReplyParameters.AllowSendingWithoutReply = true
	dice.ReplyMarkup = w.withCancel(slotMachineRows())
	diceMsg, err := w.present(ctx, dice)
	if err != nil {
		return Result{Outcome: OutcomeBlocked}, err
	}
	if diceMsg.Dice == nil {
		return Result{Outcome: OutcomeBlocked}, errors.New("dice without value")
	}
	reels := reelsOf(diceMsg.Dice.Value)

	presses, unsubscribe := w.hub.subscribe(diceMsg.Chat.ID, diceMsg.MessageID)
	defer unsubscribe()
	var clicked []string
	for len(clicked) < reelsCount {
		q, err := w.await(ctx, presses)
		if err != nil {
			return Result{Outcome: OutcomeFailed}, err
		}
		cancelled, answer := w.screen(ctx, q)
		if cancelled {
			return Result{Outcome: OutcomeCancelled, CancelledBy: q.From}, nil
		}
		if !answer {
			continue
		}
		expected := reels[len(clicked)]
		if pressedReel(q.Data) != expected {
			w.answer(q, i18n.Get("Nope", w.lang))
			continue
		}
		clicked = append(clicked, reelImages[expected])
		w.answer(q, i18n.Get("Ok, next one", w.lang))
		w.edit(textMsg.MessageID, base+" "+progress(clicked, reelsCount-len(clicked)))
	}
	return Result{Outcome: OutcomePassed}, nil
}

func pressedReel(data string) int {
	value, ok := strings.CutPrefix(data, callbackPrefix+reelDataKind+":")
	if !ok {
		return -1
	}
	idx, err := strconv.Atoi(value)
	if err != nil {
		return -1
	}
	return idx
}
