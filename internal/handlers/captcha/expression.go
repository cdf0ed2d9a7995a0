package captcha

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/iamwavecut/tool"

	"github.com/iamwavecut/ngguard/internal/i18n"
)

const (
	answerDataKind = "ans"
	answersPerRow  = 3
)

type expression struct {
	text   string
	result int
}

// newExpression builds an addition/subtraction chain of operations+1 numbers in [0, max].
func newExpression(max, operations int) expression {
	current := tool.RandInt(0, max)
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(current))
	for i := 0; i < operations; i++ {
		operand := tool.RandInt(0, max)
		if tool.RandInt(0, 1) == 0 {
			current += operand
			sb.WriteString(" + ")
		} else {
			current -= operand
			sb.WriteString(" - ")
		}
		sb.WriteString(strconv.Itoa(operand))
	}
	return expression{text: sb.String(), result: current}
}

// answerOptions returns count distinct values containing result at a random position.
func answerOptions(result, count, max, operations int) []int {
	if count < 2 {
		count = 2
	}
	seen := map[int]bool{result: true}
	decoys := make([]int, 0, count-1)
	for tries := 0; len(decoys) < count-1 && tries < count*20; tries++ {
		candidate := newExpression(max, operations).result
		if seen[candidate] {
			continue
		}
		seen[candidate] = true
		decoys = append(decoys, candidate)
	}
	for offset := 1; len(decoys) < count-1; offset++ {
		for _, candidate := range []int{result + offset, result - offset} {
			if !seen[candidate] && len(decoys) < count-1 {
				seen[candidate] = true
				decoys = append(decoys, candidate)
			}
		}
	}

	pos := tool.RandInt(0, len(decoys))
	options := make([]int, 0, count)
	options = append(options, decoys[:pos]...)
	options = append(options, result)
	return append(options, decoys[pos:]...)
}

// expressionWorker asks to pick the value of an arithmetic expression among decoys, with a limited
// number of attempts.
type expressionWorker struct {
	*challenge
	expr expression
}

func (w *expressionWorker) Run(ctx context.Context) (Result, error) {
	w.expr = newExpression(w.cfg.MaxPerNumber, w.cfg.Operations)
	options := answerOptions(w.expr.result, w.cfg.Answers, w.cfg.MaxPerNumber, w.cfg.Operations)

	var rows [][]api.InlineKeyboardButton
	for i := 0; i < len(options); i += answersPerRow {
		var row []api.InlineKeyboardButton
		for _, option := range options[i:min(i+answersPerRow, len(options))] {
			row = append(row, api.NewInlineKeyboardButtonData(strconv.Itoa(option), answerData(answerDataKind, option)))
		}
		rows = append(rows, row)
	}
	text := w.text(i18n.N("solve next captcha:")) + " <b>" + w.expr.text + "</b>"
	msg, err := w.present(ctx, w.newMessage(text, w.withCancel(rows)))
	if err != nil {
		return Result{Outcome: OutcomeBlocked}, err
	}

	correct := answerData(answerDataKind, w.expr.result)
	attemptsLeft := w.cfg.Attempts
	if attemptsLeft < 1 {
		attemptsLeft = 1
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
		case !answer:
			continue
		case q.Data == correct:
			w.answer(q, i18n.Get("Ok, thanks", w.lang))
			return Result{Outcome: OutcomePassed}, nil
		}
		attemptsLeft--
		if attemptsLeft <= 0 {
			w.answer(q, i18n.Get("Nope", w.lang))
			return Result{Outcome: OutcomeFailed}, nil
		}
		w.answer(q, fmt.Sprintf(i18n.Get("Nope, left retries: %d", w.lang), attemptsLeft))
	}
}
