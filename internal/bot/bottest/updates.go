package bottest

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

var lastID atomic.Int64

func nextID() int {
	return int(lastID.Add(1) + 1000)
}

// Message builds a fresh message in chat from user. A leading /command is marked as a bot command.
func Message(chat api.Chat, from *api.User, text string) *api.Message {
	msg := &api.Message{
		MessageID: nextID(),
		Chat:      chat,
		From:      from,
		Text:      text,
		Date:      int(time.Now().Unix()),
	}
	if strings.HasPrefix(text, "/") {
		command, _, _ := strings.Cut(text, " ")
		msg.Entities = []api.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(command)}}
	}
	return msg
}

// Reply builds a message answering to.
func Reply(to *api.Message, from *api.User, text string) *api.Message {
	msg := Message(to.Chat, from, text)
	msg.ReplyToMessage = to
	return msg
}

func Group(id int64) api.Chat {
	return api.Chat{ID: id, Type: "supergroup", Title: "Test group"}
}

func Private(id int64) api.Chat {
	return api.Chat{ID: id, Type: "private"}
}

// Callback builds a button press on msg.
func Callback(msg *api.Message, from *api.User, data string) *api.CallbackQuery {
	return &api.CallbackQuery{
		ID:      "cb" + strconv.Itoa(nextID()),
		From:    from,
		Message: msg,
		Data:    data,
	}
}
