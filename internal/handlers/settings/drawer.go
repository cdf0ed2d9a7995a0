package settings

import (
	"context"
	"strconv"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
)

const (
	// RootID is the data of the button leading back to the list of drawers.
	RootID     = "inline_buttons"
	DefaultKey = "settings"

	cancelData    = "cancel"
	buttonsPerRow = 4
)

type (
	// View is what a drawer renders for: the managed chat, the admin looking at it and their language.
	View struct {
		ChatID int64
		UserID int64
		Key    string
		Lang   string
	}

	// Drawer is one section of the inline settings keyboard. Button data of a drawer must be its ID
	// or start with ID followed by an underscore.
	Drawer interface {
		ID() string
		// Name is an i18n key used as the label of the drawer button.
		Name() string
		// Keys lists the navigation contexts the drawer appears in, empty means all of them.
		Keys() []string
		Draw(ctx context.Context, v View) ([][]api.InlineKeyboardButton, error)
		HandleCallback(ctx context.Context, v View, q *api.CallbackQuery, data string) (Result, error)
	}

	// InputReceiver is implemented by drawers asking the admin for free-form input.
	InputReceiver interface {
		ReceiveInput(ctx context.Context, v View, p Prompt, msg *api.Message) (reply string, done bool, err error)
	}

	Result struct {
		Handled bool
		Redraw  bool
		Toast   string
		Prompt  *Prompt
	}

	// Prompt is a pending question to an admin, answered with their next private message.
	Prompt struct {
		ChatID    int64  `json:"chat_id"`
		DrawerID  string `json:"drawer_id"`
		Field     string `json:"field"`
		Text      string `json:"text"`
		MessageID int    `json:"message_id,omitempty"`
	}
)

// CreateData encodes button data as "<chatId> <data>".
func CreateData(chatID int64, data string) string {
	return strconv.FormatInt(chatID, 10) + " " + data
}

func ExtractChatIDAndData(payload string) (int64, string, bool) {
	idPart, data, ok := strings.Cut(payload, " ")
	if !ok || data == "" {
		return 0, "", false
	}
	chatID, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return chatID, data, true
}

func Button(chatID int64, text, data string) api.InlineKeyboardButton {
	return api.NewInlineKeyboardButtonData(text, CreateData(chatID, data))
}

// Toggle prefixes a label with the state mark.
func Toggle(label string, on bool) string {
	if on {
		return "✅ " + label
	}
	return "❌ " + label
}

// ParseBounded reads an integer from admin input and checks it lies in [min, max].
func ParseBounded(text string, min, max int) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

func ownsData(d Drawer, data string) bool {
	return data == d.ID() || strings.HasPrefix(data, d.ID()+"_")
}

func matchesKey(d Drawer, key string) bool {
	keys := d.Keys()
	if len(keys) == 0 {
		return true
	}
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}
