package captcha

import (
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
)

const hubBuffer = 16

type hubKey struct {
	chatID    int64
	messageID int
}

// hub routes button presses to the challenge owning the pressed message.
type hub struct {
	mu   sync.Mutex
	subs map[hubKey]chan *api.CallbackQuery
}

func newHub() *hub {
	return &hub{subs: map[hubKey]chan *api.CallbackQuery{}}
}

func (h *hub) subscribe(chatID int64, messageID int) (<-chan *api.CallbackQuery, func()) {
	key := hubKey{chatID: chatID, messageID: messageID}
	ch := make(chan *api.CallbackQuery, hubBuffer)
	h.mu.Lock()
	h.subs[key] = ch
	h.mu.Unlock()
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.subs[key] == ch {
			delete(h.subs, key)
		}
	}
}

// dispatch never blocks: presses beyond the buffer of a busy challenge are dropped.
func (h *hub) dispatch(q *api.CallbackQuery) bool {
	if q == nil || q.Message == nil {
		return false
	}
	h.mu.Lock()
	ch, ok := h.subs[hubKey{chatID: q.Message.Chat.ID, messageID: q.Message.MessageID}]
	h.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- q:
		return true
	default:
		return false
	}
}

func (h *hub) subscribed(chatID int64, messageID int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.subs[hubKey{chatID: chatID, messageID: messageID}]
	return ok
}
