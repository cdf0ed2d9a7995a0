package bot

import (
	"context"
	"errors"
	"testing"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
)

type recordingHandler struct {
	proceed bool
	err     error
	calls   int
	chat    *api.Chat
	user    *api.User
}

func (h *recordingHandler) Handle(_ context.Context, _ *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	h.calls++
	h.chat = chat
	h.user = user
	return h.proceed, h.err
}

func TestUpdateProcessorStopsWhenHandlerDoesNotProceed(t *testing.T) {
	t.Parallel()

	first := &recordingHandler{proceed: false}
	second := &recordingHandler{proceed: true}
	registry := NewRegistry()
	registry.RegisterUpdateHandler("first", first)
	registry.RegisterUpdateHandler("second", second)

	up := NewUpdateProcessor(registry, []string{"first", "missing", "second"}, time.Minute)
	u := &api.Update{Message: &api.Message{Date: int(time.Now().Unix()), Chat: api.Chat{ID: -1}, From: &api.User{ID: 2}}}
	if err := up.Process(context.Background(), u); err != nil {
		t.Fatalf("process: %v", err)
	}
	if first.calls != 1 || second.calls != 0 {
		t.Fatalf("unexpected calls: first=%d second=%d", first.calls, second.calls)
	}
	if first.chat == nil || first.chat.ID != -1 || first.user == nil || first.user.ID != 2 {
		t.Fatalf("chat and user not resolved: %#v %#v", first.chat, first.user)
	}
}

func TestUpdateProcessorSkipsOutdatedUpdates(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{proceed: true}
	registry := NewRegistry()
	registry.RegisterUpdateHandler("h", handler)
	up := NewUpdateProcessor(registry, []string{"h"}, time.Minute)

	u := &api.Update{Message: &api.Message{Date: int(time.Now().Add(-time.Hour).Unix()), Chat: api.Chat{ID: -1}}}
	if err := up.Process(context.Background(), u); err != nil {
		t.Fatalf("process: %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("outdated update reached handler")
	}
}

func TestUpdateProcessorResolvesJoinRequest(t *testing.T) {
	t.Parallel()

	handler := &recordingHandler{proceed: true, err: errors.New("boom")}
	registry := NewRegistry()
	registry.RegisterUpdateHandler("h", handler)

	var observed string
	up := NewUpdateProcessor(registry, []string{"h"}, time.Minute).WithObserver(func(name string, _ time.Time, err error) {
		if err != nil {
			observed = name
		}
	})
	u := &api.Update{ChatJoinRequest: &api.ChatJoinRequest{
		Chat: api.Chat{ID: -100},
		From: api.User{ID: 5},
		Date: int(time.Now().Unix()),
	}}
	if err := up.Process(context.Background(), u); err == nil {
		t.Fatalf("expected handler error to propagate")
	}
	if handler.chat == nil || handler.chat.ID != -100 || handler.user == nil || handler.user.ID != 5 {
		t.Fatalf("join request not resolved: %#v %#v", handler.chat, handler.user)
	}
	if observed != "h" {
		t.Fatalf("observer not called with failing handler, got %q", observed)
	}
}
