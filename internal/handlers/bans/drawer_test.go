package bans

import (
	"context"
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"

	"github.com/iamwavecut/ngguard/internal/db"
	"github.com/iamwavecut/ngguard/internal/handlers/settings"
)

func TestWorkModeToggles(t *testing.T) {
	t.Parallel()

	users := map[db.WorkMode]db.WorkMode{
		db.WorkModeDisabled:         db.WorkModeEnabledForUsers,
		db.WorkModeEnabled:          db.WorkModeEnabledForAdmins,
		db.WorkModeEnabledForAdmins: db.WorkModeEnabled,
		db.WorkModeEnabledForUsers:  db.WorkModeDisabled,
	}
	admins := map[db.WorkMode]db.WorkMode{
		db.WorkModeDisabled:         db.WorkModeEnabledForAdmins,
		db.WorkModeEnabled:          db.WorkModeEnabledForUsers,
		db.WorkModeEnabledForAdmins: db.WorkModeDisabled,
		db.WorkModeEnabledForUsers:  db.WorkModeEnabled,
	}
	for from, want := range users {
		if got := toggleUsers(from); got != want {
			t.Fatalf("users toggle of %s: got %s, want %s", from, got, want)
		}
	}
	for from, want := range admins {
		if got := toggleAdmins(from); got != want {
			t.Fatalf("admins toggle of %s: got %s, want %s", from, got, want)
		}
	}
}

func TestDrawerTogglesAndPrompts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	d := NewDrawer(f.s)
	v := settings.View{ChatID: testChatID, UserID: f.admin.ID, Key: settings.DefaultKey}

	res, err := d.HandleCallback(ctx, v, &api.CallbackQuery{}, dataAdminToggle)
	if err != nil || !res.Handled || !res.Redraw {
		t.Fatalf("unexpected result %+v %v", res, err)
	}
	s, _ := f.s.GetBanSettings(ctx, db.ChatKey{ChatID: testChatID})
	if s.WorkMode != db.WorkModeEnabledForUsers {
		t.Fatalf("unexpected mode %s", s.WorkMode)
	}

	rows, err := d.Draw(ctx, v)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if rows[0][0].Text != "✅ Users can warn" || rows[0][1].Text != "❌ Admins can warn" {
		t.Fatalf("unexpected labels %q %q", rows[0][0].Text, rows[0][1].Text)
	}

	res, err = d.HandleCallback(ctx, v, &api.CallbackQuery{}, dataWarns)
	if err != nil || res.Prompt == nil || res.Prompt.Field != dataWarns {
		t.Fatalf("expected prompt, got %+v %v", res, err)
	}

	reply, done, err := d.ReceiveInput(ctx, v, *res.Prompt, &api.Message{Text: "500"})
	if err != nil || done || reply == "" {
		t.Fatalf("out of range input must be asked again: %q %v %v", reply, done, err)
	}
	reply, done, err = d.ReceiveInput(ctx, v, *res.Prompt, &api.Message{Text: " 4 "})
	if err != nil || !done || reply != "Warnings until ban set to 4" {
		t.Fatalf("unexpected input result %q %v %v", reply, done, err)
	}
	s, _ = f.s.GetBanSettings(ctx, db.ChatKey{ChatID: testChatID})
	if s.WarningsUntilBan != 4 {
		t.Fatalf("threshold not stored, got %d", s.WarningsUntilBan)
	}
}
