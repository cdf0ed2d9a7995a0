package permissions

import (
	"testing"

	api "github.com/OvyFlash/telegram-bot-api"
)

func TestRolePredicates(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                     string
		member                   *api.ChatMember
		admin, manager, restrict bool
	}{
		{"nil", nil, false, false, false},
		{"member", &api.ChatMember{Status: "member"}, false, false, false},
		{"creator", &api.ChatMember{Status: "creator"}, true, true, true},
		{"plain admin", &api.ChatMember{Status: "administrator"}, true, false, false},
		{"moderator", &api.ChatMember{Status: "administrator", CanRestrictMembers: true}, true, false, true},
		{"manager", &api.ChatMember{Status: "administrator", CanManageChat: true}, true, true, false},
	}
	for _, tc := range cases {
		if got := IsAdmin(tc.member); got != tc.admin {
			t.Fatalf("%s: IsAdmin = %v", tc.name, got)
		}
		if got := IsManager(tc.member); got != tc.manager {
			t.Fatalf("%s: IsManager = %v", tc.name, got)
		}
		if got := CanRestrict(tc.member); got != tc.restrict {
			t.Fatalf("%s: CanRestrict = %v", tc.name, got)
		}
	}
}
