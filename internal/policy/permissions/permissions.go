package permissions

import api "github.com/OvyFlash/telegram-bot-api"

// IsAdmin reports whether the member is the chat creator or an administrator.
func IsAdmin(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	return member.IsCreator() || member.IsAdministrator()
}

func IsManager(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && (member.CanManageChat || member.CanPromoteMembers)
}

// CanRestrict reports whether the member may mute, kick or ban others.
func CanRestrict(member *api.ChatMember) bool {
	if member == nil {
		return false
	}
	if member.IsCreator() {
		return true
	}
	return member.IsAdministrator() && member.CanRestrictMembers
}
