package bans

import (
	"github.com/iamwavecut/ngguard/internal/commands"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

func (b *Bans) Commands() []commands.Command {
	return []commands.Command{
		{Name: cmdWarn, Description: i18n.N("Warn the replied user"), Scope: commands.ScopeAllGroupChats},
		{Name: cmdCountWarns, Description: i18n.N("Show warnings of the replied user or yours"), Scope: commands.ScopeAllGroupChats},
		{Name: cmdUnwarn, Description: i18n.N("Remove the last warning of the replied user"), Scope: commands.ScopeAllChatAdministrators},
		{Name: cmdSetWarnsCount, Description: i18n.N("Set the number of warnings until ban"), Scope: commands.ScopeAllChatAdministrators},
		{Name: cmdBan, Description: i18n.N("Ban the replied user"), Scope: commands.ScopeAllChatAdministrators},
		{Name: cmdEnableBanPlugin, Description: i18n.N("Enable the ban plugin"), Scope: commands.ScopeAllChatAdministrators},
		{Name: cmdDisablePlugin, Description: i18n.N("Disable the ban plugin"), Scope: commands.ScopeAllChatAdministrators},
	}
}
