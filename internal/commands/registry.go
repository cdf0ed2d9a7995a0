// Package commands keeps the command menus of the bot in sync with what the handlers declare.
package commands

import (
	"context"
	"sort"
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/i18n"
)

type Scope string

const (
	ScopeDefault               Scope = "default"
	ScopeAllGroupChats         Scope = "all_group_chats"
	ScopeAllChatAdministrators Scope = "all_chat_administrators"
	ScopeAllPrivateChats       Scope = "all_private_chats"
)

type (
	// Command is a menu entry. Description is an i18n key.
	Command struct {
		Name        string
		Description string
		Scope       Scope
	}

	// Declarer is implemented by handlers owning commands.
	Declarer interface {
		Commands() []Command
	}

	groupKey struct {
		scope Scope
		lang  string
	}

	Registry struct {
		client    bot.Client
		languages []string

		mu       sync.Mutex
		commands []Command
	}
)

// NewRegistry creates a registry publishing menus in the default language and in every extra one.
func NewRegistry(client bot.Client, languages ...string) *Registry {
	return &Registry{
		client:    client,
		languages: languages,
	}
}

func (r *Registry) getLogEntry() *log.Entry {
	return log.WithField("component", "commands")
}

func (r *Registry) Declare(declarers ...Declarer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range declarers {
		r.commands = append(r.commands, d.Commands()...)
	}
}

// groups returns the menus to publish. Administrators get the group commands as well, since their
// scope hides the group one.
func (r *Registry) groups() map[groupKey][]api.BotCommand {
	r.mu.Lock()
	defer r.mu.Unlock()

	byScope := map[Scope][]Command{}
	seen := map[Scope]map[string]bool{}
	add := func(scope Scope, cmd Command) {
		if seen[scope] == nil {
			seen[scope] = map[string]bool{}
		}
		if seen[scope][cmd.Name] {
			return
		}
		seen[scope][cmd.Name] = true
		byScope[scope] = append(byScope[scope], cmd)
	}
	for _, cmd := range r.commands {
		add(cmd.Scope, cmd)
	}
	for _, cmd := range r.commands {
		if cmd.Scope == ScopeAllGroupChats {
			add(ScopeAllChatAdministrators, cmd)
		}
	}

	groups := map[groupKey][]api.BotCommand{}
	for scope, cmds := range byScope {
		for _, lang := range append([]string{""}, r.languages...) {
			key := groupKey{scope: scope, lang: lang}
			for _, cmd := range cmds {
				groups[key] = append(groups[key], api.BotCommand{
					Command:     cmd.Name,
					Description: i18n.Get(cmd.Description, lang),
				})
			}
		}
	}
	return groups
}

// Start publishes every menu once.
func (r *Registry) Start(ctx context.Context) error {
	groups := r.groups()
	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].scope != keys[j].scope {
			return keys[i].scope < keys[j].scope
		}
		return keys[i].lang < keys[j].lang
	})

	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := api.NewSetMyCommandsWithScopeAndLanguage(botScope(key.scope), key.lang, groups[key]...)
		if _, err := r.client.Request(cfg); err != nil {
			return errors.WithMessagef(err, "cant set commands for %s/%s", key.scope, key.lang)
		}
		r.getLogEntry().WithField("scope", key.scope).WithField("lang", key.lang).WithField("count", len(groups[key])).Debug("commands set")
	}
	return nil
}

func (r *Registry) Stop(context.Context) error {
	return nil
}

func botScope(scope Scope) api.BotCommandScope {
	switch scope {
	case ScopeAllGroupChats:
		return api.NewBotCommandScopeAllGroupChats()
	case ScopeAllChatAdministrators:
		return api.NewBotCommandScopeAllChatAdministrators()
	case ScopeAllPrivateChats:
		return api.NewBotCommandScopeAllPrivateChats()
	default:
		return api.NewBotCommandScopeDefault()
	}
}
