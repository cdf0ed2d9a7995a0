// Package bottest provides a recording Bot API client for handler tests.
package bottest

import (
	"sync"

	api "github.com/OvyFlash/telegram-bot-api"
)

type Client struct {
	mu       sync.Mutex
	nextID   int
	sent     []api.Chattable
	messages []api.Message
	requests []api.Chattable

	// Admins maps chat id to its administrators.
	Admins map[int64][]api.ChatMember
	// Members maps chat id and user id to a member record returned by GetChatMember.
	Members map[int64]map[int64]api.ChatMember
	// Permissions maps chat id to its default member permissions.
	Permissions map[int64]*api.ChatPermissions
	// SendErr, when set, decides the error returned for a Send call.
	SendErr func(c api.Chattable) error
	// RequestErr, when set, decides the error returned for a Request call.
	RequestErr func(c api.Chattable) error
	// DiceValue is the value rolled by sendDice.
	DiceValue int
}

func New() *Client {
	return &Client{
		nextID:      100,
		Admins:      map[int64][]api.ChatMember{},
		Members:     map[int64]map[int64]api.ChatMember{},
		Permissions: map[int64]*api.ChatPermissions{},
		DiceValue:   1,
	}
}

func (c *Client) Send(ch api.Chattable) (api.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		if err := c.SendErr(ch); err != nil {
			return api.Message{}, err
		}
	}
	c.sent = append(c.sent, ch)
	c.nextID++
	msg := api.Message{MessageID: c.nextID}
	switch cfg := ch.(type) {
	case api.MessageConfig:
		msg.Chat = api.Chat{ID: cfg.ChatID}
		msg.Text = cfg.Text
		if markup, ok := cfg.ReplyMarkup.(api.InlineKeyboardMarkup); ok {
			msg.ReplyMarkup = &markup
		}
	case api.DiceConfig:
		msg.Chat = api.Chat{ID: cfg.ChatID}
		msg.Dice = &api.Dice{Emoji: cfg.Emoji, Value: c.DiceValue}
	case api.ForwardConfig:
		msg.Chat = api.Chat{ID: cfg.ChatID}
	}
	c.messages = append(c.messages, msg)
	return msg, nil
}

func (c *Client) Request(ch api.Chattable) (*api.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RequestErr != nil {
		if err := c.RequestErr(ch); err != nil {
			return nil, err
		}
	}
	c.requests = append(c.requests, ch)
	return &api.APIResponse{Ok: true}, nil
}

func (c *Client) GetChatMember(config api.GetChatMemberConfig) (api.ChatMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if members, ok := c.Members[config.ChatID]; ok {
		if member, ok := members[config.UserID]; ok {
			return member, nil
		}
	}
	for _, admin := range c.Admins[config.ChatID] {
		if admin.User != nil && admin.User.ID == config.UserID {
			return admin, nil
		}
	}
	return api.ChatMember{User: &api.User{ID: config.UserID}, Status: "member"}, nil
}

func (c *Client) GetChatAdministrators(config api.ChatAdministratorsConfig) ([]api.ChatMember, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.ChatMember(nil), c.Admins[config.ChatID]...), nil
}

func (c *Client) GetChat(config api.ChatInfoConfig) (api.ChatFullInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info := api.ChatFullInfo{}
	info.ID = config.ChatID
	info.Permissions = c.Permissions[config.ChatID]
	return info, nil
}

// AddAdmin registers user as an administrator of chat.
func (c *Client) AddAdmin(chatID int64, user api.User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u := user
	c.Admins[chatID] = append(c.Admins[chatID], api.ChatMember{User: &u, Status: "administrator"})
}

func (c *Client) Sent() []api.Chattable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Chattable(nil), c.sent...)
}

// Messages returns what Send answered, in order.
func (c *Client) Messages() []api.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Message(nil), c.messages...)
}

func (c *Client) Requests() []api.Chattable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Chattable(nil), c.requests...)
}

// Texts returns the text of every sent or edited message, in order.
func (c *Client) Texts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var texts []string
	for _, ch := range append(append([]api.Chattable(nil), c.sent...), c.requests...) {
		switch cfg := ch.(type) {
		case api.MessageConfig:
			texts = append(texts, cfg.Text)
		case api.EditMessageTextConfig:
			texts = append(texts, cfg.Text)
		}
	}
	return texts
}

// Bans returns the ids banned through banChatMember.
func (c *Client) Bans() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ids []int64
	for _, ch := range c.requests {
		if cfg, ok := ch.(api.BanChatMemberConfig); ok {
			ids = append(ids, cfg.UserID)
		}
		if cfg, ok := ch.(api.BanChatSenderChatConfig); ok {
			ids = append(ids, cfg.SenderChatID)
		}
	}
	return ids
}

// CallbackAnswers returns texts of answered callback queries.
func (c *Client) CallbackAnswers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var texts []string
	for _, ch := range c.requests {
		if cfg, ok := ch.(api.CallbackConfig); ok {
			texts = append(texts, cfg.Text)
		}
	}
	return texts
}

// CountRequests counts requests matching the predicate.
func (c *Client) CountRequests(match func(api.Chattable) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ch := range c.requests {
		if match(ch) {
			n++
		}
	}
	return n
}
