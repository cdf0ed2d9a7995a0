package admins

import (
	"context"
	"sync"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/iamwavecut/ngguard/internal/bot"
	"github.com/iamwavecut/ngguard/internal/policy/permissions"
)

type (
	Admin struct {
		UserID      int64  `msgpack:"id"`
		FirstName   string `msgpack:"fn,omitempty"`
		LastName    string `msgpack:"ln,omitempty"`
		UserName    string `msgpack:"un,omitempty"`
		IsBot       bool   `msgpack:"bot,omitempty"`
		IsCreator   bool   `msgpack:"creator,omitempty"`
		CanRestrict bool   `msgpack:"restrict,omitempty"`
	}

	// Store keeps admin lists per chat with expiry.
	Store interface {
		Get(ctx context.Context, chatID int64) ([]Admin, bool, error)
		Set(ctx context.Context, chatID int64, admins []Admin, ttl time.Duration) error
		Delete(ctx context.Context, chatID int64) error
	}

	// Cache resolves chat administrators, hitting the Bot API only on misses.
	Cache struct {
		client bot.Client
		store  Store
		ttl    time.Duration
		group  singleflight.Group
	}
)

func NewCache(client bot.Client, store Store, ttl time.Duration) *Cache {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Cache{
		client: client,
		store:  store,
		ttl:    ttl,
	}
}

func (c *Cache) getLogEntry() *log.Entry {
	return log.WithField("component", "admins")
}

func (c *Cache) Admins(ctx context.Context, chatID int64) ([]Admin, error) {
	cached, ok, err := c.store.Get(ctx, chatID)
	if err != nil {
		c.getLogEntry().WithField("error", err.Error()).Warn("cant read admins cache")
	}
	if ok {
		return cached, nil
	}

	res, err, _ := c.group.Do(chatKey(chatID), func() (interface{}, error) {
		members, err := c.client.GetChatAdministrators(api.ChatAdministratorsConfig{
			ChatConfig: api.ChatConfig{ChatID: chatID},
		})
		if err != nil {
			return nil, errors.WithMessage(err, "cant get chat administrators")
		}
		admins := make([]Admin, 0, len(members))
		for i := range members {
			if !permissions.IsAdmin(&members[i]) || members[i].User == nil {
				continue
			}
			admins = append(admins, FromMember(&members[i]))
		}
		if err := c.store.Set(ctx, chatID, admins, c.ttl); err != nil {
			c.getLogEntry().WithField("error", err.Error()).Warn("cant write admins cache")
		}
		return admins, nil
	})
	if err != nil {
		return nil, err
	}
	return res.([]Admin), nil
}

func (c *Cache) IsAdmin(ctx context.Context, chatID int64, userID int64) (bool, error) {
	admins, err := c.Admins(ctx, chatID)
	if err != nil {
		return false, err
	}
	for _, admin := range admins {
		if admin.UserID == userID {
			return true, nil
		}
	}
	return false, nil
}

// IsAdminLive asks the Bot API directly, bypassing the cache.
func (c *Cache) IsAdminLive(ctx context.Context, chatID int64, userID int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	member, err := c.client.GetChatMember(api.GetChatMemberConfig{
		ChatConfigWithUser: api.ChatConfigWithUser{
			ChatConfig: api.ChatConfig{ChatID: chatID},
			UserID:     userID,
		},
	})
	if err != nil {
		return false, errors.WithMessage(err, "cant get chat member")
	}
	return permissions.IsAdmin(&member), nil
}

func (c *Cache) Invalidate(ctx context.Context, chatID int64) error {
	return c.store.Delete(ctx, chatID)
}

// Handle drops cached lists whenever an update changes someone's admin status.
func (c *Cache) Handle(ctx context.Context, u *api.Update, chat *api.Chat, user *api.User) (bool, error) {
	for _, updated := range []*api.ChatMemberUpdated{u.ChatMember, u.MyChatMember} {
		if updated == nil {
			continue
		}
		wasAdmin := permissions.IsAdmin(&updated.OldChatMember)
		isAdmin := permissions.IsAdmin(&updated.NewChatMember)
		if !wasAdmin && !isAdmin {
			continue
		}
		if err := c.Invalidate(ctx, updated.Chat.ID); err != nil {
			c.getLogEntry().WithField("error", err.Error()).Warn("cant invalidate admins cache")
		}
	}
	return true, nil
}

func FromMember(member *api.ChatMember) Admin {
	admin := Admin{
		IsCreator:   member.IsCreator(),
		CanRestrict: permissions.CanRestrict(member),
	}
	if member.User != nil {
		admin.UserID = member.User.ID
		admin.FirstName = member.User.FirstName
		admin.LastName = member.User.LastName
		admin.UserName = member.User.UserName
		admin.IsBot = member.User.IsBot
	}
	return admin
}

// User converts the cached record back into a Bot API user for mentions.
func (a Admin) User() *api.User {
	return &api.User{
		ID:        a.UserID,
		FirstName: a.FirstName,
		LastName:  a.LastName,
		UserName:  a.UserName,
		IsBot:     a.IsBot,
	}
}

type memoryEntry struct {
	admins    []Admin
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.RWMutex
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *memoryStore {
	return &memoryStore{
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (s *memoryStore) Get(_ context.Context, chatID int64) ([]Admin, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[chatID]
	if !ok || s.now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return append([]Admin(nil), entry.admins...), true, nil
}

func (s *memoryStore) Set(_ context.Context, chatID int64, admins []Admin, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[chatID] = memoryEntry{
		admins:    append([]Admin(nil), admins...),
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *memoryStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, chatID)
	return nil
}
