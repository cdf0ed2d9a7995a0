package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	api "github.com/OvyFlash/telegram-bot-api"
	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/iamwavecut/ngguard/internal/db"
)

// ErrUnreachable marks a user the bot cannot write to, typically because they blocked it.
var ErrUnreachable = errors.New("user is unreachable")

func DeleteChatMessage(ctx context.Context, bot Client, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
			return err
		}
		return nil
	}
}

// DeleteChatMessageAfter removes a message once the delay elapses, detached from the caller's context.
func DeleteChatMessageAfter(bot Client, chatID int64, messageID int, delay time.Duration) {
	time.AfterFunc(delay, func() {
		if err := DeleteChatMessage(context.Background(), bot, chatID, messageID); err != nil {
			log.WithField("error", err.Error()).Debug("cant delete delayed message")
		}
	})
}

func BanUserFromChat(ctx context.Context, bot Client, userID int64, chatID int64, untilUnix int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.BanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate:      untilUnix,
			RevokeMessages: true,
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant kick")
		}
		return nil
	}
}

func BanSenderChat(ctx context.Context, bot Client, chatID int64, senderChatID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.BanChatSenderChatConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			SenderChatID: senderChatID,
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant ban sender chat")
		}
		return nil
	}
}

func RestrictChatting(ctx context.Context, bot Client, userID int64, chatID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			Permissions: &api.ChatPermissions{},
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant restrict")
		}
		return nil
	}
}

// UnrestrictChatting restores the given permissions, which should be the chat defaults.
func UnrestrictChatting(ctx context.Context, bot Client, userID int64, chatID int64, permissions *api.ChatPermissions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if permissions == nil {
			permissions = FullPermissions()
		}
		if _, err := bot.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			Permissions: permissions,
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant unrestrict")
		}
		return nil
	}
}

// ChatDefaultPermissions reads the chat's member permissions, falling back to everything allowed.
func ChatDefaultPermissions(ctx context.Context, bot Client, chatID int64) *api.ChatPermissions {
	if ctx.Err() != nil {
		return FullPermissions()
	}
	info, err := bot.GetChat(api.ChatInfoConfig{ChatConfig: api.ChatConfig{ChatID: chatID}})
	if err != nil || info.Permissions == nil {
		if err != nil {
			log.WithField("error", err.Error()).WithField("chat_id", chatID).Debug("cant get chat permissions")
		}
		return FullPermissions()
	}
	return info.Permissions
}

func FullPermissions() *api.ChatPermissions {
	return &api.ChatPermissions{
		CanSendMessages:       true,
		CanSendAudios:         true,
		CanSendDocuments:      true,
		CanSendPhotos:         true,
		CanSendVideos:         true,
		CanSendVideoNotes:     true,
		CanSendVoiceNotes:     true,
		CanSendPolls:          true,
		CanSendOtherMessages:  true,
		CanAddWebPagePreviews: true,
		CanChangeInfo:         true,
		CanInviteUsers:        true,
		CanPinMessages:        true,
		CanManageTopics:       true,
	}
}

func ApproveJoinRequest(ctx context.Context, bot Client, userID int64, chatID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.ApproveChatJoinRequestConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant accept join request")
		}
		return nil
	}
}

func DeclineJoinRequest(ctx context.Context, bot Client, userID int64, chatID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := bot.Request(api.DeclineChatJoinRequest{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
			UserID: userID,
		}); err != nil {
			return pkgerrors.WithMessage(err, "cant decline join request")
		}
		return nil
	}
}

// Reply answers msg in its chat and topic with HTML text.
func Reply(ctx context.Context, bot Client, msg *api.Message, text string) (api.Message, error) {
	if err := ctx.Err(); err != nil {
		return api.Message{}, err
	}
	reply := api.NewMessage(msg.Chat.ID, text)
	reply.ParseMode = api.ModeHTML
	reply.ReplyParameters.MessageID = msg.MessageID
	reply.ReplyParameters.ChatID = msg.Chat.ID
	reply.ReplyParameters.AllowSendingWithoutReply = true
	if msg.IsTopicMessage {
		reply.MessageThreadID = msg.MessageThreadID
	}
	reply.LinkPreviewOptions.IsDisabled = true
	return bot.Send(reply)
}

// SendHTML posts text into a chat, optionally inside a forum topic.
func SendHTML(ctx context.Context, bot Client, chatID int64, threadID int, text string) (api.Message, error) {
	if err := ctx.Err(); err != nil {
		return api.Message{}, err
	}
	msg := api.NewMessage(chatID, text)
	msg.ParseMode = api.ModeHTML
	msg.MessageThreadID = threadID
	msg.LinkPreviewOptions.IsDisabled = true
	return bot.Send(msg)
}

func ChatKeyOf(msg *api.Message) db.ChatKey {
	if msg == nil {
		return db.ChatKey{}
	}
	key := db.ChatKey{ChatID: msg.Chat.ID}
	if msg.IsTopicMessage {
		key.ThreadID = msg.MessageThreadID
	}
	return key
}

// IsUnreachable reports whether err means the user blocked the bot or never started it.
func IsUnreachable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrUnreachable) {
		return true
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusForbidden
	}
	return strings.Contains(err.Error(), "Forbidden")
}

func IsMessageToCopyNotFound(err error) bool {
	return err != nil && strings.Contains(strings.ToLower(err.Error()), "message to copy not found")
}

func GetFullName(user *api.User) string {
	if user == nil {
		return ""
	}
	fullName := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if len(fullName) == 0 {
		fullName = user.UserName
	}
	return fullName
}

// Mention renders an HTML link to the user that notifies them.
func Mention(user *api.User) string {
	if user == nil {
		return ""
	}
	name := GetFullName(user)
	if name == "" {
		name = fmt.Sprintf("%d", user.ID)
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, user.ID, html.EscapeString(name))
}

// MentionChat renders a sender chat by title, linking public ones.
func MentionChat(chat *api.Chat) string {
	if chat == nil {
		return ""
	}
	title := html.EscapeString(chat.Title)
	if title == "" {
		title = fmt.Sprintf("%d", chat.ID)
	}
	if chat.UserName != "" {
		return fmt.Sprintf(`<a href="https://t.me/%s">%s</a>`, chat.UserName, title)
	}
	return "<b>" + title + "</b>"
}
