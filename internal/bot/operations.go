package bot

import (
	"context"
	"fmt"
	"strings"

	api "github.com/OvyFlash/telegram-bot-api"
	"github.com/pkg/errors"
)

// Transport calls used by the handlers. Every one of them is fallible and is
// caught at the call site: a failed side effect is logged and dropped, never
// propagated past the handler that issued it.

func DeleteChatMessage(ctx context.Context, b API, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := b.Request(api.NewDeleteMessage(chatID, messageID)); err != nil {
			return errors.WithMessage(err, "cant delete message")
		}
		return nil
	}
}

// RestrictChatMember applies the permission flag set to a member until the
// given unix timestamp (zero means indefinitely).
func RestrictChatMember(ctx context.Context, b API, userID, chatID, untilUnix int64, permissions *api.ChatPermissions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := b.Request(api.RestrictChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate:   untilUnix,
			Permissions: permissions,
		}); err != nil {
			return errors.WithMessage(err, "cant restrict")
		}
		return nil
	}
}

// PromoteChatMember resets a member to regular unrestricted status.
func PromoteChatMember(ctx context.Context, b API, userID, chatID int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if _, err := b.Request(api.PromoteChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
		}); err != nil {
			return errors.WithMessage(err, "cant promote")
		}
		return nil
	}
}

// KickChatMember removes a member until the given unix timestamp. Zero or a
// negative value encodes a permanent ban.
func KickChatMember(ctx context.Context, b API, userID, chatID, untilUnix int64) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		if untilUnix < 0 {
			untilUnix = 0
		}
		if _, err := b.Request(api.BanChatMemberConfig{
			ChatMemberConfig: api.ChatMemberConfig{
				ChatConfig: api.ChatConfig{
					ChatID: chatID,
				},
				UserID: userID,
			},
			UntilDate: untilUnix,
		}); err != nil {
			return errors.WithMessage(err, "cant kick")
		}
		return nil
	}
}

// StripInlineKeyboard removes the interactive controls from a posted message.
func StripInlineKeyboard(ctx context.Context, b API, chatID int64, messageID int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		edit := api.NewEditMessageReplyMarkup(chatID, messageID, api.NewInlineKeyboardMarkup())
		if _, err := b.Request(edit); err != nil {
			return errors.WithMessage(err, "cant strip keyboard")
		}
		return nil
	}
}

// IsChatAdmin reports whether the user is among the chat administrators.
func IsChatAdmin(ctx context.Context, b API, chatID, userID int64) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
		admins, err := b.GetChatAdministrators(api.ChatAdministratorsConfig{
			ChatConfig: api.ChatConfig{
				ChatID: chatID,
			},
		})
		if err != nil {
			return false, errors.WithMessage(err, "cant get chat administrators")
		}
		for _, admin := range admins {
			if admin.User != nil && admin.User.ID == userID {
				return true, nil
			}
		}
		return false, nil
	}
}

// NonePermissions revokes every permission flag.
func NonePermissions() *api.ChatPermissions {
	return &api.ChatPermissions{}
}

// FullPermissions grants every member-level permission flag.
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
	}
}

func GetUN(user *api.User) string {
	if user == nil {
		return ""
	}
	userName := user.UserName
	if len(userName) == 0 {
		userName = strings.TrimSpace(user.FirstName + " " + user.LastName)
	}
	return userName
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

// Mention renders a markdown text mention of a user.
func Mention(user *api.User) string {
	return fmt.Sprintf("[%s](tg://user?id=%d)", api.EscapeText(api.ModeMarkdown, GetFullName(user)), user.ID)
}
