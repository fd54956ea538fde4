// Package telegram implements the platform client on top of the Telegram
// Bot API.
package telegram

import (
	"bytes"
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/platform"
)

// Client adapts go-telegram/bot to the platform interface.
type Client struct {
	bot    *bot.Bot
	logger *zap.Logger
}

// NewClient wraps an initialized Telegram bot.
func NewClient(b *bot.Bot, logger *zap.Logger) *Client {
	return &Client{
		bot:    b,
		logger: logger.Named("telegram"),
	}
}

// SendMessage delivers a text or photo message, optionally with an inline
// keyboard.
func (c *Client) SendMessage(ctx context.Context, msg *platform.Message) error {
	var markup models.ReplyMarkup
	if len(msg.Buttons) > 0 {
		rows := make([][]models.InlineKeyboardButton, len(msg.Buttons))
		for i, row := range msg.Buttons {
			buttons := make([]models.InlineKeyboardButton, len(row))
			for j, b := range row {
				buttons[j] = models.InlineKeyboardButton{
					Text:         b.Label,
					CallbackData: b.Data,
				}
			}

			rows[i] = buttons
		}

		markup = &models.InlineKeyboardMarkup{InlineKeyboard: rows}
	}

	var replyParams *models.ReplyParameters
	if msg.ReplyTo != 0 {
		replyParams = &models.ReplyParameters{MessageID: int(msg.ReplyTo)}
	}

	var err error
	if len(msg.Photo) > 0 {
		_, err = c.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:          msg.GroupID,
			Photo:           &models.InputFileUpload{Filename: "challenge.png", Data: bytes.NewReader(msg.Photo)},
			Caption:         msg.Text,
			ReplyParameters: replyParams,
			ReplyMarkup:     markup,
		})
	} else {
		_, err = c.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:          msg.GroupID,
			Text:            msg.Text,
			ReplyParameters: replyParams,
			ReplyMarkup:     markup,
		})
	}

	return platform.ClassifyError(err)
}

// DeleteMessage removes one message from a group.
func (c *Client) DeleteMessage(ctx context.Context, groupID, messageID int64) error {
	_, err := c.bot.DeleteMessage(ctx, &bot.DeleteMessageParams{
		ChatID:    groupID,
		MessageID: int(messageID),
	})

	return platform.ClassifyError(err)
}

// RestrictMember removes a member's posting rights. Zero duration means
// permanent; Telegram treats until dates under 30 seconds or over 366
// days as forever.
func (c *Client) RestrictMember(ctx context.Context, groupID, userID int64, duration time.Duration) error {
	var until int
	if duration > 0 {
		until = int(time.Now().Add(duration).Unix())
	}

	_, err := c.bot.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID:      groupID,
		UserID:      userID,
		Permissions: &models.ChatPermissions{},
		UntilDate:   until,
	})

	return platform.ClassifyError(err)
}

// UnrestrictMember restores default member permissions.
func (c *Client) UnrestrictMember(ctx context.Context, groupID, userID int64) error {
	_, err := c.bot.RestrictChatMember(ctx, &bot.RestrictChatMemberParams{
		ChatID: groupID,
		UserID: userID,
		Permissions: &models.ChatPermissions{
			CanSendMessages:       true,
			CanSendPhotos:         true,
			CanSendVideos:         true,
			CanSendAudios:         true,
			CanSendDocuments:      true,
			CanSendVoiceNotes:     true,
			CanSendVideoNotes:     true,
			CanSendPolls:          true,
			CanSendOtherMessages:  true,
			CanAddWebPagePreviews: true,
		},
	})

	return platform.ClassifyError(err)
}

// KickMember removes the member but allows them to rejoin. Telegram has no
// direct kick; ban followed by unban produces one.
func (c *Client) KickMember(ctx context.Context, groupID, userID int64) error {
	_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: groupID,
		UserID: userID,
	})
	if err != nil {
		return platform.ClassifyError(err)
	}

	_, err = c.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       groupID,
		UserID:       userID,
		OnlyIfBanned: true,
	})

	return platform.ClassifyError(err)
}

// BanMember permanently removes the member from the group.
func (c *Client) BanMember(ctx context.Context, groupID, userID int64) error {
	_, err := c.bot.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID: groupID,
		UserID: userID,
	})

	return platform.ClassifyError(err)
}

// UnbanMember lifts a ban. Unbanning a user who is not banned is a no-op.
func (c *Client) UnbanMember(ctx context.Context, groupID, userID int64) error {
	_, err := c.bot.UnbanChatMember(ctx, &bot.UnbanChatMemberParams{
		ChatID:       groupID,
		UserID:       userID,
		OnlyIfBanned: true,
	})

	return platform.ClassifyError(err)
}

// GetMemberRole resolves the platform-reported role of a member.
func (c *Client) GetMemberRole(ctx context.Context, groupID, userID int64) (platform.MemberRole, error) {
	member, err := c.bot.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: groupID,
		UserID: userID,
	})
	if err != nil {
		return platform.RoleNone, platform.ClassifyError(err)
	}

	switch {
	case member.Owner != nil:
		return platform.RoleCreator, nil
	case member.Administrator != nil:
		return platform.RoleAdmin, nil
	case member.Member != nil, member.Restricted != nil:
		return platform.RoleMember, nil
	default:
		return platform.RoleNone, nil
	}
}
