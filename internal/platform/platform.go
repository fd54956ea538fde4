// Package platform abstracts the chat-hosting platform's moderation API.
// The rule engine only ever talks to this interface; the Telegram adapter
// and the test fake both implement it.
package platform

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrPermissionDenied indicates the bot lacks the rights to perform
	// the action or the target outranks it. Never retried.
	ErrPermissionDenied = errors.New("platform: permission denied")

	// ErrNotFound indicates the group, message or member does not exist.
	ErrNotFound = errors.New("platform: not found")
)

// TransientError wraps a network or rate-limit failure that may succeed on
// retry within a bounded budget.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "platform: transient: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// MemberRole is the platform-reported role of a member in a group.
type MemberRole string

const (
	RoleCreator MemberRole = "creator"
	RoleAdmin   MemberRole = "admin"
	RoleMember  MemberRole = "member"
	RoleNone    MemberRole = "none" // Left or was never in the group
)

// Message is an outbound message the client should deliver.
type Message struct {
	GroupID int64
	Text    string
	// ReplyTo is the message to reply to, 0 for none.
	ReplyTo int64
	// Buttons is an optional inline keyboard, one row per outer slice.
	Buttons [][]Button
	// Photo is optional PNG bytes sent instead of plain text.
	Photo []byte
}

// Button is one inline keyboard button carrying an opaque callback payload.
type Button struct {
	Label string
	Data  string
}

// Client is the platform collaborator consumed by the rule engine. Every
// call may return nil, ErrPermissionDenied, ErrNotFound or a TransientError.
type Client interface {
	SendMessage(ctx context.Context, msg *Message) error
	DeleteMessage(ctx context.Context, groupID, messageID int64) error
	// RestrictMember removes a member's posting rights. Zero duration
	// means permanent.
	RestrictMember(ctx context.Context, groupID, userID int64, duration time.Duration) error
	// UnrestrictMember restores a member's posting rights.
	UnrestrictMember(ctx context.Context, groupID, userID int64) error
	// KickMember removes the member but allows them to rejoin.
	KickMember(ctx context.Context, groupID, userID int64) error
	BanMember(ctx context.Context, groupID, userID int64) error
	UnbanMember(ctx context.Context, groupID, userID int64) error
	GetMemberRole(ctx context.Context, groupID, userID int64) (MemberRole, error)
}

// ClassifyError maps a raw platform error message onto the taxonomy.
// Telegram reports permission problems and missing entities as API errors
// with recognizable descriptions; anything else is treated as transient.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "not enough rights"),
		strings.Contains(msg, "can't remove chat owner"),
		strings.Contains(msg, "user is an administrator"),
		strings.Contains(msg, "chat_admin_required"),
		strings.Contains(msg, "forbidden"):
		return ErrPermissionDenied
	case strings.Contains(msg, "not found"),
		strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "user not found"),
		strings.Contains(msg, "message to delete not found"):
		return ErrNotFound
	default:
		return &TransientError{Err: err}
	}
}
