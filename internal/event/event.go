// Package event defines the inbound events the rule engine consumes.
package event

import (
	"github.com/groupwarden/warden/internal/database/types/enum"
)

// Kind discriminates inbound events.
type Kind string

const (
	// KindMessage is a content message posted in a group.
	KindMessage Kind = "message"
	// KindJoin is a member joining a group.
	KindJoin Kind = "join"
	// KindLeave is a member leaving a group.
	KindLeave Kind = "leave"
	// KindCallback is an interaction with an inline button.
	KindCallback Kind = "callback"
)

// Event is one inbound occurrence from the platform. Exactly the fields
// for its Kind are set.
type Event struct {
	Kind    Kind
	GroupID int64
	UserID  int64

	// Message fields.
	MessageID   int64
	Text        string
	ContentTags []enum.ContentType

	// Callback fields. Payload is the raw callback data decoded once at
	// the boundary.
	CallbackID string
	Payload    []byte
}

// HasTag reports whether the message carries the given content tag.
func (e *Event) HasTag(tag enum.ContentType) bool {
	for _, t := range e.ContentTags {
		if t == tag {
			return true
		}
	}

	return false
}
