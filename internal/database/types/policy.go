package types

import (
	"time"

	"github.com/groupwarden/warden/internal/database/types/enum"
)

// GroupPolicy holds the moderation configuration for one group. A row is
// created lazily on the first event seen for a group and is never deleted,
// only reset to defaults.
type GroupPolicy struct {
	GroupID int64 `bun:",pk"` // Chat platform group ID

	LocksActive     bool `bun:",notnull"` // Content-lock stage enabled
	BlacklistActive bool `bun:",notnull"` // Blacklist stage enabled
	AntilinkActive  bool `bun:",notnull"` // Link-filter stage enabled
	AntifloodActive bool `bun:",notnull"` // Flood detector enabled
	CaptchaActive   bool `bun:",notnull"` // Join-time verification enabled

	WarnLimit  int         `bun:",notnull"` // Warnings before escalation, >= 1
	WarnAction enum.Action `bun:",notnull"` // Escalation result (mute/kick/ban)

	FloodLimit         int         `bun:",notnull"` // Messages inside the window before action, >= 1
	FloodWindowSeconds int         `bun:",notnull"` // Length of the flood window
	FloodAction        enum.Action `bun:",notnull"` // Flood result (mute/kick/ban)

	AntilinkAction enum.Action `bun:",notnull"` // Action on a link violation

	LockedTypes []enum.ContentType `bun:",array"` // Content types currently locked

	CaptchaMode           enum.CaptchaMode `bun:",notnull"` // Challenge kind for new joins
	CaptchaTimeoutSeconds int              `bun:",notnull"` // Seconds before an unanswered challenge fails

	MuteDurationSeconds int `bun:",notnull"` // Mute length; 0 means permanent

	NightModeActive bool `bun:",notnull"` // Night-mode stage enabled
	NightStartHour  int  `bun:",notnull"` // UTC hour the night window opens
	NightEndHour    int  `bun:",notnull"` // UTC hour the night window closes

	UpdatedAt time.Time `bun:",notnull"` // Last administrative change
}

// Locked reports whether the given content type is in the locked set.
func (p *GroupPolicy) Locked(ct enum.ContentType) bool {
	for _, t := range p.LockedTypes {
		if t == ct {
			return true
		}
	}

	return false
}

// InNightWindow reports whether the given time falls inside the configured
// night window. The window may wrap midnight (e.g. 23 to 6).
func (p *GroupPolicy) InNightWindow(now time.Time) bool {
	if !p.NightModeActive {
		return false
	}

	hour := now.UTC().Hour()
	if p.NightStartHour <= p.NightEndHour {
		return hour >= p.NightStartHour && hour < p.NightEndHour
	}

	return hour >= p.NightStartHour || hour < p.NightEndHour
}
