package types

import (
	"time"

	"github.com/groupwarden/warden/internal/database/types/enum"
)

// BlacklistWord is one user-authored trigger for a group. Matching is
// case-insensitive substring; each word carries its own action.
type BlacklistWord struct {
	GroupID   int64       `bun:",pk"`
	Word      string      `bun:",pk"` // Stored lowercase
	Action    enum.Action `bun:",notnull"`
	AddedBy   int64       `bun:",notnull"`
	CreatedAt time.Time   `bun:",notnull"`
}

// Filter is one keyword auto-reply for a group. Filters are informational
// and never count as violations.
type Filter struct {
	GroupID   int64     `bun:",pk"`
	Keyword   string    `bun:",pk"` // Stored lowercase
	Reply     string    `bun:",type:text,notnull"`
	AddedBy   int64     `bun:",notnull"`
	CreatedAt time.Time `bun:",notnull"`
}
