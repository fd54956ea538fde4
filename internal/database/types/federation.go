package types

import "time"

// Federation is a named collection of groups sharing one ban list.
type Federation struct {
	ID        string    `bun:",pk"` // UUID assigned at creation
	Name      string    `bun:",notnull"`
	OwnerID   int64     `bun:",notnull"`
	CreatedAt time.Time `bun:",notnull"`
}

// FedAdmin is one delegated administrator of a federation.
type FedAdmin struct {
	FedID  string `bun:",pk"`
	UserID int64  `bun:",pk"`
}

// FedGroup is one member group of a federation. A group belongs to at most
// one federation; re-joining moves it (last writer wins).
type FedGroup struct {
	GroupID  int64     `bun:",pk"` // Chat platform group ID
	FedID    string    `bun:",notnull"`
	JoinedAt time.Time `bun:",notnull"`
}

// FedBan is one entry of a federation's ban list. The list is the source
// of truth; member-group ban state may lag it after a fan-out failure but
// never leads it.
type FedBan struct {
	FedID    string    `bun:",pk"`
	UserID   int64     `bun:",pk"`
	Reason   string    `bun:",type:text"`
	BannedBy int64     `bun:",notnull"`
	BannedAt time.Time `bun:",notnull"`
}
