package types

import "time"

// Warning is one append-only warning record. The live warning count for a
// (group,user) pair is the number of rows still present for the key;
// escalation deletes all rows for the key atomically.
type Warning struct {
	ID       int64     `bun:",pk,autoincrement"`
	GroupID  int64     `bun:",notnull"` // Group the warning was issued in
	UserID   int64     `bun:",notnull"` // Member who was warned
	Reason   string    `bun:",type:text"`
	IssuerID int64     `bun:",notnull"` // Admin or 0 when issued by a pipeline stage
	IssuedAt time.Time `bun:",notnull"`
}
