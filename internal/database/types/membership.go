package types

import "time"

// Membership tracks per-group member state the platform does not hold for
// us. Approved members bypass the content stages of the pipeline but never
// bypass explicit warn or ban commands.
type Membership struct {
	GroupID      int64     `bun:",pk"`
	UserID       int64     `bun:",pk"`
	Approved     bool      `bun:",notnull"`
	MessageCount int64     `bun:",notnull"` // Informational monotonic counter
	UpdatedAt    time.Time `bun:",notnull"`
}
