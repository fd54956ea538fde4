// Package flood detects message floods with per (group,user) counters in
// Redis. State is ephemeral and best-effort; losing it widens a window,
// never double-fires.
package flood

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types"
)

// keyPrefix namespaces flood counters. Keys are "flood:{groupID}:{userID}".
const keyPrefix = "flood:"

// Detector counts messages per (group,user) inside a window that starts
// at the first message of a burst. Deleting the counter is the claim:
// of the callers that observe the limit, only the one whose delete
// removes the key fires, so two racing messages cannot both trigger.
type Detector struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewDetector creates a flood detector over the given Redis client.
func NewDetector(client rueidis.Client, logger *zap.Logger) *Detector {
	return &Detector{
		client: client,
		logger: logger.Named("flood"),
	}
}

// Observe records one message for the key and reports whether the flood
// limit was reached. The counter expires floodWindowSeconds after the
// first message of the burst; reaching the limit deletes it so the next
// message starts a fresh window.
func (d *Detector) Observe(ctx context.Context, policy *types.GroupPolicy, userID int64) (bool, error) {
	if !policy.AntifloodActive {
		return false, nil
	}

	key := fmt.Sprintf("%s%d:%d", keyPrefix, policy.GroupID, userID)
	window := time.Duration(policy.FloodWindowSeconds) * time.Second

	// SET NX opens the window with its TTL in one command, so a counter
	// key can never exist without an expiry
	err := d.client.Do(ctx, d.client.B().Set().Key(key).Value("0").Nx().Ex(window).Build()).Error()
	if err != nil && !rueidis.IsRedisNil(err) {
		return false, fmt.Errorf("failed to open flood window: %w", err)
	}

	count, err := d.client.Do(ctx, d.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to increment flood counter: %w", err)
	}

	if count == 1 {
		// No-op after the SET above; arms the window when INCR
		// recreated the key behind a racing delete
		err := d.client.Do(ctx, d.client.B().Expire().Key(key).Seconds(int64(window.Seconds())).Nx().Build()).Error()
		if err != nil {
			return false, fmt.Errorf("failed to arm flood window: %w", err)
		}
	}

	// At or past the limit covers a limit lowered mid-window
	if count < int64(policy.FloodLimit) {
		return false, nil
	}

	// The delete is the claim: of the messages at or past the limit,
	// only the one that removes the counter fires
	deleted, err := d.client.Do(ctx, d.client.B().Del().Key(key).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to reset flood counter: %w", err)
	}

	return deleted == 1, nil
}

// Reset clears the counter for a key, used when antiflood is reconfigured.
func (d *Detector) Reset(ctx context.Context, groupID, userID int64) error {
	key := fmt.Sprintf("%s%d:%d", keyPrefix, groupID, userID)

	err := d.client.Do(ctx, d.client.B().Del().Key(key).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to reset flood counter: %w", err)
	}

	return nil
}
