package executor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/executor"
	"github.com/groupwarden/warden/internal/platform"
	"github.com/groupwarden/warden/internal/platform/platformtest"
)

func TestExecuteActions(t *testing.T) {
	t.Parallel()

	fake := platformtest.New()
	exec := executor.New(fake, zap.NewNop())

	tests := []struct {
		action enum.Action
		op     string
	}{
		{enum.ActionDelete, "delete"},
		{enum.ActionMute, "restrict"},
		{enum.ActionKick, "kick"},
		{enum.ActionBan, "ban"},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			err := exec.Execute(context.Background(), &executor.Request{
				GroupID:   10,
				UserID:    4,
				Action:    tt.action,
				MessageID: 100,
			})
			require.NoError(t, err)
			assert.Len(t, fake.CallsOf(tt.op), 1)
		})
	}
}

func TestExecuteRejectsWarn(t *testing.T) {
	t.Parallel()

	exec := executor.New(platformtest.New(), zap.NewNop())

	err := exec.Execute(context.Background(), &executor.Request{GroupID: 10, UserID: 4, Action: enum.ActionWarn})
	require.Error(t, err)
}

func TestPermissionDeniedNotRetried(t *testing.T) {
	t.Parallel()

	fake := platformtest.New()
	fake.FailOn("ban", platform.ErrPermissionDenied)

	exec := executor.New(fake, zap.NewNop(), executor.WithRetry(3, time.Millisecond))

	err := exec.Ban(context.Background(), 10, 4)
	require.ErrorIs(t, err, platform.ErrPermissionDenied)
	// Non-transient errors must not burn the retry budget
	assert.Len(t, fake.CallsOf("ban"), 1)
}

func TestTransientRetried(t *testing.T) {
	t.Parallel()

	fake := platformtest.New()
	fake.FailOn("kick", &platform.TransientError{Err: errors.New("rate limited")})

	exec := executor.New(fake, zap.NewNop(), executor.WithRetry(2, time.Millisecond))

	err := exec.Execute(context.Background(), &executor.Request{GroupID: 10, UserID: 4, Action: enum.ActionKick})
	require.Error(t, err)
	// Initial attempt plus two retries
	assert.Len(t, fake.CallsOf("kick"), 3)
}
