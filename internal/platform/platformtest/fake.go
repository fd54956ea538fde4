// Package platformtest provides an in-memory platform client for tests.
package platformtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/groupwarden/warden/internal/platform"
)

// Call records one invocation on the fake client.
type Call struct {
	Op      string
	GroupID int64
	UserID  int64
	// MessageID is set for delete calls, Text for send calls.
	MessageID int64
	Text      string
	Duration  time.Duration
}

// Fake is a platform client that records calls and returns configured
// errors. Safe for concurrent use.
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// Fail maps "op:groupID" or "op" to the error returned for it.
	fail map[string]error

	// Roles maps "groupID:userID" to the role GetMemberRole reports.
	roles map[string]platform.MemberRole

	// RoleErr, when set, is returned by every GetMemberRole call.
	RoleErr error
}

// New creates an empty fake client.
func New() *Fake {
	return &Fake{
		fail:  make(map[string]error),
		roles: make(map[string]platform.MemberRole),
	}
}

// FailOn makes every call of the given op return err.
func (f *Fake) FailOn(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = err
}

// FailOnGroup makes calls of the given op against one group return err.
func (f *Fake) FailOnGroup(op string, groupID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[fmt.Sprintf("%s:%d", op, groupID)] = err
}

// SetRole configures the role reported for a (group,user) pair.
func (f *Fake) SetRole(groupID, userID int64, role platform.MemberRole) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[fmt.Sprintf("%d:%d", groupID, userID)] = role
}

// Calls returns a snapshot of all recorded calls.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Call, len(f.calls))
	copy(out, f.calls)

	return out
}

// CallsOf returns recorded calls of one op.
func (f *Fake) CallsOf(op string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []Call

	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}

	return out
}

func (f *Fake) record(call Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, call)

	if err, ok := f.fail[fmt.Sprintf("%s:%d", call.Op, call.GroupID)]; ok {
		return err
	}

	if err, ok := f.fail[call.Op]; ok {
		return err
	}

	return nil
}

func (f *Fake) SendMessage(_ context.Context, msg *platform.Message) error {
	return f.record(Call{Op: "send", GroupID: msg.GroupID, Text: msg.Text})
}

func (f *Fake) DeleteMessage(_ context.Context, groupID, messageID int64) error {
	return f.record(Call{Op: "delete", GroupID: groupID, MessageID: messageID})
}

func (f *Fake) RestrictMember(_ context.Context, groupID, userID int64, duration time.Duration) error {
	return f.record(Call{Op: "restrict", GroupID: groupID, UserID: userID, Duration: duration})
}

func (f *Fake) UnrestrictMember(_ context.Context, groupID, userID int64) error {
	return f.record(Call{Op: "unrestrict", GroupID: groupID, UserID: userID})
}

func (f *Fake) KickMember(_ context.Context, groupID, userID int64) error {
	return f.record(Call{Op: "kick", GroupID: groupID, UserID: userID})
}

func (f *Fake) BanMember(_ context.Context, groupID, userID int64) error {
	return f.record(Call{Op: "ban", GroupID: groupID, UserID: userID})
}

func (f *Fake) UnbanMember(_ context.Context, groupID, userID int64) error {
	return f.record(Call{Op: "unban", GroupID: groupID, UserID: userID})
}

func (f *Fake) GetMemberRole(_ context.Context, groupID, userID int64) (platform.MemberRole, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.RoleErr != nil {
		return platform.RoleNone, f.RoleErr
	}

	if role, ok := f.roles[fmt.Sprintf("%d:%d", groupID, userID)]; ok {
		return role, nil
	}

	return platform.RoleMember, nil
}
