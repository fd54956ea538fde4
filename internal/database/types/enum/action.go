package enum

// Action represents a punitive measure the executor can carry out
// against a member.
type Action string

const (
	// ActionDelete removes the offending message and nothing else.
	ActionDelete Action = "delete"
	// ActionWarn records a warning that counts toward escalation.
	ActionWarn Action = "warn"
	// ActionMute restricts the member from sending messages.
	ActionMute Action = "mute"
	// ActionKick removes the member but allows them to rejoin.
	ActionKick Action = "kick"
	// ActionBan permanently removes the member from the group.
	ActionBan Action = "ban"
)

// Valid reports whether the action is one of the known values.
func (a Action) Valid() bool {
	switch a {
	case ActionDelete, ActionWarn, ActionMute, ActionKick, ActionBan:
		return true
	}

	return false
}

// EscalationAction reports whether the action is allowed as a warn or
// flood escalation target. Delete and warn are message-level measures
// and cannot be escalation results.
func (a Action) EscalationAction() bool {
	switch a {
	case ActionMute, ActionKick, ActionBan:
		return true
	}

	return false
}
