package verification

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// PayloadKind discriminates callback payloads at the boundary.
type PayloadKind string

const (
	// PayloadVerify is a member answering their own challenge.
	PayloadVerify PayloadKind = "verify"
)

// Payload is the decoded callback data attached to challenge buttons.
// It replaces delimited string prefixes with explicit fields, decoded
// exactly once where the callback enters the system.
type Payload struct {
	Kind    PayloadKind `json:"kind"`
	GroupID int64       `json:"groupId"`
	UserID  int64       `json:"userId"`
	// Answer carries the chosen option for math and image challenges;
	// empty for the button mode.
	Answer string `json:"answer"`
}

// EncodePayload serializes a payload for callback data.
func EncodePayload(p *Payload) (string, error) {
	data, err := sonic.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode callback payload: %w", err)
	}

	return string(data), nil
}

// DecodePayload parses callback data into a payload.
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := sonic.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode callback payload: %w", err)
	}

	if p.Kind != PayloadVerify {
		return nil, fmt.Errorf("unknown callback payload kind %q", p.Kind)
	}

	return &p, nil
}
