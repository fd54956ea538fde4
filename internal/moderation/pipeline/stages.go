package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/groupwarden/warden/internal/database/types"
	"github.com/groupwarden/warden/internal/database/types/enum"
	"github.com/groupwarden/warden/internal/event"
)

// checkNightMode claims messages posted inside the night window.
func (p *Pipeline) checkNightMode(policy *types.GroupPolicy, msg *event.Event) *Violation {
	if !policy.InNightWindow(p.now()) {
		return nil
	}

	return &Violation{
		Stage:  "nightmode",
		Action: enum.ActionDelete,
		Reason: fmt.Sprintf("message during night mode (%02d:00-%02d:00 UTC)", policy.NightStartHour, policy.NightEndHour),
	}
}

// checkLocks intersects the message's content tags with the locked set.
func (p *Pipeline) checkLocks(policy *types.GroupPolicy, msg *event.Event) *Violation {
	if !policy.LocksActive {
		return nil
	}

	for _, tag := range msg.ContentTags {
		if policy.Locked(tag) {
			return &Violation{
				Stage:  "lock",
				Action: enum.ActionDelete,
				Reason: fmt.Sprintf("locked content type %q", tag),
			}
		}
	}

	return nil
}

// checkBlacklist tests the text against each trigger word. Matching is
// case-insensitive substring; the word's own action is proposed.
func (p *Pipeline) checkBlacklist(
	ctx context.Context, policy *types.GroupPolicy, msg *event.Event,
) (*Violation, error) {
	if !policy.BlacklistActive || msg.Text == "" {
		return nil, nil
	}

	words, err := p.blacklist.List(ctx, msg.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load blacklist: %w", err)
	}

	text := strings.ToLower(msg.Text)
	for _, word := range words {
		if strings.Contains(text, word.Word) {
			return &Violation{
				Stage:  "blacklist",
				Action: word.Action,
				Reason: fmt.Sprintf("blacklisted word %q", word.Word),
			}, nil
		}
	}

	return nil, nil
}

// checkAntilink tests the text against the URL, bare-domain and mention
// patterns.
func (p *Pipeline) checkAntilink(policy *types.GroupPolicy, msg *event.Event) *Violation {
	if !policy.AntilinkActive {
		return nil
	}

	if match := FindLink(msg.Text); match != "" || msg.HasTag(enum.ContentTypeURL) {
		if match == "" {
			match = "url entity"
		}

		return &Violation{
			Stage:  "antilink",
			Action: policy.AntilinkAction,
			Reason: fmt.Sprintf("link %q", match),
		}
	}

	return nil
}

// matchFilter returns the reply of the first keyword filter whose keyword
// is a substring of the text.
func (p *Pipeline) matchFilter(ctx context.Context, msg *event.Event) (string, error) {
	if msg.Text == "" {
		return "", nil
	}

	filters, err := p.filters.List(ctx, msg.GroupID)
	if err != nil {
		return "", fmt.Errorf("failed to load filters: %w", err)
	}

	text := strings.ToLower(msg.Text)
	for _, filter := range filters {
		if strings.Contains(text, filter.Keyword) {
			return filter.Reply, nil
		}
	}

	return "", nil
}
