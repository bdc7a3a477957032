package biz

import "strings"

// ActionKind enumerates what the orchestrator may do with a completion.
type ActionKind int

const (
	// ActionReply sends the body to the customer.
	ActionReply ActionKind = iota
	// ActionEscalate hands the conversation to a human, optionally sending
	// the body first.
	ActionEscalate
	// ActionClose sends the body (when present) and closes the conversation.
	ActionClose
	// ActionSkip dispatches nothing.
	ActionSkip
)

// String returns the action name for logging.
func (k ActionKind) String() string {
	switch k {
	case ActionReply:
		return "reply"
	case ActionEscalate:
		return "escalate"
	case ActionClose:
		return "close"
	case ActionSkip:
		return "skip"
	}
	return "unknown"
}

// PendingAction is the decoded outcome of a completion. Control tokens are
// resolved exactly once, here; downstream code only ever sees the variant.
type PendingAction struct {
	Kind ActionKind
	// Body is the remaining reply text with all control tokens stripped.
	Body string
}

// DecideAction parses control tokens out of a completion. Detection is by
// substring; when several tokens appear the quietest wins: skip beats close
// beats pass beats a plain reply.
func DecideAction(completion string) PendingAction {
	kind := ActionReply
	switch {
	case strings.Contains(completion, TokenSkip):
		kind = ActionSkip
	case strings.Contains(completion, TokenClose):
		kind = ActionClose
	case strings.Contains(completion, TokenPass):
		kind = ActionEscalate
	}

	body := completion
	for _, token := range []string{TokenSkip, TokenClose, TokenPass} {
		body = strings.ReplaceAll(body, token, "")
	}
	return PendingAction{Kind: kind, Body: strings.TrimSpace(body)}
}
