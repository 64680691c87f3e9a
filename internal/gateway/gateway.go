// Package gateway adapts the orchestrator to a concrete chat platform. The
// only implementation shipped is Slack, but callers depend on the Gateway
// interface so a second platform can be added without touching
// internal/orchestrator.
package gateway

import "context"

// InboundMessage is a normalized message arriving from the platform.
type InboundMessage struct {
	ChannelID    string
	UserID       string
	MessageID    string
	ReplyToID    string // empty if not a reply
	Text         string
	IsDirectMessage bool
}

// InboundHandler processes one inbound message. It is invoked from the
// gateway's own event loop, so it must not block for long — the
// orchestrator hands off to a branch goroutine immediately.
type InboundHandler func(ctx context.Context, msg InboundMessage)

// AskButtons describes an approve/deny prompt to attach to a message.
type AskButtons struct {
	ActionString string
	AllowedUser  string // only this user's click is honored
}

// AskResponse is a resolved ask-UI decision.
type AskResponse struct {
	Approved bool
	UserID   string
}

// Gateway is everything the orchestrator and status view need from the
// chat platform: send/edit for status messages, an ask-UI prompt/response
// channel, and inbound message delivery.
type Gateway interface {
	// Start begins delivering inbound messages to handler until ctx is
	// cancelled.
	Start(ctx context.Context, handler InboundHandler) error

	// Send posts a new message, returning its platform message id.
	Send(ctx context.Context, channelID, text string) (messageID string, err error)
	// Edit replaces a previously sent message's text.
	Edit(ctx context.Context, channelID, messageID, text string) error

	// AskPermission posts an approve/deny prompt and blocks until the
	// allowed user responds or ctx is cancelled (the caller is expected
	// to apply the 120s ask-timeout via ctx).
	AskPermission(ctx context.Context, channelID string, buttons AskButtons, prompt string) (AskResponse, error)

	// SetPresence updates the bot's aggregate activity label.
	SetPresence(ctx context.Context, label string) error
}
