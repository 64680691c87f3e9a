package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
)

// SlackConfig configures the Slack gateway adapter.
type SlackConfig struct {
	BotToken  string `json:"botToken" envconfig:"BOT_TOKEN"`
	AppToken  string `json:"appToken" envconfig:"APP_TOKEN"`
	BotUserID string `json:"botUserId" envconfig:"BOT_USER_ID"`
	APIBase   string `json:"apiBase,omitempty" envconfig:"API_BASE"` // defaults to https://slack.com/api
}

// SlackGateway implements Gateway over the Slack Events API (Socket Mode
// for inbound) and the Web API (chat.postMessage/update) for outbound,
// mirroring the bridge's own request/retry shape rather than introducing
// a second HTTP client style.
type SlackGateway struct {
	cfg    SlackConfig
	api    *slack.Client
	client *socketmode.Client

	mu      sync.Mutex
	pending map[string]pendingAsk
}

type pendingAsk struct {
	ch          chan AskResponse
	allowedUser string
}

// NewSlackGateway builds a gateway from cfg. AppToken is required for
// Socket Mode inbound delivery; a gateway with only BotToken can still
// send/edit (useful for a status-only or ask-free deployment).
func NewSlackGateway(cfg SlackConfig) *SlackGateway {
	base := strings.TrimSpace(cfg.APIBase)
	if base == "" {
		base = "https://slack.com/api"
	}
	apiOpts := []slack.Option{slack.OptionAPIURL(strings.TrimRight(base, "/") + "/")}
	if strings.TrimSpace(cfg.AppToken) != "" {
		apiOpts = append(apiOpts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	api := slack.New(cfg.BotToken, apiOpts...)
	g := &SlackGateway{cfg: cfg, api: api, pending: make(map[string]pendingAsk)}
	if strings.TrimSpace(cfg.AppToken) != "" {
		g.client = socketmode.New(api)
	}
	return g
}

// Start begins consuming Socket Mode events and routes message/mention
// events to handler. It returns once ctx is cancelled. Requires AppToken.
func (g *SlackGateway) Start(ctx context.Context, handler InboundHandler) error {
	if g.client == nil {
		return errNoAppToken
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-g.client.Events:
				if !ok {
					return
				}
				g.dispatch(ctx, evt, handler)
			}
		}
	}()

	go g.client.Run()

	<-ctx.Done()
	return ctx.Err()
}

func (g *SlackGateway) dispatch(ctx context.Context, evt socketmode.Event, handler InboundHandler) {
	switch evt.Type {
	case socketmode.EventTypeEventsAPI:
		if evt.Request != nil {
			g.client.Ack(*evt.Request)
		}
		ev, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok || ev.Type != slackevents.CallbackEvent {
			return
		}
		switch in := ev.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			if in == nil || in.BotID != "" {
				return
			}
			handler(ctx, InboundMessage{
				ChannelID:       in.Channel,
				UserID:          in.User,
				MessageID:       in.TimeStamp,
				ReplyToID:       strings.TrimSpace(in.ThreadTimeStamp),
				Text:            stripMention(in.Text, g.cfg.BotUserID),
				IsDirectMessage: in.ChannelType == "im",
			})
		case *slackevents.AppMentionEvent:
			if in == nil {
				return
			}
			handler(ctx, InboundMessage{
				ChannelID: in.Channel,
				UserID:    in.User,
				MessageID: in.TimeStamp,
				ReplyToID: strings.TrimSpace(in.ThreadTimeStamp),
				Text:      stripMention(in.Text, g.cfg.BotUserID),
			})
		}

	case socketmode.EventTypeInteractive:
		if evt.Request != nil {
			g.client.Ack(*evt.Request)
		}
		cb, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		g.resolveInteraction(cb)
	}
}

func stripMention(text, botUserID string) string {
	if botUserID == "" {
		return strings.TrimSpace(text)
	}
	return strings.TrimSpace(strings.ReplaceAll(text, "<@"+botUserID+">", ""))
}

// Send posts a new message and returns its timestamp as the message id,
// Slack's own addressing scheme for edits.
func (g *SlackGateway) Send(ctx context.Context, channelID, text string) (string, error) {
	var ts string
	err := withRetry(3, 200*time.Millisecond, func() (bool, error) {
		_, resultTS, err := g.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(text, false))
		ts = resultTS
		return g.retryDecision(err)
	})
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	return ts, nil
}

// Edit replaces a message's text in place.
func (g *SlackGateway) Edit(ctx context.Context, channelID, messageID, text string) error {
	err := withRetry(3, 200*time.Millisecond, func() (bool, error) {
		_, _, _, err := g.api.UpdateMessageContext(ctx, channelID, messageID, slack.MsgOptionText(text, false))
		return g.retryDecision(err)
	})
	if err != nil {
		return fmt.Errorf("slack update: %w", err)
	}
	return nil
}

// retryDecision matches the bridge's own handling of Slack's rate-limit
// error type: sleep out RetryAfter, then report the error as retryable;
// withRetry bounds the number of attempts.
func (g *SlackGateway) retryDecision(err error) (bool, error) {
	if err == nil {
		return false, nil
	}
	var rle *slack.RateLimitedError
	if errors.As(err, &rle) {
		if rle.RetryAfter > 0 {
			time.Sleep(rle.RetryAfter)
		}
		return true, err
	}
	return false, err
}

// SetPresence sets the bot's custom-status text; Slack bots have no
// "activity" concept like Discord, so the aggregate label is surfaced as
// a custom status on the bot's own user profile.
func (g *SlackGateway) SetPresence(ctx context.Context, label string) error {
	return g.api.SetUserCustomStatusContext(ctx, label, "", 0)
}

// AskPermission posts an interactive approve/deny prompt and blocks until
// buttons.AllowedUser clicks one or ctx is done. On resolution (either way)
// the buttons are replaced with a plain status line, per §4.12's "buttons
// disabled afterward".
func (g *SlackGateway) AskPermission(ctx context.Context, channelID string, buttons AskButtons, prompt string) (AskResponse, error) {
	askID := uuid.NewString()
	ch := make(chan AskResponse, 1)

	g.mu.Lock()
	g.pending[askID] = pendingAsk{ch: ch, allowedUser: buttons.AllowedUser}
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.pending, askID)
		g.mu.Unlock()
	}()

	body := prompt
	if buttons.ActionString != "" {
		body = fmt.Sprintf("%s\n`%s`", prompt, buttons.ActionString)
	}
	blocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, body, false, false), nil, nil),
		slack.NewActionBlock(askID,
			slack.NewButtonBlockElement("approve", askID, slack.NewTextBlockObject(slack.PlainTextType, "Approve", false, false)).WithStyle(slack.StylePrimary),
			slack.NewButtonBlockElement("deny", askID, slack.NewTextBlockObject(slack.PlainTextType, "Deny", false, false)).WithStyle(slack.StyleDanger),
		),
	}
	_, ts, err := g.api.PostMessageContext(ctx, channelID, slack.MsgOptionBlocks(blocks...))
	if err != nil {
		return AskResponse{}, fmt.Errorf("slack ask prompt: %w", err)
	}

	select {
	case resp := <-ch:
		g.disableButtons(channelID, ts, resp)
		return resp, nil
	case <-ctx.Done():
		g.disableButtons(channelID, ts, AskResponse{Approved: false})
		return AskResponse{}, ctx.Err()
	}
}

func (g *SlackGateway) disableButtons(channelID, ts string, resp AskResponse) {
	text := "Denied."
	if resp.Approved {
		text = "Approved."
	}
	if _, _, _, err := g.api.UpdateMessageContext(context.Background(), channelID, ts, slack.MsgOptionText(text, false)); err != nil {
		slog.Warn("failed to disable ask buttons", "error", err)
	}
}

func (g *SlackGateway) resolveInteraction(cb slack.InteractionCallback) {
	if len(cb.ActionCallback.BlockActions) == 0 {
		return
	}
	action := cb.ActionCallback.BlockActions[0]
	askID := action.BlockID

	g.mu.Lock()
	ask, ok := g.pending[askID]
	g.mu.Unlock()
	if !ok {
		return
	}
	// Only the invoking user's click resolves the prompt (§4.12); anyone
	// else's click is acknowledged (above, via Ack) but otherwise ignored.
	if ask.allowedUser != "" && cb.User.ID != ask.allowedUser {
		return
	}

	approved := action.ActionID == "approve"
	select {
	case ask.ch <- AskResponse{Approved: approved, UserID: cb.User.ID}:
	default:
	}
}

// errNoAppToken is returned by Start when no AppToken was configured, so
// Socket Mode inbound delivery has nothing to connect to.
var errNoAppToken = errors.New("slack gateway: AppToken required for Socket Mode inbound delivery")

// withRetry runs fn up to attempts times with exponential backoff,
// matching the bridge's own Slack retry shape.
func withRetry(attempts int, baseDelay time.Duration, fn func() (retryable bool, err error)) error {
	if attempts <= 0 {
		attempts = 1
	}
	if baseDelay <= 0 {
		baseDelay = 100 * time.Millisecond
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		retryable, err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable || i == attempts-1 {
			break
		}
		time.Sleep(baseDelay * time.Duration(1<<i))
	}
	return lastErr
}
