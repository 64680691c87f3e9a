package gateway

import (
	"testing"

	"github.com/slack-go/slack"
)

func newTestGateway() *SlackGateway {
	return &SlackGateway{pending: make(map[string]pendingAsk)}
}

func TestResolveInteractionIgnoresOtherUsers(t *testing.T) {
	g := newTestGateway()
	ch := make(chan AskResponse, 1)
	g.pending["ask-1"] = pendingAsk{ch: ch, allowedUser: "U_ALLOWED"}

	cb := slack.InteractionCallback{
		User: slack.User{ID: "U_OTHER"},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{{ActionID: "approve", BlockID: "ask-1"}},
		},
	}
	g.resolveInteraction(cb)

	select {
	case <-ch:
		t.Fatal("expected a non-allowed user's click to be ignored")
	default:
	}
}

func TestResolveInteractionApprovesForAllowedUser(t *testing.T) {
	g := newTestGateway()
	ch := make(chan AskResponse, 1)
	g.pending["ask-1"] = pendingAsk{ch: ch, allowedUser: "U_ALLOWED"}

	cb := slack.InteractionCallback{
		User: slack.User{ID: "U_ALLOWED"},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{{ActionID: "approve", BlockID: "ask-1"}},
		},
	}
	g.resolveInteraction(cb)

	select {
	case resp := <-ch:
		if !resp.Approved {
			t.Error("expected approve action to resolve Approved=true")
		}
	default:
		t.Fatal("expected resolution to be delivered")
	}
}

func TestResolveInteractionDeny(t *testing.T) {
	g := newTestGateway()
	ch := make(chan AskResponse, 1)
	g.pending["ask-1"] = pendingAsk{ch: ch, allowedUser: "U_ALLOWED"}

	cb := slack.InteractionCallback{
		User: slack.User{ID: "U_ALLOWED"},
		ActionCallback: slack.ActionCallbacks{
			BlockActions: []*slack.BlockAction{{ActionID: "deny", BlockID: "ask-1"}},
		},
	}
	g.resolveInteraction(cb)

	resp := <-ch
	if resp.Approved {
		t.Error("expected deny action to resolve Approved=false")
	}
}

func TestStripMentionRemovesBotMention(t *testing.T) {
	got := stripMention("<@U123> do the thing", "U123")
	if got != "do the thing" {
		t.Errorf("expected mention stripped, got %q", got)
	}
}

func TestWithRetryStopsOnSuccess(t *testing.T) {
	attempts := 0
	err := withRetry(3, 0, func() (bool, error) {
		attempts++
		return false, nil
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}
