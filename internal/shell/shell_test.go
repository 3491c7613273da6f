package shell

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pyatkov/telecord/internal/bridge"
	"github.com/pyatkov/telecord/internal/bus"
	"github.com/pyatkov/telecord/internal/platform"
)

type call struct {
	name string
	side bridge.Side
	arg  string
}

// fakeController records every call; err is returned from all erroring
// methods when set.
type fakeController struct {
	calls []call
	creds map[bridge.Side]platform.Credentials
	err   error
}

func newFakeController() *fakeController {
	return &fakeController{creds: map[bridge.Side]platform.Credentials{}}
}

func (f *fakeController) Login(_ context.Context, sd bridge.Side, credentials platform.Credentials) error {
	f.calls = append(f.calls, call{name: "login", side: sd})
	f.creds[sd] = credentials
	return f.err
}

func (f *fakeController) SubmitChallenge(_ context.Context, sd bridge.Side, kind platform.ChallengeKind, response string) error {
	f.calls = append(f.calls, call{name: "challenge:" + string(kind), side: sd, arg: response})
	return f.err
}

func (f *fakeController) Logout(_ context.Context, sd bridge.Side) {
	f.calls = append(f.calls, call{name: "logout", side: sd})
}

func (f *fakeController) LoadConversations(_ context.Context, sd bridge.Side) ([]platform.Conversation, error) {
	f.calls = append(f.calls, call{name: "chats", side: sd})
	return nil, f.err
}

func (f *fakeController) SelectConversation(_ context.Context, sd bridge.Side, conversationID string) error {
	f.calls = append(f.calls, call{name: "open", side: sd, arg: conversationID})
	return f.err
}

func (f *fakeController) SelectMessage(_ context.Context, sd bridge.Side, messageID string) error {
	f.calls = append(f.calls, call{name: "pick", side: sd, arg: messageID})
	return f.err
}

func (f *fakeController) Forward(_ context.Context, from bridge.Side) error {
	f.calls = append(f.calls, call{name: "forward", side: from})
	return f.err
}

func newTestShell(ctrl Controller) (*Shell, *strings.Builder) {
	var out strings.Builder
	return New(ctrl, bus.New(), strings.NewReader(""), &out, zap.NewNop()), &out
}

func (f *fakeController) last() call {
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func TestLoginTelegramParsesCredentials(t *testing.T) {
	ctrl := newFakeController()
	sh, _ := newTestShell(ctrl)

	if exit := sh.Execute(context.Background(), "login telegram +15551234567 12345 abcdef"); exit {
		t.Fatal("login should not exit the shell")
	}

	got := ctrl.creds[bridge.SideTelegram]
	want := platform.Credentials{
		AccountID: "+15551234567",
		Phone:     "+15551234567",
		APIID:     "12345",
		APIHash:   "abcdef",
	}
	if got != want {
		t.Errorf("credentials = %+v, want %+v", got, want)
	}
}

func TestLoginDiscordReusesTelegramAccount(t *testing.T) {
	ctrl := newFakeController()
	sh, _ := newTestShell(ctrl)
	ctx := context.Background()

	sh.Execute(ctx, "login telegram +15551234567 12345 abcdef")
	sh.Execute(ctx, "login discord sometoken")

	got := ctrl.creds[bridge.SideDiscord]
	if got.AccountID != "+15551234567" || got.Token != "sometoken" {
		t.Errorf("discord credentials = %+v", got)
	}
}

func TestChallengeCommandsTargetTelegram(t *testing.T) {
	ctrl := newFakeController()
	sh, _ := newTestShell(ctrl)
	ctx := context.Background()

	sh.Execute(ctx, "code 12345")
	if got := ctrl.last(); got.name != "challenge:"+string(platform.ChallengeCode) || got.side != bridge.SideTelegram || got.arg != "12345" {
		t.Errorf("code dispatched as %+v", got)
	}

	sh.Execute(ctx, "password hunter2")
	if got := ctrl.last(); got.name != "challenge:"+string(platform.ChallengePassword) || got.side != bridge.SideTelegram {
		t.Errorf("password dispatched as %+v", got)
	}
}

func TestSidedCommandsDispatch(t *testing.T) {
	ctrl := newFakeController()
	sh, _ := newTestShell(ctrl)
	ctx := context.Background()

	cases := []struct {
		line string
		want call
	}{
		{"chats telegram", call{name: "chats", side: bridge.SideTelegram}},
		{"open discord d2", call{name: "open", side: bridge.SideDiscord, arg: "d2"}},
		{"pick telegram m1", call{name: "pick", side: bridge.SideTelegram, arg: "m1"}},
		{"forward telegram", call{name: "forward", side: bridge.SideTelegram}},
		{"logout discord", call{name: "logout", side: bridge.SideDiscord}},
	}
	for _, tc := range cases {
		sh.Execute(ctx, tc.line)
		if got := ctrl.last(); got != tc.want {
			t.Errorf("%q dispatched as %+v, want %+v", tc.line, got, tc.want)
		}
	}
}

func TestUnknownSideRejectedBeforeDispatch(t *testing.T) {
	ctrl := newFakeController()
	sh, out := newTestShell(ctrl)

	sh.Execute(context.Background(), "forward slack")

	if len(ctrl.calls) != 0 {
		t.Errorf("bad side still dispatched: %+v", ctrl.calls)
	}
	if !strings.Contains(out.String(), "unknown side") {
		t.Errorf("output = %q, want unknown-side error", out.String())
	}
}

func TestCommandErrorPrintedNotFatal(t *testing.T) {
	ctrl := newFakeController()
	ctrl.err = errors.New("no destination conversation selected")
	sh, out := newTestShell(ctrl)

	if exit := sh.Execute(context.Background(), "forward telegram"); exit {
		t.Error("a failing command should not exit the shell")
	}
	if !strings.Contains(out.String(), "no destination conversation selected") {
		t.Errorf("output = %q, want the error text", out.String())
	}
}

func TestQuitExits(t *testing.T) {
	sh, _ := newTestShell(newFakeController())
	if !sh.Execute(context.Background(), "quit") {
		t.Error("quit should exit the shell")
	}
}

func TestSecretsNeverLogged(t *testing.T) {
	core, logged := observer.New(zap.InfoLevel)
	ctrl := newFakeController()
	var out strings.Builder
	sh := New(ctrl, bus.New(), strings.NewReader(""), &out, zap.New(core))

	sh.Execute(context.Background(), "login telegram +15551234567 12345 supersecret")
	sh.Execute(context.Background(), "password hunter2")

	for _, entry := range logged.All() {
		text := entry.Message
		for _, f := range entry.Context {
			text += " " + f.String
		}
		for _, secret := range []string{"supersecret", "hunter2", "15551234567"} {
			if strings.Contains(text, secret) {
				t.Errorf("log entry %q leaks secret %q", text, secret)
			}
		}
	}
}

func TestEventLoopRendersBusEvents(t *testing.T) {
	b := bus.New()
	var out syncBuilder
	sh := New(newFakeController(), b, strings.NewReader(""), &out, zap.NewNop())
	sh.Start(context.Background())
	defer sh.Stop()

	b.Publish(bus.Event{
		Kind:      bridge.EventConnected,
		Timestamp: time.Now(),
		Payload:   bridge.SideChange{Side: bridge.SideTelegram},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if strings.Contains(out.String(), "[telegram] connected") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("event never rendered, output = %q", out.String())
}

func TestRenderEvent(t *testing.T) {
	cases := []struct {
		evt  bus.Event
		want string
	}{
		{
			bus.Event{Kind: bridge.EventChallengeRequired, Payload: bridge.ChallengeRequest{Side: bridge.SideTelegram, Kind: platform.ChallengePassword}},
			`[telegram] two-factor-password required (use "password")`,
		},
		{
			bus.Event{Kind: bridge.EventForwardFailed, Payload: bridge.ForwardReport{From: bridge.SideTelegram, To: bridge.SideDiscord, Reason: "session expired on discord"}},
			"[telegram -> discord] forward failed: session expired on discord",
		},
		{
			bus.Event{Kind: bridge.EventMessagesLoaded, Payload: bridge.MessageList{Side: bridge.SideDiscord, ConversationID: "d2", Messages: []platform.MessageSummary{{ID: "m1", Preview: "hi"}}}},
			"[discord] 1 messages in d2\n  m1  hi",
		},
		{
			bus.Event{Kind: "bridge.someday", Payload: 42},
			"bridge.someday",
		},
	}
	for _, tc := range cases {
		if got := RenderEvent(tc.evt); got != tc.want {
			t.Errorf("RenderEvent(%s) = %q, want %q", tc.evt.Kind, got, tc.want)
		}
	}
}

// syncBuilder is a strings.Builder safe for the renderer goroutine.
type syncBuilder struct {
	mu sync.Mutex
	b  strings.Builder
}

func (s *syncBuilder) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuilder) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}
