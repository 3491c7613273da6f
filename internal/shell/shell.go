// Package shell is the interactive front end: a line-oriented command
// loop over the coordinator plus a renderer for bus events. It holds no
// bridge state of its own; everything it prints comes off the bus or
// straight from a command's return value.
package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/pyatkov/telecord/internal/bridge"
	"github.com/pyatkov/telecord/internal/bus"
	"github.com/pyatkov/telecord/internal/platform"
)

// Controller is the slice of the coordinator the shell drives.
type Controller interface {
	Login(ctx context.Context, sd bridge.Side, credentials platform.Credentials) error
	SubmitChallenge(ctx context.Context, sd bridge.Side, kind platform.ChallengeKind, response string) error
	Logout(ctx context.Context, sd bridge.Side)
	LoadConversations(ctx context.Context, sd bridge.Side) ([]platform.Conversation, error)
	SelectConversation(ctx context.Context, sd bridge.Side, conversationID string) error
	SelectMessage(ctx context.Context, sd bridge.Side, messageID string) error
	Forward(ctx context.Context, from bridge.Side) error
}

// Shell reads commands from in and writes everything user-facing to out.
type Shell struct {
	ctrl   Controller
	bus    *bus.Bus
	logger *zap.Logger
	in     io.Reader
	out    io.Writer

	mu          sync.Mutex
	lastAccount string
	exit        func()

	wg   sync.WaitGroup
	quit chan struct{}
	once sync.Once
}

// New creates a shell over the controller. in is usually os.Stdin and
// out os.Stdout.
func New(ctrl Controller, b *bus.Bus, in io.Reader, out io.Writer, logger *zap.Logger) *Shell {
	return &Shell{
		ctrl:   ctrl,
		bus:    b,
		logger: logger,
		in:     in,
		out:    out,
		quit:   make(chan struct{}),
	}
}

// OnExit registers a callback invoked when the operator quits the
// shell. Set it before Start.
func (s *Shell) OnExit(fn func()) {
	s.exit = fn
}

// Start launches the event renderer and the read loop. It returns
// immediately; the loops run until Stop or end of input.
func (s *Shell) Start(ctx context.Context) {
	sub := s.bus.Subscribe("bridge.", 64)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer sub.Cancel()
		for {
			select {
			case evt := <-sub.C:
				fmt.Fprintln(s.out, RenderEvent(evt))
			case <-s.quit:
				return
			}
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		scanner := bufio.NewScanner(s.in)
		fmt.Fprint(s.out, "> ")
		for scanner.Scan() {
			select {
			case <-s.quit:
				return
			default:
			}
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				if s.Execute(ctx, line) {
					if s.exit != nil {
						s.exit()
					}
					return
				}
			}
			fmt.Fprint(s.out, "> ")
		}
	}()
}

// Stop ends both loops. The read loop may stay blocked on input until
// the reader is closed, which the caller owns.
func (s *Shell) Stop() {
	s.once.Do(func() { close(s.quit) })
}

// Execute runs one command line and reports whether the shell should
// exit. Errors are printed, not returned; the loop never dies on a bad
// command.
func (s *Shell) Execute(ctx context.Context, line string) (exit bool) {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	// Only the command verb is logged. Arguments carry secrets.
	s.logger.Info("shell command", zap.String("command", cmd))

	var err error
	switch cmd {
	case "login":
		err = s.login(ctx, args)
	case "code":
		err = s.challenge(ctx, platform.ChallengeCode, args)
	case "password":
		err = s.challenge(ctx, platform.ChallengePassword, args)
	case "chats":
		err = s.withSide(args, func(sd bridge.Side) error {
			_, err := s.ctrl.LoadConversations(ctx, sd)
			return err
		})
	case "open":
		err = s.withSideArg(args, func(sd bridge.Side, id string) error {
			return s.ctrl.SelectConversation(ctx, sd, id)
		})
	case "pick":
		err = s.withSideArg(args, func(sd bridge.Side, id string) error {
			return s.ctrl.SelectMessage(ctx, sd, id)
		})
	case "forward":
		err = s.withSide(args, func(sd bridge.Side) error {
			return s.ctrl.Forward(ctx, sd)
		})
	case "logout":
		err = s.withSide(args, func(sd bridge.Side) error {
			s.ctrl.Logout(ctx, sd)
			return nil
		})
	case "help":
		s.printHelp()
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q (try help)", cmd)
	}
	if err != nil {
		fmt.Fprintf(s.out, "error: %v\n", err)
	}
	return false
}

func (s *Shell) login(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: login telegram <phone> <api-id> <api-hash> | login discord <token>")
	}
	switch bridge.Side(args[0]) {
	case bridge.SideTelegram:
		if len(args) != 4 {
			return fmt.Errorf("usage: login telegram <phone> <api-id> <api-hash>")
		}
		phone, apiID, apiHash := args[1], args[2], args[3]
		s.mu.Lock()
		s.lastAccount = phone
		s.mu.Unlock()
		return s.ctrl.Login(ctx, bridge.SideTelegram, platform.Credentials{
			AccountID: phone,
			Phone:     phone,
			APIID:     apiID,
			APIHash:   apiHash,
		})
	case bridge.SideDiscord:
		if len(args) != 2 {
			return fmt.Errorf("usage: login discord <token>")
		}
		s.mu.Lock()
		account := s.lastAccount
		s.mu.Unlock()
		return s.ctrl.Login(ctx, bridge.SideDiscord, platform.Credentials{
			AccountID: account,
			Token:     args[1],
		})
	}
	return fmt.Errorf("unknown side %q", args[0])
}

func (s *Shell) challenge(ctx context.Context, kind platform.ChallengeKind, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s <response>", challengeVerb(kind))
	}
	return s.ctrl.SubmitChallenge(ctx, bridge.SideTelegram, kind, args[0])
}

func (s *Shell) withSide(args []string, fn func(bridge.Side) error) error {
	if len(args) != 1 {
		return fmt.Errorf("expected exactly one side argument")
	}
	sd := bridge.Side(args[0])
	if !sd.Valid() {
		return fmt.Errorf("unknown side %q", args[0])
	}
	return fn(sd)
}

func (s *Shell) withSideArg(args []string, fn func(bridge.Side, string) error) error {
	if len(args) != 2 {
		return fmt.Errorf("expected a side and an id")
	}
	sd := bridge.Side(args[0])
	if !sd.Valid() {
		return fmt.Errorf("unknown side %q", args[0])
	}
	return fn(sd, args[1])
}

func (s *Shell) printHelp() {
	fmt.Fprint(s.out, `commands:
  login telegram <phone> <api-id> <api-hash>
  login discord <token>
  code <verification-code>
  password <two-factor-password>
  chats <side>
  open <side> <conversation-id>
  pick <side> <message-id>
  forward <from-side>
  logout <side>
  quit
`)
}

func challengeVerb(kind platform.ChallengeKind) string {
	if kind == platform.ChallengePassword {
		return "password"
	}
	return "code"
}

// RenderEvent formats a bus event for display. Unknown payload shapes
// fall back to the event kind so a renderer bug never hides an event.
func RenderEvent(evt bus.Event) string {
	switch evt.Kind {
	case bridge.EventConnected:
		if p, ok := evt.Payload.(bridge.SideChange); ok {
			return fmt.Sprintf("[%s] connected", p.Side)
		}
	case bridge.EventDisconnected:
		if p, ok := evt.Payload.(bridge.SideChange); ok {
			return fmt.Sprintf("[%s] disconnected", p.Side)
		}
	case bridge.EventLoginFailed:
		if p, ok := evt.Payload.(bridge.LoginFailure); ok {
			return fmt.Sprintf("[%s] login failed: %s", p.Side, p.Reason)
		}
	case bridge.EventChallengeRequired:
		if p, ok := evt.Payload.(bridge.ChallengeRequest); ok {
			return fmt.Sprintf("[%s] %s required (use %q)", p.Side, p.Kind, challengeVerb(p.Kind))
		}
	case bridge.EventConversationsLoaded:
		if p, ok := evt.Payload.(bridge.ConversationList); ok {
			var b strings.Builder
			fmt.Fprintf(&b, "[%s] %d conversations", p.Side, len(p.Conversations))
			for _, c := range p.Conversations {
				fmt.Fprintf(&b, "\n  %s  %s (%s)", c.ID, c.Name, c.Kind)
			}
			return b.String()
		}
	case bridge.EventMessagesLoaded:
		if p, ok := evt.Payload.(bridge.MessageList); ok {
			var b strings.Builder
			fmt.Fprintf(&b, "[%s] %d messages in %s", p.Side, len(p.Messages), p.ConversationID)
			for _, m := range p.Messages {
				fmt.Fprintf(&b, "\n  %s  %s", m.ID, m.Preview)
			}
			return b.String()
		}
	case bridge.EventMessageStaged:
		if p, ok := evt.Payload.(bridge.StagedMessage); ok {
			return fmt.Sprintf("[%s] staged for %s: %s", p.Side, p.Side.Opposite(), platform.Preview(p.Text))
		}
	case bridge.EventForwardSucceeded:
		if p, ok := evt.Payload.(bridge.ForwardReport); ok {
			return fmt.Sprintf("[%s -> %s] forwarded to %s (request %s)", p.From, p.To, p.ConversationID, p.RequestID)
		}
	case bridge.EventForwardFailed:
		if p, ok := evt.Payload.(bridge.ForwardReport); ok {
			return fmt.Sprintf("[%s -> %s] forward failed: %s", p.From, p.To, p.Reason)
		}
	case bridge.EventStoreFailed:
		if p, ok := evt.Payload.(bridge.LoginFailure); ok {
			return fmt.Sprintf("[%s] connected, but credentials were not saved: %s", p.Side, p.Reason)
		}
	}
	return evt.Kind
}
