// Package telegram implements the platform session for the side that
// needs the interactive multi-step login: verification code first,
// two-factor password second when the account has one.
package telegram

import (
	"context"
	"sync"

	"github.com/pyatkov/telecord/internal/platform"
	"go.uber.org/zap"
)

// Client is the seam to the concrete MTProto library. The session owns
// the auth sequencing; the client just performs the wire calls.
type Client interface {
	Authorized(ctx context.Context) (bool, error)
	RequestCode(ctx context.Context) error
	// SubmitCode returns passwordNeeded=true when the account has
	// two-factor auth and the flow must continue with SubmitPassword.
	SubmitCode(ctx context.Context, code string) (passwordNeeded bool, err error)
	SubmitPassword(ctx context.Context, password string) error
	Conversations(ctx context.Context) ([]platform.Conversation, error)
	History(ctx context.Context, conversationID string, limit int) ([]platform.MessageSummary, error)
	Message(ctx context.Context, conversationID, messageID string) (string, error)
	Send(ctx context.Context, conversationID, text string) error
	LogOut(ctx context.Context) error
	Close() error
}

// Dialer establishes a connected Client for the given credentials.
type Dialer func(ctx context.Context, creds platform.Credentials) (Client, error)

// Session drives the Telegram auth state machine over a Client.
type Session struct {
	mu      sync.Mutex
	dial    Dialer
	machine *platform.Machine
	logger  *zap.Logger
	client  Client
}

// NewSession creates a disconnected Telegram session.
func NewSession(dial Dialer, machine *platform.Machine, logger *zap.Logger) *Session {
	return &Session{dial: dial, machine: machine, logger: logger}
}

// State returns the session's lifecycle state.
func (s *Session) State() platform.State {
	return s.machine.Current()
}

// Connect dials and either lands on Authenticated (stored wire session
// still valid) or suspends on the verification-code challenge. Calling
// it again mid-flow or after success just reports where the flow stands.
func (s *Session) Connect(ctx context.Context, creds platform.Credentials) (platform.ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.machine.Current() {
	case platform.Authenticated:
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
	case platform.AwaitingCode:
		return platform.ConnectResult{State: platform.AwaitingCode, Challenge: platform.ChallengeCode}, nil
	case platform.AwaitingPassword:
		return platform.ConnectResult{State: platform.AwaitingPassword, Challenge: platform.ChallengePassword}, nil
	}

	if err := s.machine.Transition(platform.Connecting); err != nil {
		return platform.ConnectResult{}, platform.ErrAlreadyInProgress
	}

	client, err := s.dial(ctx, creds)
	if err != nil {
		s.machine.Reset()
		return platform.ConnectResult{}, err
	}
	s.client = client

	authorized, err := client.Authorized(ctx)
	if err != nil {
		s.teardown(err)
		return platform.ConnectResult{}, err
	}
	if authorized {
		_ = s.machine.Transition(platform.Authenticated)
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
	}

	if err := client.RequestCode(ctx); err != nil {
		s.teardown(err)
		return platform.ConnectResult{}, err
	}
	_ = s.machine.Transition(platform.AwaitingCode)
	return platform.ConnectResult{State: platform.AwaitingCode, Challenge: platform.ChallengeCode}, nil
}

// SubmitChallenge resumes a suspended login. The code must come before
// the password; a response for the wrong step is rejected without
// touching the wire.
func (s *Session) SubmitChallenge(ctx context.Context, kind platform.ChallengeKind, response string) (platform.ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.machine.Current()
	if state == platform.Authenticated {
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
	}

	switch {
	case state == platform.AwaitingCode && kind == platform.ChallengeCode:
		passwordNeeded, err := s.client.SubmitCode(ctx, response)
		if err != nil {
			return s.challengeFailed(err)
		}
		if passwordNeeded {
			_ = s.machine.Transition(platform.AwaitingPassword)
			return platform.ConnectResult{State: platform.AwaitingPassword, Challenge: platform.ChallengePassword}, nil
		}
		_ = s.machine.Transition(platform.Authenticated)
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil

	case state == platform.AwaitingPassword && kind == platform.ChallengePassword:
		if err := s.client.SubmitPassword(ctx, response); err != nil {
			return s.challengeFailed(err)
		}
		_ = s.machine.Transition(platform.Authenticated)
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil

	default:
		return platform.ConnectResult{}, platform.ErrChallengeOrder
	}
}

// challengeFailed resolves a failed challenge to Disconnected. Rate
// limits are the exception: the flow stays suspended so the operator can
// retry the same step later.
func (s *Session) challengeFailed(err error) (platform.ConnectResult, error) {
	if _, ok := err.(*platform.RateLimitError); ok {
		return platform.ConnectResult{}, err
	}
	s.teardown(err)
	return platform.ConnectResult{}, err
}

// Conversations lists the account's dialogs. Requires Authenticated.
func (s *Session) Conversations(ctx context.Context) ([]platform.Conversation, error) {
	client, err := s.authedClient()
	if err != nil {
		return nil, err
	}
	return client.Conversations(ctx)
}

// RecentMessages lists up to limit text messages, newest first.
func (s *Session) RecentMessages(ctx context.Context, conversationID string, limit int) ([]platform.MessageSummary, error) {
	client, err := s.authedClient()
	if err != nil {
		return nil, err
	}
	return client.History(ctx, conversationID, limit)
}

// FullMessage resolves a message id to its full text.
func (s *Session) FullMessage(ctx context.Context, conversationID, messageID string) (string, error) {
	client, err := s.authedClient()
	if err != nil {
		return "", err
	}
	return client.Message(ctx, conversationID, messageID)
}

// Send posts text into a conversation.
func (s *Session) Send(ctx context.Context, conversationID, text string) error {
	client, err := s.authedClient()
	if err != nil {
		return err
	}
	return client.Send(ctx, conversationID, text)
}

// Disconnect revokes the wire session best-effort and releases the
// client. It always succeeds locally.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		if err := s.client.LogOut(ctx); err != nil {
			s.logger.Warn("remote logout failed", zap.Error(err))
		}
		if err := s.client.Close(); err != nil {
			s.logger.Warn("client close failed", zap.Error(err))
		}
		s.client = nil
	}
	s.machine.Reset()
}

func (s *Session) authedClient() (Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() != platform.Authenticated || s.client == nil {
		return nil, platform.ErrNotAuthenticated
	}
	return s.client, nil
}

func (s *Session) teardown(cause error) {
	s.logger.Warn("telegram session reset", zap.Error(cause))
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("client close failed", zap.Error(err))
		}
		s.client = nil
	}
	s.machine.Reset()
}
