// Package discord implements the platform session for the token side:
// a single static bearer token, no interactive challenge.
package discord

import (
	"context"
	"sync"

	"github.com/pyatkov/telecord/internal/platform"
	"go.uber.org/zap"
)

// Client is the seam to the concrete Discord library.
type Client interface {
	Channels(ctx context.Context) ([]platform.Conversation, error)
	History(ctx context.Context, channelID string, limit int) ([]platform.MessageSummary, error)
	Message(ctx context.Context, channelID, messageID string) (string, error)
	Send(ctx context.Context, channelID, text string) error
	Close() error
}

// Dialer logs in with the bearer token and returns a connected Client.
// A bad token surfaces as *platform.AuthError.
type Dialer func(ctx context.Context, creds platform.Credentials) (Client, error)

// Session is the Discord platform session. With no challenge in the
// flow, Connect goes straight from Disconnected to Authenticated.
type Session struct {
	mu      sync.Mutex
	dial    Dialer
	machine *platform.Machine
	logger  *zap.Logger
	client  Client
}

// NewSession creates a disconnected Discord session.
func NewSession(dial Dialer, machine *platform.Machine, logger *zap.Logger) *Session {
	return &Session{dial: dial, machine: machine, logger: logger}
}

// State returns the session's lifecycle state.
func (s *Session) State() platform.State {
	return s.machine.Current()
}

// Connect dials with the token. Already authenticated is a cached no-op.
func (s *Session) Connect(ctx context.Context, creds platform.Credentials) (platform.ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.machine.Current() == platform.Authenticated {
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
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
	_ = s.machine.Transition(platform.Authenticated)
	return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
}

// SubmitChallenge never applies here; the flow has no suspend points.
func (s *Session) SubmitChallenge(ctx context.Context, kind platform.ChallengeKind, response string) (platform.ConnectResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.machine.Current() == platform.Authenticated {
		return platform.ConnectResult{State: platform.Authenticated, Challenge: platform.ChallengeNone}, nil
	}
	return platform.ConnectResult{}, platform.ErrChallengeOrder
}

// Conversations lists the account's text channels across all guilds.
func (s *Session) Conversations(ctx context.Context) ([]platform.Conversation, error) {
	client, err := s.authedClient()
	if err != nil {
		return nil, err
	}
	return client.Channels(ctx)
}

// RecentMessages lists up to limit messages of a channel, newest first.
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

// Send posts text into a channel.
func (s *Session) Send(ctx context.Context, conversationID, text string) error {
	client, err := s.authedClient()
	if err != nil {
		return err
	}
	return client.Send(ctx, conversationID, text)
}

// Disconnect closes the client. Always succeeds locally.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
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
