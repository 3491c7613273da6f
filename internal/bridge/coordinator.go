// Package bridge holds the coordinator: the single owner of both
// platform sessions and both selection cursors. A presentation shell
// calls its operations and watches the bus; it holds no state of its
// own and needs no platform-specific error knowledge.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyatkov/telecord/internal/bus"
	"github.com/pyatkov/telecord/internal/creds"
	"github.com/pyatkov/telecord/internal/platform"
)

// Forward precondition errors. Neither ever reaches the destination
// session; the send is not attempted.
var (
	ErrNoConversationSelected = errors.New("no destination conversation selected")
	ErrNoStagedMessage        = errors.New("no message staged for forwarding")
)

// side bundles everything the coordinator owns for one platform. mu
// guards the cursor and the bookkeeping fields; it is never held across
// a network call.
type side struct {
	name    Side
	mu      sync.Mutex
	sess    platform.Session
	cursor  Cursor
	busy    bool
	cancel  context.CancelFunc
	pending platform.Credentials
}

// Coordinator orchestrates the two sides: session lifecycle, selection
// cursors, and the forward operation. The two sides proceed fully
// independently; the one place state crosses sides is the message
// staging handoff, which locks both sides in fixed telegram-then-discord
// order.
type Coordinator struct {
	telegram *side
	discord  *side
	store    *creds.Store
	bus      *bus.Bus
	logger   *zap.Logger
	limit    int
}

// New creates a coordinator over the two sessions. limit caps
// recent-message listings.
func New(tg, dc platform.Session, store *creds.Store, b *bus.Bus, limit int, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		telegram: &side{name: SideTelegram, sess: tg},
		discord:  &side{name: SideDiscord, sess: dc},
		store:    store,
		bus:      b,
		logger:   logger,
		limit:    limit,
	}
}

// Login drives a side's session toward Authenticated. It either finishes
// (Connected event, credentials persisted), suspends on a challenge
// (ChallengeRequired event, resume via SubmitChallenge), or fails
// terminally (LoginFailed event, side back on Disconnected). A second
// Login while one is still on the wire is rejected.
func (c *Coordinator) Login(ctx context.Context, sd Side, credentials platform.Credentials) error {
	s := c.side(sd)
	opCtx, err := c.beginOp(ctx, s)
	if err != nil {
		return err
	}
	defer c.endOp(s)

	s.mu.Lock()
	s.pending = credentials
	s.mu.Unlock()

	res, err := s.sess.Connect(opCtx, credentials)
	if err != nil {
		c.loginFailed(sd, err)
		return err
	}
	return c.advanceLogin(sd, res)
}

// SubmitChallenge resumes a login suspended on a verification step.
func (c *Coordinator) SubmitChallenge(ctx context.Context, sd Side, kind platform.ChallengeKind, response string) error {
	s := c.side(sd)
	opCtx, err := c.beginOp(ctx, s)
	if err != nil {
		return err
	}
	defer c.endOp(s)

	res, err := s.sess.SubmitChallenge(opCtx, kind, response)
	if err != nil {
		if errors.Is(err, platform.ErrChallengeOrder) {
			return err // flow still suspended; not a login failure
		}
		var rl *platform.RateLimitError
		if errors.As(err, &rl) {
			return err
		}
		c.loginFailed(sd, err)
		return err
	}
	return c.advanceLogin(sd, res)
}

// Logout disconnects the side, clears its cursor and stored secrets, and
// always succeeds: a failed remote revoke is logged, not surfaced,
// because the local goal is achieved either way. Any in-flight operation
// on the side is cancelled.
func (c *Coordinator) Logout(ctx context.Context, sd Side) {
	s := c.side(sd)

	s.mu.Lock()
	cancel := s.cancel
	account := s.pending.AccountID
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	s.sess.Disconnect(ctx)

	s.mu.Lock()
	s.cursor.Clear()
	s.pending = platform.Credentials{}
	s.mu.Unlock()

	if account != "" {
		var err error
		if sd == SideDiscord {
			err = c.store.ClearToken(account)
		} else {
			err = c.store.Clear(account)
		}
		if err != nil {
			c.logger.Warn("failed to clear credentials", zap.String("side", string(sd)), zap.Error(err))
		}
	}

	c.publish(EventDisconnected, SideChange{Side: sd})
}

// LoadConversations fetches the side's conversation listing. Ordering is
// whatever the platform returned; nothing is cached.
func (c *Coordinator) LoadConversations(ctx context.Context, sd Side) ([]platform.Conversation, error) {
	s := c.side(sd)
	opCtx, err := c.beginOp(ctx, s)
	if err != nil {
		return nil, err
	}
	defer c.endOp(s)

	list, err := s.sess.Conversations(opCtx)
	if err != nil {
		return nil, err
	}
	c.publish(EventConversationsLoaded, ConversationList{Side: sd, Conversations: list})
	return list, nil
}

// SelectConversation points the side's cursor at a conversation and
// loads its recent messages as a side effect.
func (c *Coordinator) SelectConversation(ctx context.Context, sd Side, conversationID string) error {
	s := c.side(sd)
	opCtx, err := c.beginOp(ctx, s)
	if err != nil {
		return err
	}
	defer c.endOp(s)

	s.mu.Lock()
	s.cursor.SetConversation(conversationID)
	s.mu.Unlock()

	msgs, err := s.sess.RecentMessages(opCtx, conversationID, c.limit)
	if err != nil {
		return err
	}
	c.publish(EventMessagesLoaded, MessageList{Side: sd, ConversationID: conversationID, Messages: msgs})
	return nil
}

// SelectMessage resolves the message's full text and stages it on the
// opposite side's cursor: picking a message on one platform readies it
// for sending to the other. A later selection overwrites an earlier one.
func (c *Coordinator) SelectMessage(ctx context.Context, sd Side, messageID string) error {
	s := c.side(sd)
	opCtx, err := c.beginOp(ctx, s)
	if err != nil {
		return err
	}
	defer c.endOp(s)

	s.mu.Lock()
	conversationID, ok := s.cursor.ConversationID()
	s.mu.Unlock()
	if !ok {
		return ErrNoConversationSelected
	}

	text, err := s.sess.FullMessage(opCtx, conversationID, messageID)
	if err != nil {
		return err
	}

	c.stage(sd, text)
	c.publish(EventMessageStaged, StagedMessage{Side: sd, Text: text})
	return nil
}

// Forward sends the text staged from one side into the conversation
// selected on the other. Preconditions are checked before anything goes
// on the wire. A rate limit buys exactly one automatic retry after the
// indicated delay; a second one is a hard failure, as is a session that
// expired mid-call. The staged text survives success so the operator may
// forward it again.
func (c *Coordinator) Forward(ctx context.Context, from Side) error {
	to := from.Opposite()
	dst := c.side(to)

	dst.mu.Lock()
	if dst.busy {
		dst.mu.Unlock()
		return platform.ErrAlreadyInProgress
	}
	if dst.sess.State() != platform.Authenticated {
		dst.mu.Unlock()
		return platform.ErrNotAuthenticated
	}
	if !dst.cursor.CanForwardAsDestination() {
		dst.mu.Unlock()
		return ErrNoConversationSelected
	}
	if !dst.cursor.CanForwardAsSource() {
		dst.mu.Unlock()
		return ErrNoStagedMessage
	}
	conversationID, _ := dst.cursor.ConversationID()
	text, _ := dst.cursor.StagedText()
	opCtx, cancel := context.WithCancel(ctx)
	dst.busy = true
	dst.cancel = cancel
	dst.mu.Unlock()
	defer c.endOp(dst)

	report := ForwardReport{
		RequestID:      uuid.NewString(),
		From:           from,
		To:             to,
		ConversationID: conversationID,
	}
	c.logger.Info("forwarding message",
		zap.String("request_id", report.RequestID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("conversation", conversationID))

	err := dst.sess.Send(opCtx, conversationID, text)
	var rl *platform.RateLimitError
	if errors.As(err, &rl) {
		c.logger.Info("rate limited, retrying once",
			zap.String("request_id", report.RequestID),
			zap.Duration("retry_after", rl.RetryAfter))
		select {
		case <-time.After(rl.RetryAfter):
		case <-opCtx.Done():
			return c.forwardFailed(report, opCtx.Err())
		}
		err = dst.sess.Send(opCtx, conversationID, text)
		if errors.As(err, &rl) {
			return c.forwardFailed(report, err)
		}
	}
	if errors.Is(err, platform.ErrNotAuthenticated) {
		return c.forwardFailed(report, errors.New("session expired on "+string(to)))
	}
	if err != nil {
		return c.forwardFailed(report, err)
	}

	c.publish(EventForwardSucceeded, report)
	return nil
}

// Resume attempts to restore both sides from a stored credential
// record: the preferred account when set and present, else the first
// stored one. Each side resumes independently; a bad secret degrades
// that side to Disconnected via the usual LoginFailed event and never
// aborts startup.
func (c *Coordinator) Resume(ctx context.Context, preferredAccount string) {
	rec, err := c.store.ResumeRecord(preferredAccount)
	if err != nil {
		return
	}

	var wg sync.WaitGroup
	if rec.Phone != "" && rec.APIID != "" && rec.APIHash != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Login(ctx, SideTelegram, platform.Credentials{
				AccountID: rec.AccountID,
				Phone:     rec.Phone,
				APIID:     rec.APIID,
				APIHash:   rec.APIHash,
			})
		}()
	}
	if rec.DiscordToken != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Login(ctx, SideDiscord, platform.Credentials{
				AccountID: rec.AccountID,
				Token:     rec.DiscordToken,
			})
		}()
	}
	wg.Wait()
}

// Shutdown disconnects both sessions without touching stored secrets.
func (c *Coordinator) Shutdown(ctx context.Context) {
	c.telegram.sess.Disconnect(ctx)
	c.discord.sess.Disconnect(ctx)
}

func (c *Coordinator) side(sd Side) *side {
	if sd == SideDiscord {
		return c.discord
	}
	return c.telegram
}

// beginOp marks the side busy for the duration of one network
// operation. The returned context is cancelled by Logout as well as by
// the caller's own context.
func (c *Coordinator) beginOp(ctx context.Context, s *side) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, platform.ErrAlreadyInProgress
	}
	opCtx, cancel := context.WithCancel(ctx)
	s.busy = true
	s.cancel = cancel
	return opCtx, nil
}

func (c *Coordinator) endOp(s *side) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.busy = false
	s.mu.Unlock()
}

// advanceLogin turns a connect result into the matching event.
func (c *Coordinator) advanceLogin(sd Side, res platform.ConnectResult) error {
	switch res.State {
	case platform.Authenticated:
		c.persistCredentials(sd)
		c.publish(EventConnected, SideChange{Side: sd})
		return nil
	default:
		c.publish(EventChallengeRequired, ChallengeRequest{Side: sd, Kind: res.Challenge})
		return nil
	}
}

func (c *Coordinator) loginFailed(sd Side, err error) {
	c.logger.Warn("login failed", zap.String("side", string(sd)), zap.Error(err))
	c.publish(EventLoginFailed, LoginFailure{Side: sd, Reason: err.Error()})
}

// persistCredentials merges this side's secrets into the account record.
// A persistence failure loses only the remember-me aspect: the session
// stays authenticated and the failure is surfaced on the bus.
func (c *Coordinator) persistCredentials(sd Side) {
	s := c.side(sd)
	s.mu.Lock()
	pending := s.pending
	s.mu.Unlock()
	if pending.AccountID == "" {
		return
	}

	rec, err := c.store.Load(pending.AccountID)
	if err != nil {
		rec = &creds.Record{AccountID: pending.AccountID}
	}
	if sd == SideDiscord {
		rec.DiscordToken = pending.Token
	} else {
		rec.Phone = pending.Phone
		rec.APIID = pending.APIID
		rec.APIHash = pending.APIHash
	}
	if err := c.store.Save(rec); err != nil {
		c.logger.Warn("failed to persist credentials", zap.String("side", string(sd)), zap.Error(err))
		c.publish(EventStoreFailed, LoginFailure{Side: sd, Reason: err.Error()})
	}
}

func (c *Coordinator) forwardFailed(report ForwardReport, err error) error {
	report.Reason = err.Error()
	c.logger.Warn("forward failed", zap.String("request_id", report.RequestID), zap.Error(err))
	c.publish(EventForwardFailed, report)
	return err
}

// stage writes text onto the cursor opposite from. Both side locks are
// taken in fixed telegram-then-discord order; this is the only operation
// that ever holds both.
func (c *Coordinator) stage(from Side, text string) {
	c.telegram.mu.Lock()
	c.discord.mu.Lock()
	c.side(from.Opposite()).cursor.Stage(text)
	c.discord.mu.Unlock()
	c.telegram.mu.Unlock()
}

func (c *Coordinator) publish(kind string, payload any) {
	c.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: payload})
}
