package telegram

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"

	tdsession "github.com/gotd/td/session"
	tdclient "github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/pyatkov/telecord/internal/creds"
	"github.com/pyatkov/telecord/internal/platform"
)

// DialMTProto returns a Dialer backed by gotd/td. The wire session is
// stored next to the account's credential record so a later run can
// reconnect without a fresh challenge.
func DialMTProto(base string) Dialer {
	return func(ctx context.Context, c platform.Credentials) (Client, error) {
		apiID, err := strconv.Atoi(c.APIID)
		if err != nil {
			return nil, &platform.AuthError{Reason: "api id must be numeric"}
		}
		sessionPath, err := creds.MTProtoSessionPath(base, c.AccountID)
		if err != nil {
			return nil, &platform.AuthError{Reason: err.Error()}
		}

		cl := tdclient.NewClient(apiID, c.APIHash, tdclient.Options{
			SessionStorage: &tdsession.FileStorage{Path: sessionPath},
		})

		// gotd wants the client used from inside Run; park the closure
		// on the context and drive the client from our own calls.
		runCtx, cancel := context.WithCancel(context.Background())
		ready := make(chan struct{})
		runDone := make(chan error, 1)
		go func() {
			runDone <- cl.Run(runCtx, func(ctx context.Context) error {
				close(ready)
				<-ctx.Done()
				return ctx.Err()
			})
		}()

		select {
		case <-ready:
		case err := <-runDone:
			cancel()
			return nil, &platform.TransportError{Op: "connect", Err: err}
		case <-ctx.Done():
			cancel()
			<-runDone
			return nil, &platform.TransportError{Op: "connect", Err: ctx.Err()}
		}

		return &mtClient{
			client:  cl,
			phone:   c.Phone,
			cancel:  cancel,
			runDone: runDone,
			peers:   make(map[string]tg.InputPeerClass),
		}, nil
	}
}

type mtClient struct {
	client   *tdclient.Client
	phone    string
	codeHash string
	cancel   context.CancelFunc
	runDone  chan error

	mu    sync.Mutex
	peers map[string]tg.InputPeerClass
}

func (c *mtClient) Authorized(ctx context.Context) (bool, error) {
	status, err := c.client.Auth().Status(ctx)
	if err != nil {
		return false, classify("auth status", err)
	}
	return status.Authorized, nil
}

func (c *mtClient) RequestCode(ctx context.Context) error {
	sent, err := c.client.Auth().SendCode(ctx, c.phone, auth.SendCodeOptions{})
	if err != nil {
		return classifyAuth("invalid phone number", err)
	}
	code, ok := sent.(*tg.AuthSentCode)
	if !ok {
		return &platform.TransportError{Op: "send code", Err: fmt.Errorf("unexpected response %T", sent)}
	}
	c.codeHash = code.PhoneCodeHash
	return nil
}

func (c *mtClient) SubmitCode(ctx context.Context, code string) (bool, error) {
	_, err := c.client.Auth().SignIn(ctx, c.phone, code, c.codeHash)
	if errors.Is(err, auth.ErrPasswordAuthNeeded) {
		return true, nil
	}
	if err != nil {
		return false, classifyAuth("invalid verification code", err)
	}
	return false, nil
}

func (c *mtClient) SubmitPassword(ctx context.Context, password string) error {
	if _, err := c.client.Auth().Password(ctx, password); err != nil {
		return classifyAuth("invalid two-factor password", err)
	}
	return nil
}

func (c *mtClient) Conversations(ctx context.Context) ([]platform.Conversation, error) {
	res, err := c.client.API().MessagesGetDialogs(ctx, &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      100,
	})
	if err != nil {
		return nil, classify("list dialogs", err)
	}

	var (
		dialogs []tg.DialogClass
		chats   []tg.ChatClass
		users   []tg.UserClass
	)
	switch d := res.(type) {
	case *tg.MessagesDialogs:
		dialogs, chats, users = d.Dialogs, d.Chats, d.Users
	case *tg.MessagesDialogsSlice:
		dialogs, chats, users = d.Dialogs, d.Chats, d.Users
	default:
		return nil, &platform.TransportError{Op: "list dialogs", Err: fmt.Errorf("unexpected response %T", res)}
	}

	userByID := make(map[int64]*tg.User)
	for _, u := range users {
		if user, ok := u.(*tg.User); ok {
			userByID[user.ID] = user
		}
	}
	chatByID := make(map[int64]*tg.Chat)
	channelByID := make(map[int64]*tg.Channel)
	for _, ch := range chats {
		switch v := ch.(type) {
		case *tg.Chat:
			chatByID[v.ID] = v
		case *tg.Channel:
			channelByID[v.ID] = v
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var out []platform.Conversation
	for _, dc := range dialogs {
		dlg, ok := dc.(*tg.Dialog)
		if !ok {
			continue
		}
		switch p := dlg.Peer.(type) {
		case *tg.PeerUser:
			user, ok := userByID[p.UserID]
			if !ok {
				continue
			}
			id := "user:" + strconv.FormatInt(user.ID, 10)
			c.peers[id] = &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			out = append(out, platform.Conversation{ID: id, Name: userName(user), Kind: platform.KindDirect})
		case *tg.PeerChat:
			chat, ok := chatByID[p.ChatID]
			if !ok {
				continue
			}
			id := "chat:" + strconv.FormatInt(chat.ID, 10)
			c.peers[id] = &tg.InputPeerChat{ChatID: chat.ID}
			out = append(out, platform.Conversation{ID: id, Name: chat.Title, Kind: platform.KindGroup})
		case *tg.PeerChannel:
			channel, ok := channelByID[p.ChannelID]
			if !ok {
				continue
			}
			id := "channel:" + strconv.FormatInt(channel.ID, 10)
			c.peers[id] = &tg.InputPeerChannel{ChannelID: channel.ID, AccessHash: channel.AccessHash}
			kind := platform.KindGroup
			if channel.Broadcast {
				kind = platform.KindChannel
			}
			out = append(out, platform.Conversation{ID: id, Name: channel.Title, Kind: kind})
		}
	}
	return out, nil
}

func (c *mtClient) History(ctx context.Context, conversationID string, limit int) ([]platform.MessageSummary, error) {
	msgs, err := c.history(ctx, conversationID, limit)
	if err != nil {
		return nil, err
	}
	var out []platform.MessageSummary
	for _, m := range msgs {
		if m.Message == "" {
			continue
		}
		out = append(out, platform.MessageSummary{
			ID:      strconv.Itoa(m.ID),
			Preview: platform.Preview(m.Message),
		})
	}
	return out, nil
}

func (c *mtClient) Message(ctx context.Context, conversationID, messageID string) (string, error) {
	wantID, err := strconv.Atoi(messageID)
	if err != nil {
		return "", platform.ErrNotFound
	}
	msgs, err := c.history(ctx, conversationID, 100)
	if err != nil {
		return "", err
	}
	for _, m := range msgs {
		if m.ID == wantID && m.Message != "" {
			return m.Message, nil
		}
	}
	return "", platform.ErrNotFound
}

func (c *mtClient) Send(ctx context.Context, conversationID, text string) error {
	peer, ok := c.peer(conversationID)
	if !ok {
		return platform.ErrNotFound
	}
	_, err := c.client.API().MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     peer,
		Message:  text,
		RandomID: rand.Int63(),
	})
	if err != nil {
		return classify("send message", err)
	}
	return nil
}

func (c *mtClient) LogOut(ctx context.Context) error {
	_, err := c.client.API().AuthLogOut(ctx)
	return err
}

func (c *mtClient) Close() error {
	c.cancel()
	<-c.runDone
	return nil
}

func (c *mtClient) history(ctx context.Context, conversationID string, limit int) ([]*tg.Message, error) {
	peer, ok := c.peer(conversationID)
	if !ok {
		return nil, platform.ErrNotFound
	}
	res, err := c.client.API().MessagesGetHistory(ctx, &tg.MessagesGetHistoryRequest{
		Peer:  peer,
		Limit: limit,
	})
	if err != nil {
		return nil, classify("load history", err)
	}

	var raw []tg.MessageClass
	switch m := res.(type) {
	case *tg.MessagesMessages:
		raw = m.Messages
	case *tg.MessagesMessagesSlice:
		raw = m.Messages
	case *tg.MessagesChannelMessages:
		raw = m.Messages
	default:
		return nil, &platform.TransportError{Op: "load history", Err: fmt.Errorf("unexpected response %T", res)}
	}

	var out []*tg.Message
	for _, mc := range raw {
		if m, ok := mc.(*tg.Message); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *mtClient) peer(conversationID string) (tg.InputPeerClass, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.peers[conversationID]
	return p, ok
}

func userName(u *tg.User) string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Username != "" {
		return "@" + u.Username
	}
	return "user " + strconv.FormatInt(u.ID, 10)
}

// classify maps gotd errors onto the shared taxonomy.
func classify(op string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &platform.RateLimitError{RetryAfter: d}
	}
	if tgerr.Is(err, "AUTH_KEY_UNREGISTERED", "SESSION_REVOKED", "USER_DEACTIVATED") {
		return platform.ErrNotAuthenticated
	}
	return &platform.TransportError{Op: op, Err: err}
}

// classifyAuth is classify for the login steps, where a plain RPC error
// means the credentials or challenge response were wrong.
func classifyAuth(reason string, err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &platform.RateLimitError{RetryAfter: d}
	}
	var rpcErr *tgerr.Error
	if errors.As(err, &rpcErr) {
		return &platform.AuthError{Reason: reason}
	}
	return &platform.TransportError{Op: "sign in", Err: err}
}
