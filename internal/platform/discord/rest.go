package discord

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/pyatkov/telecord/internal/platform"
)

// DialREST returns a Dialer backed by discordgo's REST surface. The
// token is validated up front with a cheap identity call so a bad token
// fails the login instead of the first listing.
func DialREST() Dialer {
	return func(ctx context.Context, creds platform.Credentials) (Client, error) {
		s, err := discordgo.New(creds.Token)
		if err != nil {
			return nil, &platform.TransportError{Op: "create client", Err: err}
		}
		if _, err := s.User("@me", discordgo.WithContext(ctx)); err != nil {
			return nil, classify("validate token", err)
		}
		return &restClient{session: s}, nil
	}
}

type restClient struct {
	session *discordgo.Session
}

// Channels lists every text channel of every guild the account is in,
// named "Guild/channel".
func (c *restClient) Channels(ctx context.Context) ([]platform.Conversation, error) {
	guilds, err := c.session.UserGuilds(100, "", "", false, discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("list guilds", err)
	}

	var out []platform.Conversation
	for _, g := range guilds {
		channels, err := c.session.GuildChannels(g.ID, discordgo.WithContext(ctx))
		if err != nil {
			return nil, classify("list channels", err)
		}
		for _, ch := range channels {
			if ch.Type != discordgo.ChannelTypeGuildText {
				continue
			}
			out = append(out, platform.Conversation{
				ID:   ch.ID,
				Name: g.Name + "/" + ch.Name,
				Kind: platform.KindChannel,
			})
		}
	}
	return out, nil
}

func (c *restClient) History(ctx context.Context, channelID string, limit int) ([]platform.MessageSummary, error) {
	msgs, err := c.session.ChannelMessages(channelID, limit, "", "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("load history", err)
	}
	var out []platform.MessageSummary
	for _, m := range msgs {
		if m.Content == "" {
			continue
		}
		out = append(out, platform.MessageSummary{
			ID:      m.ID,
			Preview: platform.Preview(m.Content),
		})
	}
	return out, nil
}

func (c *restClient) Message(ctx context.Context, channelID, messageID string) (string, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("fetch message", err)
	}
	if m.Content == "" {
		return "", platform.ErrNotFound
	}
	return m.Content, nil
}

func (c *restClient) Send(ctx context.Context, channelID, text string) error {
	if _, err := c.session.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx)); err != nil {
		return classify("send message", err)
	}
	return nil
}

func (c *restClient) Close() error {
	return c.session.Close()
}

// classify maps discordgo errors onto the shared taxonomy.
func classify(op string, err error) error {
	var rl *discordgo.RateLimitError
	if errors.As(err, &rl) {
		return &platform.RateLimitError{RetryAfter: rl.RetryAfter}
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusUnauthorized, http.StatusForbidden:
			if op == "validate token" {
				return &platform.AuthError{Reason: "invalid token"}
			}
			return platform.ErrNotAuthenticated
		case http.StatusNotFound:
			return platform.ErrNotFound
		}
	}
	if errors.Is(err, discordgo.ErrUnauthorized) {
		if op == "validate token" {
			return &platform.AuthError{Reason: "invalid token"}
		}
		return platform.ErrNotAuthenticated
	}
	return &platform.TransportError{Op: op, Err: err}
}
