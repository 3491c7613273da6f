// Package platform defines the capability surface the bridge coordinator
// uses to talk to a chat platform. The two implementations (telegram,
// discord) differ wildly in their real protocols but expose the same
// interface; the optional challenge sub-protocol covers the asymmetric
// auth flows.
package platform

import "context"

// PreviewLen is how many characters of a message survive into its
// listing preview.
const PreviewLen = 50

// Credentials is a read-only copy of an account's secret material,
// borrowed from the credential store for the duration of a connect.
type Credentials struct {
	AccountID string
	Phone     string
	APIID     string
	APIHash   string
	Token     string
}

// ChallengeKind identifies an interactive verification step.
type ChallengeKind string

const (
	ChallengeNone     ChallengeKind = "none"
	ChallengeCode     ChallengeKind = "verification-code"
	ChallengePassword ChallengeKind = "two-factor-password"
)

// ConnectResult reports where a connect or challenge submission landed.
// Challenge is set only when State is a waiting state.
type ConnectResult struct {
	State     State
	Challenge ChallengeKind
}

// Conversation is one entry of a conversation listing. Listings are
// ephemeral; ID is only guaranteed to resolve within the session that
// produced it.
type Conversation struct {
	ID   string
	Name string
	Kind ConversationKind
}

// ConversationKind is the membership kind, for platforms that
// distinguish it.
type ConversationKind string

const (
	KindDirect  ConversationKind = "direct"
	KindGroup   ConversationKind = "group"
	KindChannel ConversationKind = "channel"
)

// MessageSummary is one entry of a recent-messages listing, newest
// first. Preview is truncated; the full text is fetched on demand.
type MessageSummary struct {
	ID      string
	Preview string
}

// Session owns one authenticated connection to a platform.
//
// Lifecycle: Disconnected --Connect--> Connecting --> Authenticated, with
// zero or more challenge states in between. Connect after Authenticated
// is a no-op returning the cached result; Connect after a terminal error
// starts over from Disconnected. All other operations require
// Authenticated and fail with ErrNotAuthenticated otherwise.
type Session interface {
	Connect(ctx context.Context, creds Credentials) (ConnectResult, error)
	SubmitChallenge(ctx context.Context, kind ChallengeKind, response string) (ConnectResult, error)
	State() State
	Conversations(ctx context.Context) ([]Conversation, error)
	RecentMessages(ctx context.Context, conversationID string, limit int) ([]MessageSummary, error)
	FullMessage(ctx context.Context, conversationID, messageID string) (string, error)
	Send(ctx context.Context, conversationID, text string) error
	Disconnect(ctx context.Context)
}

// Preview truncates text to PreviewLen characters, marking longer texts
// with an ellipsis.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLen {
		return text
	}
	return string(runes[:PreviewLen]) + "..."
}
