package bridge

import "github.com/pyatkov/telecord/internal/platform"

// Event kinds the coordinator publishes. The shell subscribes to the
// "bridge." namespace and renders these; tests subscribe the same way.
const (
	EventConnected           = "bridge.connected"
	EventDisconnected        = "bridge.disconnected"
	EventLoginFailed         = "bridge.login_failed"
	EventChallengeRequired   = "bridge.challenge_required"
	EventConversationsLoaded = "bridge.conversations_loaded"
	EventMessagesLoaded      = "bridge.messages_loaded"
	EventMessageStaged       = "bridge.message_staged"
	EventForwardSucceeded    = "bridge.forward_succeeded"
	EventForwardFailed       = "bridge.forward_failed"
	EventStoreFailed         = "bridge.store_failed"
)

// SideChange is the payload of connected/disconnected events.
type SideChange struct {
	Side Side
}

// LoginFailure reports a terminal login failure for one side.
type LoginFailure struct {
	Side   Side
	Reason string
}

// ChallengeRequest reports that a login is suspended waiting for the
// operator's challenge response.
type ChallengeRequest struct {
	Side Side
	Kind platform.ChallengeKind
}

// ConversationList is the payload of a conversations-loaded event.
type ConversationList struct {
	Side          Side
	Conversations []platform.Conversation
}

// MessageList is the payload of a messages-loaded event.
type MessageList struct {
	Side           Side
	ConversationID string
	Messages       []platform.MessageSummary
}

// StagedMessage reports text staged for forwarding. Side is the source
// the text was fetched from; the text sits on the opposite cursor.
type StagedMessage struct {
	Side Side
	Text string
}

// ForwardReport is the payload of forward outcome events. Reason is
// empty on success.
type ForwardReport struct {
	RequestID      string
	From           Side
	To             Side
	ConversationID string
	Reason         string
}
