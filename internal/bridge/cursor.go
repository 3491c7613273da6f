package bridge

// Cursor tracks one side's selection: the chosen conversation and the
// text staged for forwarding into it. Pure state, no I/O, no locking of
// its own; the owning side's lock guards it.
type Cursor struct {
	conversationID string
	stagedText     string
	hasStaged      bool
}

// SetConversation records the chosen conversation id.
func (c *Cursor) SetConversation(id string) {
	c.conversationID = id
}

// ConversationID returns the chosen conversation id, if any.
func (c *Cursor) ConversationID() (string, bool) {
	return c.conversationID, c.conversationID != ""
}

// Stage records text awaiting a forward into this side. A later Stage
// overwrites an earlier one: last write wins, by contract.
func (c *Cursor) Stage(text string) {
	c.stagedText = text
	c.hasStaged = true
}

// StagedText returns the staged text, if any.
func (c *Cursor) StagedText() (string, bool) {
	return c.stagedText, c.hasStaged
}

// Clear wipes both the conversation and the staged text.
func (c *Cursor) Clear() {
	c.conversationID = ""
	c.stagedText = ""
	c.hasStaged = false
}

// CanForwardAsDestination reports whether a forward may target this side.
func (c *Cursor) CanForwardAsDestination() bool {
	return c.conversationID != ""
}

// CanForwardAsSource reports whether text staged here is ready to go.
func (c *Cursor) CanForwardAsSource() bool {
	return c.hasStaged
}
