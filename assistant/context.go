package assistant

import (
	"time"

	"github.com/spektr-org/vizon/schema"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// ChatContext is the table a conversation is about plus its transcript.
// History only grows; Reset starts a new conversation for a new table.
// A ChatContext is not safe for concurrent use; sessions serialise access.
type ChatContext struct {
	Table   *schema.Table
	history []Message
}

// NewChatContext starts an empty conversation about t.
func NewChatContext(t *schema.Table) *ChatContext {
	return &ChatContext{Table: t}
}

// History returns a copy of the transcript in order.
func (c *ChatContext) History() []Message {
	if c == nil {
		return nil
	}
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Len returns the number of messages.
func (c *ChatContext) Len() int {
	if c == nil {
		return 0
	}
	return len(c.history)
}

// Replay appends previously persisted messages, e.g. after a restart.
func (c *ChatContext) Replay(msgs []Message) {
	c.history = append(c.history, msgs...)
}

// Reset points the context at a new table and clears the transcript.
func (c *ChatContext) Reset(t *schema.Table) {
	c.Table = t
	c.history = nil
}

// record appends one question/answer exchange.
func (c *ChatContext) record(question, answer string, at time.Time) {
	c.history = append(c.history,
		Message{Role: RoleUser, Content: question, At: at},
		Message{Role: RoleAssistant, Content: answer, At: at},
	)
}
