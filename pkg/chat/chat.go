package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/pkg/generation"
)

// Chat represents a completed conversation turn: the input history plus the
// generated replies. Like Completion it is never mutated after construction;
// Clone and Meta produce modified copies.
type Chat struct {
	// ID is the unique identifier of this chat
	ID uuid.UUID `json:"id"`

	// CreatedAt is when the chat was created
	CreatedAt time.Time `json:"createdAt"`

	// Messages is the input conversation history
	Messages []Message `json:"messages"`

	// Replies holds the generated messages. For failed chats this is the
	// best-effort reply from the last round before exhaustion.
	Replies []Message `json:"replies"`

	// Metadata holds additional key-value pairs attached by the pipeline
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// StopReason is why the backend stopped generating
	StopReason generation.StopReason `json:"stopReason"`

	// Usage holds token statistics when the backend reports them
	Usage *generation.Usage `json:"usage,omitempty"`

	// Extra carries any additional backend-specific information
	Extra map[string]interface{} `json:"extra,omitempty"`

	// Params are the effective generation parameters used for this request
	Params *generation.GenerateParams `json:"params,omitempty"`

	// Failed indicates the retry ceiling was reached while a validator still
	// demanded another round
	Failed bool `json:"failed"`
}

// All returns the history and the replies as one message list
func (c *Chat) All() []Message {
	all := make([]Message, 0, len(c.Messages)+len(c.Replies))
	all = append(all, c.Messages...)
	all = append(all, c.Replies...)
	return all
}

// Last returns the content of the last reply, or an empty string when there
// are no replies
func (c *Chat) Last() string {
	if len(c.Replies) == 0 {
		return ""
	}
	return c.Replies[len(c.Replies)-1].Content
}

// Clone creates a copy of the chat with its own message lists and maps
func (c *Chat) Clone() *Chat {
	clone := &Chat{
		ID:         c.ID,
		CreatedAt:  c.CreatedAt,
		Messages:   append([]Message(nil), c.Messages...),
		Replies:    append([]Message(nil), c.Replies...),
		StopReason: c.StopReason,
		Params:     c.Params.Clone(),
		Failed:     c.Failed,
	}
	if c.Usage != nil {
		usage := *c.Usage
		clone.Usage = &usage
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]interface{}, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	if c.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(c.Extra))
		for k, v := range c.Extra {
			clone.Extra[k] = v
		}
	}
	return clone
}

// Meta returns a clone of the chat with the given key-value pairs merged into
// its metadata
func (c *Chat) Meta(values map[string]interface{}) *Chat {
	clone := c.Clone()
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]interface{}, len(values))
	}
	for k, v := range values {
		clone.Metadata[k] = v
	}
	return clone
}
