package chat

import (
	"context"
	"sync"

	"github.com/wehubfusion/Daedalus/pkg/completion"
	"github.com/wehubfusion/Daedalus/pkg/generation"
	"github.com/wehubfusion/Daedalus/pkg/parsing"
)

// UntilCallback inspects a generated reply and returns true when another
// generation round is required
type UntilCallback func(reply string) bool

// ThenCallback is passed each finalized chat after the Map stage. It may
// return a replacement chat; returning nil keeps the original.
type ThenCallback func(ctx context.Context, chat *Chat) (*Chat, error)

// MapCallback is passed the full list of finalized chats and returns the list
// to use from that point on
type MapCallback func(ctx context.Context, chats []*Chat) ([]*Chat, error)

// WatchCallback is notified with newly finalized chats exactly once per chat
type WatchCallback func(ctx context.Context, chats []*Chat) error

// Pipeline is the conversation-history pipeline. It delegates all execution
// to the shared completion engine: the history is rendered to a transcript,
// callbacks are adapted between chat and completion shapes, and results come
// back as Chat records.
type Pipeline struct {
	inner     *completion.Pipeline
	generator generation.Generator
	messages  []Message

	mu        sync.Mutex
	histories map[string][]Message
}

// New creates a chat pipeline seeded with the given history
func New(generator generation.Generator, messages []Message, opts ...completion.Option) *Pipeline {
	history := append([]Message(nil), messages...)
	return &Pipeline{
		inner:     completion.New(generator, RenderTranscript(history), opts...),
		generator: generator,
		messages:  history,
		histories: make(map[string][]Message),
	}
}

// Add appends messages to the history before generation
func (p *Pipeline) Add(messages ...Message) *Pipeline {
	p.messages = append(p.messages, messages...)
	p.inner.SetText(RenderTranscript(p.messages))
	return p
}

// Messages returns the current history
func (p *Pipeline) Messages() []Message {
	return append([]Message(nil), p.messages...)
}

// With assigns a parameter overlay, mirroring completion.Pipeline.With
func (p *Pipeline) With(params *generation.GenerateParams) *Pipeline {
	p.inner = p.inner.With(params)
	return p
}

// Meta merges the given key-value pairs into the pipeline metadata
func (p *Pipeline) Meta(values map[string]interface{}) *Pipeline {
	p.inner.Meta(values)
	return p
}

// Until registers a validator over the generated reply
func (p *Pipeline) Until(callback UntilCallback, opts ...completion.UntilOption) *Pipeline {
	p.inner.Until(func(text string) bool {
		return callback(text)
	}, opts...)
	return p
}

// UntilParsedAs requires the given models to parse from the generated reply
// before a request finalizes
func (p *Pipeline) UntilParsedAs(models []parsing.Model, opts ...completion.UntilOption) *Pipeline {
	p.inner.UntilParsedAs(models, opts...)
	return p
}

// Watch registers a watch callback under the given registration key
func (p *Pipeline) Watch(key string, callback WatchCallback) *Pipeline {
	p.inner.Watch(key, func(ctx context.Context, completions []*completion.Completion) error {
		return callback(ctx, p.toChats(completions))
	})
	return p
}

// Then registers a per-chat post-processing callback
func (p *Pipeline) Then(callback ThenCallback) *Pipeline {
	p.inner.Then(func(ctx context.Context, c *completion.Completion) (*completion.Completion, error) {
		replaced, err := callback(ctx, p.toChat(c))
		if err != nil || replaced == nil {
			return nil, err
		}
		return p.fromChat(replaced), nil
	})
	return p
}

// Map registers a whole-list post-processing callback
func (p *Pipeline) Map(callback MapCallback) *Pipeline {
	p.inner.Map(func(ctx context.Context, completions []*completion.Completion) ([]*completion.Completion, error) {
		chats, err := callback(ctx, p.toChats(completions))
		if err != nil {
			return nil, err
		}
		replaced := make([]*completion.Completion, len(chats))
		for i, chat := range chats {
			replaced[i] = p.fromChat(chat)
		}
		return replaced, nil
	})
	return p
}

// Run executes the pipeline once and returns the chat
func (p *Pipeline) Run(ctx context.Context, opts ...completion.RunOption) (*Chat, error) {
	c, err := p.inner.Run(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return p.toChat(c), nil
}

// RunMany executes the pipeline count times with the same history
func (p *Pipeline) RunMany(ctx context.Context, count int, opts ...completion.RunOption) ([]*Chat, error) {
	completions, err := p.inner.RunMany(ctx, count, opts...)
	if err != nil {
		return nil, err
	}
	return p.toChats(completions), nil
}

// RunBatch executes the pipeline across multiple histories. Each history is
// appended to the pipeline's own history and the batch runs in lockstep
// rounds through the shared engine.
func (p *Pipeline) RunBatch(ctx context.Context, histories [][]Message, opts ...completion.RunOption) ([]*Chat, error) {
	texts := make([]string, len(histories))
	base := RenderTranscript(p.messages)

	p.mu.Lock()
	for i, history := range histories {
		texts[i] = RenderTranscript(history)
		full := append(append([]Message(nil), p.messages...), history...)
		p.histories[base+texts[i]] = full
	}
	p.mu.Unlock()

	completions, err := p.inner.RunBatch(ctx, texts, opts...)
	if err != nil {
		return nil, err
	}
	return p.toChats(completions), nil
}

// historyFor resolves the input history of a completion. Rendering is
// deterministic, so equal transcripts always map to equal histories.
func (p *Pipeline) historyFor(transcript string) []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if history, ok := p.histories[transcript]; ok {
		return history
	}
	return p.messages
}

func (p *Pipeline) toChat(c *completion.Completion) *Chat {
	chat := &Chat{
		ID:         c.ID,
		CreatedAt:  c.CreatedAt,
		Messages:   append([]Message(nil), p.historyFor(c.Text)...),
		Replies:    []Message{Assistant(c.Generated)},
		Metadata:   c.Metadata,
		StopReason: c.StopReason,
		Usage:      c.Usage,
		Extra:      c.Extra,
		Params:     c.Params,
		Failed:     c.Failed,
	}
	return chat
}

func (p *Pipeline) toChats(completions []*completion.Completion) []*Chat {
	chats := make([]*Chat, len(completions))
	for i, c := range completions {
		chats[i] = p.toChat(c)
	}
	return chats
}

func (p *Pipeline) fromChat(chat *Chat) *completion.Completion {
	c := completion.NewCompletion(RenderTranscript(chat.Messages), chat.Last(), p.generator)
	c.ID = chat.ID
	c.CreatedAt = chat.CreatedAt
	c.Metadata = chat.Metadata
	c.StopReason = chat.StopReason
	c.Usage = chat.Usage
	c.Extra = chat.Extra
	c.Params = chat.Params
	c.Failed = chat.Failed

	p.mu.Lock()
	p.histories[c.Text] = append([]Message(nil), chat.Messages...)
	p.mu.Unlock()

	return c
}
