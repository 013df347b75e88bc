// Package completion provides the pipeline engine for iterative, validated
// text generation. A Pipeline accumulates configuration (seed text, parameter
// overlays, validation and post-processing callbacks) and executes it against
// a generation backend, producing immutable Completion records.
package completion

import (
	"time"

	"github.com/google/uuid"
	"github.com/wehubfusion/Daedalus/pkg/generation"
)

// Completion represents a completed text generation. Once constructed it is
// never mutated; Clone and Meta produce modified copies.
type Completion struct {
	// ID is the unique identifier of this completion
	ID uuid.UUID `json:"id"`

	// CreatedAt is when the completion was created
	CreatedAt time.Time `json:"createdAt"`

	// Text is the input text the generation was driven from
	Text string `json:"text"`

	// Generated is the generated text. For failed completions this is the
	// best-effort output from the last round before exhaustion.
	Generated string `json:"generated"`

	// Metadata holds additional key-value pairs attached by the pipeline
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// StopReason is why the backend stopped generating
	StopReason generation.StopReason `json:"stopReason"`

	// Usage holds token statistics when the backend reports them
	Usage *generation.Usage `json:"usage,omitempty"`

	// Extra carries any additional backend-specific information
	Extra map[string]interface{} `json:"extra,omitempty"`

	// Generator is the backend this completion was generated with
	Generator generation.Generator `json:"-"`

	// Params are the effective generation parameters used for this request
	Params *generation.GenerateParams `json:"params,omitempty"`

	// Failed indicates the retry ceiling was reached while a validator still
	// demanded another round
	Failed bool `json:"failed"`
}

// NewCompletion creates a completion for the given input and generated text
func NewCompletion(text, generated string, generator generation.Generator) *Completion {
	return &Completion{
		ID:         uuid.New(),
		CreatedAt:  time.Now(),
		Text:       text,
		Generated:  generated,
		Metadata:   make(map[string]interface{}),
		StopReason: generation.StopReasonUnknown,
		Generator:  generator,
	}
}

// All returns the input text and the generated text joined together
func (c *Completion) All() string {
	return c.Text + c.Generated
}

// Clone creates a copy of the completion with its own metadata and extra maps
func (c *Completion) Clone() *Completion {
	clone := &Completion{
		ID:         c.ID,
		CreatedAt:  c.CreatedAt,
		Text:       c.Text,
		Generated:  c.Generated,
		StopReason: c.StopReason,
		Generator:  c.Generator,
		Params:     c.Params.Clone(),
		Failed:     c.Failed,
	}
	if c.Usage != nil {
		usage := *c.Usage
		clone.Usage = &usage
	}
	clone.Metadata = copyMap(c.Metadata)
	clone.Extra = copyMap(c.Extra)
	return clone
}

// Meta returns a clone of the completion with the given key-value pairs merged
// into its metadata
func (c *Completion) Meta(values map[string]interface{}) *Completion {
	clone := c.Clone()
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]interface{}, len(values))
	}
	for k, v := range values {
		clone.Metadata[k] = v
	}
	return clone
}

// Restart converts the completion back into a pipeline for further
// generation. When includeAll is true the new pipeline seeds from both the
// input and the generated text, otherwise from the generated text alone.
func (c *Completion) Restart(includeAll bool) (*Pipeline, error) {
	if c.Generator == nil {
		return nil, errNoGenerator()
	}
	text := c.Generated
	if includeAll {
		text = c.All()
	}
	return New(c.Generator, text, WithParams(c.Params)), nil
}

// Fork restarts the completion and appends the given text
func (c *Completion) Fork(text string) (*Pipeline, error) {
	pipeline, err := c.Restart(false)
	if err != nil {
		return nil, err
	}
	return pipeline.Add(text), nil
}

// Continue restarts the completion with the full text and appends the given
// text, continuing the generation where it stopped
func (c *Completion) Continue(text string) (*Pipeline, error) {
	pipeline, err := c.Restart(true)
	if err != nil {
		return nil, err
	}
	return pipeline.Add(text), nil
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	if src == nil {
		return nil
	}
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
