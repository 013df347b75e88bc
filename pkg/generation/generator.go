// Package generation defines the backend contract for batched text generation
// along with the parameter overlay structure shared by all pipelines.
package generation

import "context"

// StopReason describes why a generation stopped
type StopReason string

// Supported stop reasons
const (
	StopReasonStop          StopReason = "stop"
	StopReasonLength        StopReason = "length"
	StopReasonContentFilter StopReason = "content_filter"
	StopReasonToolCalls     StopReason = "tool_calls"
	StopReasonUnknown       StopReason = "unknown"
)

// Usage holds token accounting reported by the backend for one generation
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// GeneratedText is one entry of a batched generation response
type GeneratedText struct {
	// Text is the generated output
	Text string `json:"text"`

	// StopReason is why the backend stopped generating
	StopReason StopReason `json:"stopReason"`

	// Usage holds token statistics when the backend reports them
	Usage *Usage `json:"usage,omitempty"`

	// Extra carries any additional backend-specific information
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Generator is the backend collaborator that performs batched text generation.
//
// Implementations must return exactly one GeneratedText per input text, in the
// same order as the inputs, and must not silently drop or reorder entries.
// Errors returned here are treated as transport failures by the pipeline engine
// and are never retried; validator-driven regeneration is the engine's concern.
type Generator interface {
	GenerateTexts(ctx context.Context, texts []string, params []*GenerateParams) ([]GeneratedText, error)
}
