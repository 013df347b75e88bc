package completion

import (
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/concurrency"
	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/generation"
	"github.com/wehubfusion/Daedalus/pkg/parsing"
)

// DefaultMaxRounds is the round ceiling applied to Until registrations that do
// not set their own.
const DefaultMaxRounds = 5

// parsedUntilKey identifies the single structured-output validator entry.
// Repeated UntilParsedAs calls extend its model set instead of registering a
// second validator.
const parsedUntilKey = "until:parsed-models"

// Pipeline accumulates configuration for validated text generation and
// executes it on demand. Builder methods return the pipeline (or a clone, see
// With) so calls can be chained. A pipeline must not be mutated while a run is
// in flight; runs themselves never mutate the pipeline.
type Pipeline struct {
	generator        generation.Generator
	text             string
	params           *generation.GenerateParams
	metadata         map[string]interface{}
	logger           *zap.Logger
	tracer           trace.Tracer
	defaultMaxRounds int
	callbackLimiter  *concurrency.Limiter

	untilEntries []untilEntry
	untilModels  []parsing.Model
	thenHooks    []ThenCallback
	mapHooks     []MapCallback
	watchEntries []watchEntry
	untilSeq     int
}

// Option configures a pipeline at construction time
type Option func(*Pipeline)

// WithLogger sets the logger used by runs. Defaults to a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithParams sets the pipeline-level parameter overlay
func WithParams(params *generation.GenerateParams) Option {
	return func(p *Pipeline) {
		p.params = params.Clone()
	}
}

// WithDefaultMaxRounds sets the round ceiling applied to Until registrations
// that do not specify their own. Defaults to DefaultMaxRounds.
func WithDefaultMaxRounds(rounds int) Option {
	return func(p *Pipeline) {
		if rounds > 0 {
			p.defaultMaxRounds = rounds
		}
	}
}

// WithCallbackConcurrency bounds how many Then callbacks run at once during
// post-processing. Unbounded when unset.
func WithCallbackConcurrency(maxConcurrent int) Option {
	return func(p *Pipeline) {
		if maxConcurrent > 0 {
			p.callbackLimiter = concurrency.NewLimiter(maxConcurrent)
		}
	}
}

// New creates a pipeline that generates from the given text
func New(generator generation.Generator, text string, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator:        generator,
		text:             text,
		metadata:         make(map[string]interface{}),
		logger:           zap.NewNop(),
		tracer:           otel.Tracer("daedalus/completion"),
		defaultMaxRounds: DefaultMaxRounds,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Text returns the current input text
func (p *Pipeline) Text() string {
	return p.text
}

// Params returns the pipeline-level parameter overlay
func (p *Pipeline) Params() *generation.GenerateParams {
	return p.params
}

// With assigns a parameter overlay for this pipeline. If an overlay is already
// set, a clone is returned carrying the merged params, leaving the original
// pipeline untouched.
func (p *Pipeline) With(params *generation.GenerateParams) *Pipeline {
	if p.params != nil {
		clone := p.Clone()
		clone.params = p.params.MergeWith(params)
		return clone
	}
	p.params = params.Clone()
	return p
}

// Meta merges the given key-value pairs into the pipeline metadata. Metadata
// is attached to every completion the pipeline produces.
func (p *Pipeline) Meta(values map[string]interface{}) *Pipeline {
	for k, v := range values {
		p.metadata[k] = v
	}
	return p
}

// Add appends text to the input before generation
func (p *Pipeline) Add(text string) *Pipeline {
	p.text += text
	return p
}

// SetText replaces the input text, keeping all other configuration
func (p *Pipeline) SetText(text string) *Pipeline {
	p.text = text
	return p
}

// Fork clones the pipeline and appends the given text to the clone
func (p *Pipeline) Fork(text string) *Pipeline {
	return p.Clone().Add(text)
}

// Apply substitutes ${name} placeholders in the input text and returns a
// clone carrying the substituted text. Placeholders without a binding are left
// in place.
func (p *Pipeline) Apply(vars map[string]string) *Pipeline {
	clone := p.Clone()
	clone.text = os.Expand(p.text, func(name string) string {
		if value, ok := vars[name]; ok {
			return value
		}
		return "${" + name + "}"
	})
	return clone
}

// Clone creates a copy of the pipeline. Metadata and params are deep-copied;
// callback lists are copied shallowly so the clone shares callback values but
// grows its own lists independently.
func (p *Pipeline) Clone() *Pipeline {
	clone := &Pipeline{
		generator:        p.generator,
		text:             p.text,
		params:           p.params.Clone(),
		metadata:         make(map[string]interface{}, len(p.metadata)),
		logger:           p.logger,
		tracer:           p.tracer,
		defaultMaxRounds: p.defaultMaxRounds,
		callbackLimiter:  p.callbackLimiter,
		untilEntries:     append([]untilEntry(nil), p.untilEntries...),
		untilModels:      append([]parsing.Model(nil), p.untilModels...),
		thenHooks:        append([]ThenCallback(nil), p.thenHooks...),
		mapHooks:         append([]MapCallback(nil), p.mapHooks...),
		watchEntries:     append([]watchEntry(nil), p.watchEntries...),
		untilSeq:         p.untilSeq,
	}
	for k, v := range p.metadata {
		clone.metadata[k] = v
	}
	return clone
}

// Until registers a validator that participates in gating generation. The
// validator receives the generated chunk (or the full text when
// UntilWithAllText is set) and returns true to demand another round. The
// effective round ceiling for a request is the minimum of all registered
// validators' ceilings.
func (p *Pipeline) Until(callback UntilCallback, opts ...UntilOption) *Pipeline {
	p.untilSeq++
	entry := untilEntry{
		key:       fmt.Sprintf("until:%d", p.untilSeq),
		callback:  callback,
		maxRounds: p.defaultMaxRounds,
	}
	for _, opt := range opts {
		opt(&entry)
	}
	p.untilEntries = append(p.untilEntries, entry)
	return p
}

// UntilParsedAs requires the given models to parse from the generated text
// before a request finalizes. Calling it again adds models to the same
// validator; the round and context settings of the first registration win.
func (p *Pipeline) UntilParsedAs(models []parsing.Model, opts ...UntilOption) *Pipeline {
	p.untilModels = append(p.untilModels, models...)
	snapshot := append([]parsing.Model(nil), p.untilModels...)
	callback := func(text string) bool {
		_, err := parsing.Parse(text, snapshot...)
		return err != nil
	}

	for i := range p.untilEntries {
		if p.untilEntries[i].key == parsedUntilKey {
			p.untilEntries[i].callback = callback
			return p
		}
	}

	entry := untilEntry{
		key:       parsedUntilKey,
		callback:  callback,
		maxRounds: p.defaultMaxRounds,
	}
	for _, opt := range opts {
		opt(&entry)
	}
	p.untilEntries = append(p.untilEntries, entry)
	return p
}

// Watch registers a callback notified with newly finalized completions. The
// key de-duplicates registrations: a key that is already registered is
// silently skipped. Use ForceWatch to register the same key twice.
func (p *Pipeline) Watch(key string, callback WatchCallback) *Pipeline {
	for _, entry := range p.watchEntries {
		if entry.key == key {
			return p
		}
	}
	return p.ForceWatch(key, callback)
}

// ForceWatch registers a watch callback without de-duplication
func (p *Pipeline) ForceWatch(key string, callback WatchCallback) *Pipeline {
	p.watchEntries = append(p.watchEntries, watchEntry{key: key, callback: callback})
	return p
}

// Then registers a callback executed per completion after generation and the
// Map stage. Then callbacks run in registration order; within one stage all
// completions are processed concurrently.
func (p *Pipeline) Then(callback ThenCallback) *Pipeline {
	p.thenHooks = append(p.thenHooks, callback)
	return p
}

// Map registers a callback executed over the full completion list after
// generation. Map callbacks run sequentially, each seeing the previous one's
// output.
func (p *Pipeline) Map(callback MapCallback) *Pipeline {
	p.mapHooks = append(p.mapHooks, callback)
	return p
}

// fitParams expands the per-request overlays to count entries, merging each on
// top of the pipeline-level overlay. A count mismatch is a configuration error
// raised before any backend call.
func (p *Pipeline) fitParams(count int, overlays []*generation.GenerateParams) ([]*generation.GenerateParams, error) {
	if overlays == nil {
		overlays = make([]*generation.GenerateParams, count)
	}
	if len(overlays) != count {
		return nil, sdkerrors.NewError(
			sdkerrors.CodeConfiguration,
			fmt.Sprintf("expected %d parameter overlays, got %d", count, len(overlays)),
			sdkerrors.ErrParamsCountMismatch,
		)
	}
	fitted := make([]*generation.GenerateParams, count)
	for i, overlay := range overlays {
		fitted[i] = p.params.MergeWith(overlay)
	}
	return fitted, nil
}

func errNoGenerator() error {
	return sdkerrors.NewError(sdkerrors.CodeConfiguration, "pipeline has no generator", sdkerrors.ErrNilGenerator)
}
