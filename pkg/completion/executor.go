package completion

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/generation"
)

// runState tracks one in-flight request. It is owned exclusively by a single
// run and never reused once its completion is set.
type runState struct {
	text      string
	params    *generation.GenerateParams
	processor *retryProcessor
	result    *Completion
	watched   bool
	inbound   generation.GeneratedText
}

// runConfig holds the per-run flags and overlays
type runConfig struct {
	skipFailed    bool
	includeFailed bool
	overlays      []*generation.GenerateParams
}

// RunOption adjusts a single Run, RunMany, or RunBatch invocation
type RunOption func(*runConfig)

// SkipFailed drops exhausted requests from the result list instead of raising
func SkipFailed() RunOption {
	return func(c *runConfig) { c.skipFailed = true }
}

// IncludeFailed returns exhausted requests as records flagged Failed instead
// of raising
func IncludeFailed() RunOption {
	return func(c *runConfig) { c.includeFailed = true }
}

// WithOverlays supplies one parameter overlay per request, merged on top of
// the pipeline-level overlay. The overlay count must match the request count.
func WithOverlays(overlays ...*generation.GenerateParams) RunOption {
	return func(c *runConfig) { c.overlays = overlays }
}

// Run executes the pipeline once and returns the completion. Exhaustion
// raises an ExhaustedError unless IncludeFailed is set.
func (p *Pipeline) Run(ctx context.Context, opts ...RunOption) (*Completion, error) {
	completions, err := p.RunMany(ctx, 1, opts...)
	if err != nil {
		return nil, err
	}
	if len(completions) == 0 {
		return nil, sdkerrors.NewError(sdkerrors.CodeGeneration, "run produced no completion", nil)
	}
	return completions[0], nil
}

// RunMany executes the pipeline count times with the same input text. Results
// are returned in request order regardless of which request finished first.
func (p *Pipeline) RunMany(ctx context.Context, count int, opts ...RunOption) ([]*Completion, error) {
	cfg, err := p.prepareRun(opts)
	if err != nil {
		return nil, err
	}

	params, err := p.fitParams(count, cfg.overlays)
	if err != nil {
		return nil, err
	}

	states := make([]*runState, count)
	for i := range states {
		states[i] = &runState{
			text:      p.text,
			params:    params[i],
			processor: newRetryProcessor(p.text, p.untilEntries),
		}
	}

	return p.runStates(ctx, states, cfg)
}

// RunBatch executes the pipeline across multiple input texts. The pipeline's
// own text acts as a shared prefix for every request. Results are returned in
// input order.
func (p *Pipeline) RunBatch(ctx context.Context, texts []string, opts ...RunOption) ([]*Completion, error) {
	cfg, err := p.prepareRun(opts)
	if err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, sdkerrors.NewError(sdkerrors.CodeConfiguration, "no batch inputs", sdkerrors.ErrEmptyBatch)
	}

	params, err := p.fitParams(len(texts), cfg.overlays)
	if err != nil {
		return nil, err
	}

	states := make([]*runState, len(texts))
	for i, text := range texts {
		full := p.text + text
		states[i] = &runState{
			text:      full,
			params:    params[i],
			processor: newRetryProcessor(full, p.untilEntries),
		}
	}

	return p.runStates(ctx, states, cfg)
}

// prepareRun validates run flags before any backend call is made
func (p *Pipeline) prepareRun(opts []RunOption) (runConfig, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.skipFailed && cfg.includeFailed {
		return cfg, sdkerrors.NewError(
			sdkerrors.CodeConfiguration,
			"conflicting run flags",
			sdkerrors.ErrConflictingRunFlags,
		)
	}
	if p.generator == nil {
		return cfg, errNoGenerator()
	}
	return cfg, nil
}

// runStates drives the retry machines in lockstep rounds: one batched backend
// call per round over the pending subset, routing each response back to its
// machine, shrinking the pending set as machines finalize or exhaust.
func (p *Pipeline) runStates(ctx context.Context, states []*runState, cfg runConfig) ([]*Completion, error) {
	ctx, span := p.tracer.Start(ctx, "completion.run",
		trace.WithAttributes(attribute.Int("pipeline.requests", len(states))))
	defer span.End()

	// The pending set gets its own backing array so shrinking it never
	// disturbs the ordered states list.
	pending := append([]*runState(nil), states...)
	round := 0

	for len(pending) > 0 {
		round++

		texts := make([]string, len(pending))
		params := make([]*generation.GenerateParams, len(pending))
		for i, state := range pending {
			texts[i] = state.text
			params[i] = state.params
		}

		p.logger.Debug("Issuing generation round",
			zap.Int("round", round),
			zap.Int("pending", len(pending)))

		inbounds, err := p.generator.GenerateTexts(ctx, texts, params)
		if err != nil {
			// Transport errors abort the whole batch; only validator-driven
			// regeneration is retried by this layer.
			span.RecordError(err)
			span.SetStatus(codes.Error, "backend generation failed")
			return nil, sdkerrors.NewError(sdkerrors.CodeGeneration, "backend generation failed", err)
		}
		if len(inbounds) != len(pending) {
			err := sdkerrors.NewError(
				sdkerrors.CodeGeneration,
				fmt.Sprintf("backend returned %d results for %d requests", len(inbounds), len(pending)),
				nil,
			)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Message)
			return nil, err
		}

		for i, state := range pending {
			state.inbound = inbounds[i]
			d := state.processor.submit(inbounds[i].Text)
			switch d.kind {
			case decisionRetry:
				// Same request text is resubmitted next round

			case decisionFinalized:
				state.result = p.newCompletion(state, d.generated, false)

			case decisionExhausted:
				if !cfg.skipFailed && !cfg.includeFailed {
					exhausted := &sdkerrors.ExhaustedError{
						Rounds:        state.processor.maxRounds,
						Text:          state.text,
						LastGenerated: d.generated,
					}
					p.logger.Warn("Exhausted max rounds",
						zap.Int("rounds", exhausted.Rounds))
					span.RecordError(exhausted)
					span.SetStatus(codes.Error, "max rounds exhausted")
					return nil, exhausted
				}
				state.result = p.newCompletion(state, d.generated, true)
			}
		}

		if err := p.notifyWatch(ctx, states); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "watch callback failed")
			return nil, err
		}

		remaining := pending[:0]
		for _, state := range pending {
			if state.result == nil {
				remaining = append(remaining, state)
			}
		}
		pending = remaining
	}

	span.SetAttributes(attribute.Int("pipeline.rounds", round))

	completions := make([]*Completion, 0, len(states))
	for _, state := range states {
		if cfg.skipFailed && state.result.Failed {
			continue
		}
		completions = append(completions, state.result)
	}

	results, err := p.postRun(ctx, completions)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post-processing failed")
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return results, nil
}

// newCompletion materializes the record for a finished state
func (p *Pipeline) newCompletion(state *runState, generated string, failed bool) *Completion {
	c := NewCompletion(state.text, generated, p.generator)
	c.Metadata = copyMap(p.metadata)
	c.Params = state.params
	c.Failed = failed
	if state.inbound.StopReason != "" {
		c.StopReason = state.inbound.StopReason
	}
	if state.inbound.Usage != nil {
		usage := *state.inbound.Usage
		c.Usage = &usage
	}
	c.Extra = state.inbound.Extra
	return c
}

// notifyWatch hands newly finished completions to every watch callback
// concurrently and waits for all of them. Each completion is delivered exactly
// once, in finish order across rounds.
func (p *Pipeline) notifyWatch(ctx context.Context, states []*runState) error {
	var fresh []*Completion
	for _, state := range states {
		if state.result != nil && !state.watched {
			fresh = append(fresh, state.result)
			state.watched = true
		}
	}
	if len(fresh) == 0 || len(p.watchEntries) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	errs := make([]error, len(p.watchEntries))
	for i, entry := range p.watchEntries {
		wg.Add(1)
		go func(i int, entry watchEntry) {
			defer wg.Done()
			errs[i] = entry.callback(ctx, fresh)
		}(i, entry)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			return fmt.Errorf("watch callback %q failed: %w", p.watchEntries[i].key, err)
		}
	}
	return nil
}

// postRun applies the post-processing stages: Map callbacks chained
// sequentially over the whole list, then each Then callback fanned out
// concurrently across all completions, stages serialized in registration
// order.
func (p *Pipeline) postRun(ctx context.Context, completions []*Completion) ([]*Completion, error) {
	var err error
	for _, mapHook := range p.mapHooks {
		completions, err = mapHook(ctx, completions)
		if err != nil {
			return nil, fmt.Errorf("map callback failed: %w", err)
		}
	}

	for _, thenHook := range p.thenHooks {
		replacements := make([]*Completion, len(completions))
		errs := make([]error, len(completions))

		var wg sync.WaitGroup
		for i, c := range completions {
			if p.callbackLimiter != nil {
				if err := p.callbackLimiter.Acquire(ctx); err != nil {
					wg.Wait()
					return nil, fmt.Errorf("then callback cancelled: %w", err)
				}
			}
			wg.Add(1)
			go func(i int, c *Completion) {
				defer wg.Done()
				if p.callbackLimiter != nil {
					defer p.callbackLimiter.Release()
				}
				replacements[i], errs[i] = thenHook(ctx, c)
			}(i, c)
		}
		wg.Wait()

		for i, hookErr := range errs {
			if hookErr != nil {
				return nil, fmt.Errorf("then callback failed: %w", hookErr)
			}
			if replacements[i] != nil {
				completions[i] = replacements[i]
			}
		}
	}

	return completions, nil
}
