package completion

import "context"

// UntilCallback inspects generated text and returns true when another
// generation round is required.
type UntilCallback func(text string) bool

// ThenCallback is passed each finalized completion after the Map stage. It may
// return a replacement completion; returning nil keeps the original.
type ThenCallback func(ctx context.Context, completion *Completion) (*Completion, error)

// MapCallback is passed the full list of finalized completions and returns the
// list to use from that point on. It may replace, remove, or extend entries.
type MapCallback func(ctx context.Context, completions []*Completion) ([]*Completion, error)

// WatchCallback is notified with newly finalized completions exactly once per
// completion, as soon as each round finishes, before post-processing runs.
type WatchCallback func(ctx context.Context, completions []*Completion) error

// untilEntry is one registered validator with its per-registration settings
type untilEntry struct {
	key        string
	callback   UntilCallback
	useAllText bool
	maxRounds  int
}

// watchEntry pairs a watch callback with its registration key. Keys
// de-duplicate registrations without comparing function values.
type watchEntry struct {
	key      string
	callback WatchCallback
}

// UntilOption adjusts the settings of a single Until registration
type UntilOption func(*untilEntry)

// UntilWithMaxRounds sets the round ceiling for this validator. The effective
// ceiling of a request is the minimum across all registered validators.
func UntilWithMaxRounds(rounds int) UntilOption {
	return func(e *untilEntry) {
		if rounds > 0 {
			e.maxRounds = rounds
		}
	}
}

// UntilWithAllText passes the full input text plus the generated chunk to the
// validator instead of the chunk alone.
func UntilWithAllText() UntilOption {
	return func(e *untilEntry) {
		e.useAllText = true
	}
}
