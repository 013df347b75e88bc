package completion

// processorState is the explicit state of one request's retry machine
type processorState int

const (
	stateAwaitingChunk processorState = iota
	stateRetrying
	stateFinalized
	stateExhausted
)

// decisionKind classifies the outcome of submitting one generated chunk
type decisionKind int

const (
	decisionRetry decisionKind = iota
	decisionFinalized
	decisionExhausted
)

// decision is the outcome of one round for one request. For finalized and
// exhausted decisions, generated carries the chunk to finalize with.
type decision struct {
	kind      decisionKind
	generated string
}

// retryProcessor decides, round by round, whether newly generated text is
// acceptable. One processor drives exactly one request and is discarded once
// it reaches a terminal state.
//
// All registered validators share a single round ceiling: the minimum
// maxRounds across them. Per-validator ceilings would make the number of
// backend calls depend on validator ordering.
type retryProcessor struct {
	prompt    string
	entries   []untilEntry
	maxRounds int
	round     int
	state     processorState
	lastChunk string
}

// newRetryProcessor primes a processor for one request. prompt is the full
// text sent to the backend, used for validators that ask for full context.
func newRetryProcessor(prompt string, entries []untilEntry) *retryProcessor {
	maxRounds := 1
	for i, e := range entries {
		if i == 0 || e.maxRounds < maxRounds {
			maxRounds = e.maxRounds
		}
	}
	return &retryProcessor{
		prompt:    prompt,
		entries:   entries,
		maxRounds: maxRounds,
		state:     stateAwaitingChunk,
	}
}

// submit feeds one generated chunk into the machine and returns the decision
// for this round. With no validators registered the first chunk finalizes
// immediately. Otherwise every validator is evaluated; if any demands a retry
// the machine retries until the shared round ceiling is reached, at which
// point it exhausts carrying the last chunk seen.
func (p *retryProcessor) submit(chunk string) decision {
	switch p.state {
	case stateFinalized:
		return decision{kind: decisionFinalized, generated: p.lastChunk}
	case stateExhausted:
		return decision{kind: decisionExhausted, generated: p.lastChunk}
	}

	p.lastChunk = chunk

	if len(p.entries) == 0 {
		p.state = stateFinalized
		return decision{kind: decisionFinalized, generated: chunk}
	}

	p.round++

	retry := false
	for _, entry := range p.entries {
		input := chunk
		if entry.useAllText {
			input = p.prompt + chunk
		}
		if entry.callback(input) {
			retry = true
		}
	}

	if !retry {
		p.state = stateFinalized
		return decision{kind: decisionFinalized, generated: chunk}
	}

	if p.round >= p.maxRounds {
		p.state = stateExhausted
		return decision{kind: decisionExhausted, generated: chunk}
	}

	p.state = stateRetrying
	return decision{kind: decisionRetry}
}
