package completion

import "testing"

func TestProcessorFinalizesFirstChunkWithoutValidators(t *testing.T) {
	p := newRetryProcessor("prompt", nil)

	d := p.submit("first")
	if d.kind != decisionFinalized {
		t.Fatalf("Expected finalized decision, got: %d", d.kind)
	}
	if d.generated != "first" {
		t.Errorf("Expected first chunk to be finalized, got: %q", d.generated)
	}
}

func TestProcessorTerminalStatesAreSticky(t *testing.T) {
	p := newRetryProcessor("prompt", nil)
	p.submit("first")

	d := p.submit("second")
	if d.kind != decisionFinalized {
		t.Errorf("Expected finalized state to persist, got: %d", d.kind)
	}
	if d.generated != "first" {
		t.Errorf("Expected original chunk after re-submit, got: %q", d.generated)
	}
}

func TestProcessorRetriesThenAccepts(t *testing.T) {
	entries := []untilEntry{{
		key:       "until:1",
		callback:  func(text string) bool { return text != "good" },
		maxRounds: 5,
	}}
	p := newRetryProcessor("prompt", entries)

	if d := p.submit("bad"); d.kind != decisionRetry {
		t.Fatalf("Expected retry for rejected chunk, got: %d", d.kind)
	}
	d := p.submit("good")
	if d.kind != decisionFinalized {
		t.Fatalf("Expected finalized decision, got: %d", d.kind)
	}
	if d.generated != "good" {
		t.Errorf("Expected accepted chunk, got: %q", d.generated)
	}
}

func TestProcessorExhaustsAtCeilingWithLastChunk(t *testing.T) {
	entries := []untilEntry{{
		key:       "until:1",
		callback:  func(text string) bool { return true },
		maxRounds: 2,
	}}
	p := newRetryProcessor("prompt", entries)

	if d := p.submit("one"); d.kind != decisionRetry {
		t.Fatalf("Expected retry on round 1, got: %d", d.kind)
	}
	d := p.submit("two")
	if d.kind != decisionExhausted {
		t.Fatalf("Expected exhaustion on round 2, got: %d", d.kind)
	}
	if d.generated != "two" {
		t.Errorf("Expected last chunk to be carried, got: %q", d.generated)
	}

	// Exhausted state is also sticky
	if d := p.submit("three"); d.kind != decisionExhausted || d.generated != "two" {
		t.Errorf("Expected sticky exhaustion carrying %q, got kind %d with %q", "two", d.kind, d.generated)
	}
}

func TestProcessorCeilingIsMinimumAcrossEntries(t *testing.T) {
	entries := []untilEntry{
		{key: "until:1", callback: func(string) bool { return true }, maxRounds: 7},
		{key: "until:2", callback: func(string) bool { return true }, maxRounds: 3},
		{key: "until:3", callback: func(string) bool { return true }, maxRounds: 5},
	}
	p := newRetryProcessor("prompt", entries)
	if p.maxRounds != 3 {
		t.Errorf("Expected ceiling 3, got: %d", p.maxRounds)
	}
}

func TestProcessorAllTextValidatorSeesPrompt(t *testing.T) {
	var got string
	entries := []untilEntry{{
		key: "until:1",
		callback: func(text string) bool {
			got = text
			return false
		},
		useAllText: true,
		maxRounds:  5,
	}}
	p := newRetryProcessor("PROMPT|", entries)

	p.submit("chunk")
	if got != "PROMPT|chunk" {
		t.Errorf("Expected validator input %q, got: %q", "PROMPT|chunk", got)
	}
}
