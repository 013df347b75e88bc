package completion

import (
	"context"
	"sync"
	"testing"

	"github.com/wehubfusion/Daedalus/pkg/generation"
	"github.com/wehubfusion/Daedalus/pkg/parsing"
)

func TestWithClonesWhenParamsAlreadySet(t *testing.T) {
	base := New(&fakeGenerator{}, "prompt",
		WithParams(&generation.GenerateParams{Temperature: generation.Float(0.2)}))

	derived := base.With(&generation.GenerateParams{MaxTokens: generation.Int(100)})
	if derived == base {
		t.Fatal("Expected With to return a clone when params are already set")
	}
	if base.Params().MaxTokens != nil {
		t.Error("Expected original pipeline params to be untouched")
	}
	if derived.Params().Temperature == nil || *derived.Params().Temperature != 0.2 {
		t.Error("Expected clone to carry the original temperature")
	}
	if derived.Params().MaxTokens == nil || *derived.Params().MaxTokens != 100 {
		t.Error("Expected clone to carry the merged max tokens")
	}
}

func TestWithSetsParamsInPlaceWhenUnset(t *testing.T) {
	p := New(&fakeGenerator{}, "prompt")
	returned := p.With(&generation.GenerateParams{Temperature: generation.Float(0.7)})
	if returned != p {
		t.Error("Expected With to mutate in place when no params are set")
	}
	if p.Params().Temperature == nil || *p.Params().Temperature != 0.7 {
		t.Error("Expected params to be assigned")
	}
}

func TestCloneIndependence(t *testing.T) {
	p := New(&fakeGenerator{}, "prompt").
		Meta(map[string]interface{}{"env": "test"}).
		Until(func(string) bool { return false })

	clone := p.Clone()
	clone.Meta(map[string]interface{}{"env": "clone"}).
		Until(func(string) bool { return true })

	if p.metadata["env"] != "test" {
		t.Errorf("Expected original metadata untouched, got: %v", p.metadata["env"])
	}
	if len(p.untilEntries) != 1 {
		t.Errorf("Expected original to keep 1 validator, got: %d", len(p.untilEntries))
	}
	if len(clone.untilEntries) != 2 {
		t.Errorf("Expected clone to have 2 validators, got: %d", len(clone.untilEntries))
	}
}

func TestForkAppendsOnClone(t *testing.T) {
	p := New(&fakeGenerator{}, "base")
	fork := p.Fork(" extra")

	if p.Text() != "base" {
		t.Errorf("Expected original text untouched, got: %q", p.Text())
	}
	if fork.Text() != "base extra" {
		t.Errorf("Expected fork text %q, got: %q", "base extra", fork.Text())
	}
}

func TestApplySubstitutesPlaceholders(t *testing.T) {
	p := New(&fakeGenerator{}, "Hello ${name}, you are ${role}. Missing: ${unknown}")
	applied := p.Apply(map[string]string{"name": "Ada", "role": "engineer"})

	want := "Hello Ada, you are engineer. Missing: ${unknown}"
	if applied.Text() != want {
		t.Errorf("Expected %q, got: %q", want, applied.Text())
	}
	if p.Text() == applied.Text() {
		t.Error("Expected Apply to leave the original pipeline untouched")
	}
}

func TestUntilParsedAsSingleRegistration(t *testing.T) {
	p := New(&fakeGenerator{}, "prompt").
		UntilParsedAs([]parsing.Model{{Name: "first"}}).
		UntilParsedAs([]parsing.Model{{Name: "second"}})

	if len(p.untilEntries) != 1 {
		t.Fatalf("Expected a single parsed-output validator, got: %d", len(p.untilEntries))
	}
	if p.untilEntries[0].key != parsedUntilKey {
		t.Errorf("Expected key %q, got: %q", parsedUntilKey, p.untilEntries[0].key)
	}

	callback := p.untilEntries[0].callback
	if callback("<first>a</first>") != true {
		t.Error("Expected retry when only the first model parses")
	}
	if callback("<first>a</first><second>b</second>") != false {
		t.Error("Expected accept when both models parse")
	}
}

func TestUntilParsedAsDrivesRetry(t *testing.T) {
	gen := &fakeGenerator{
		fn: func(round int, texts []string) []generation.GeneratedText {
			text := "no tags here"
			if round >= 2 {
				text = "<answer>42</answer>"
			}
			out := make([]generation.GeneratedText, len(texts))
			for i := range texts {
				out[i] = generation.GeneratedText{Text: text, StopReason: generation.StopReasonStop}
			}
			return out
		},
	}

	result, err := New(gen, "prompt").
		UntilParsedAs([]parsing.Model{{Name: "answer"}}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Generated != "<answer>42</answer>" {
		t.Errorf("Expected parseable round to win, got: %q", result.Generated)
	}
	if gen.callCount() != 2 {
		t.Errorf("Expected 2 backend calls, got: %d", gen.callCount())
	}
}

func TestWatchKeyDeduplication(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	callback := func(ctx context.Context, completions []*Completion) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	}

	p := New(&fakeGenerator{}, "prompt").
		Watch("sink", callback).
		Watch("sink", callback)
	if len(p.watchEntries) != 1 {
		t.Errorf("Expected duplicate key to be skipped, got %d entries", len(p.watchEntries))
	}

	p.ForceWatch("sink", callback)
	if len(p.watchEntries) != 2 {
		t.Errorf("Expected ForceWatch to bypass de-duplication, got %d entries", len(p.watchEntries))
	}

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if calls != 2 {
		t.Errorf("Expected both registered callbacks to run, got: %d", calls)
	}
}

func TestMetadataAttachedToCompletions(t *testing.T) {
	result, err := New(&fakeGenerator{}, "prompt").
		Meta(map[string]interface{}{"source": "unit"}).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if result.Metadata["source"] != "unit" {
		t.Errorf("Expected metadata to propagate, got: %v", result.Metadata)
	}
}

func TestDefaultMaxRoundsOption(t *testing.T) {
	gen := &fakeGenerator{}
	_, err := New(gen, "prompt", WithDefaultMaxRounds(1)).
		Until(func(string) bool { return true }).
		Run(context.Background())
	if err == nil {
		t.Fatal("Expected exhaustion, got nil")
	}
	if gen.callCount() != 1 {
		t.Errorf("Expected pipeline default of 1 round, got: %d calls", gen.callCount())
	}
}
