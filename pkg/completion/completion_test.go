package completion

import (
	"testing"

	"github.com/wehubfusion/Daedalus/pkg/generation"
)

func TestCompletionAll(t *testing.T) {
	c := NewCompletion("question: ", "answer", nil)
	if c.All() != "question: answer" {
		t.Errorf("Expected joined text, got: %q", c.All())
	}
}

func TestCompletionCloneIsIndependent(t *testing.T) {
	c := NewCompletion("in", "out", nil)
	c.Metadata["key"] = "original"
	c.Usage = &generation.Usage{TotalTokens: 10}

	clone := c.Clone()
	clone.Metadata["key"] = "changed"
	clone.Usage.TotalTokens = 99

	if c.Metadata["key"] != "original" {
		t.Errorf("Expected original metadata untouched, got: %v", c.Metadata["key"])
	}
	if c.Usage.TotalTokens != 10 {
		t.Errorf("Expected original usage untouched, got: %d", c.Usage.TotalTokens)
	}
	if clone.ID != c.ID {
		t.Error("Expected clone to keep the same ID")
	}
}

func TestCompletionMetaReturnsModifiedClone(t *testing.T) {
	c := NewCompletion("in", "out", nil)
	c.Metadata["a"] = 1

	tagged := c.Meta(map[string]interface{}{"b": 2})
	if tagged == c {
		t.Fatal("Expected Meta to return a new completion")
	}
	if tagged.Metadata["a"] != 1 || tagged.Metadata["b"] != 2 {
		t.Errorf("Expected merged metadata, got: %v", tagged.Metadata)
	}
	if _, ok := c.Metadata["b"]; ok {
		t.Error("Expected original metadata untouched")
	}
}

func TestRestartSeedsFromGenerated(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewCompletion("input|", "output", gen)

	p, err := c.Restart(false)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p.Text() != "output" {
		t.Errorf("Expected restart text %q, got: %q", "output", p.Text())
	}

	p, err = c.Restart(true)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if p.Text() != "input|output" {
		t.Errorf("Expected restart text %q, got: %q", "input|output", p.Text())
	}
}

func TestRestartWithoutGenerator(t *testing.T) {
	c := NewCompletion("in", "out", nil)
	if _, err := c.Restart(false); err == nil {
		t.Error("Expected error restarting without a generator")
	}
}

func TestForkAndContinueComposeText(t *testing.T) {
	gen := &fakeGenerator{}
	c := NewCompletion("input|", "output", gen)

	fork, err := c.Fork("+fork")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if fork.Text() != "output+fork" {
		t.Errorf("Expected fork text %q, got: %q", "output+fork", fork.Text())
	}

	cont, err := c.Continue("+more")
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if cont.Text() != "input|output+more" {
		t.Errorf("Expected continue text %q, got: %q", "input|output+more", cont.Text())
	}
}
