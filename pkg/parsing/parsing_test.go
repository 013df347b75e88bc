package parsing

import (
	"errors"
	"testing"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/schema"
)

func TestParseExtractsTaggedBlocks(t *testing.T) {
	text := `preamble <note>first</note> middle <note>second</note> end`

	records, err := Parse(text, Model{Name: "note", MinCount: 2})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got: %d", len(records))
	}
	if records[0].Raw != "first" || records[1].Raw != "second" {
		t.Errorf("Expected records in text order, got: %q, %q", records[0].Raw, records[1].Raw)
	}
}

func TestParseMissingModelFails(t *testing.T) {
	_, err := Parse("nothing tagged here", Model{Name: "note"})
	if err == nil {
		t.Fatal("Expected error for missing model, got nil")
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected *NotFoundError, got: %T", err)
	}
	if notFound.Model != "note" || notFound.Found != 0 || notFound.Required != 1 {
		t.Errorf("Unexpected error details: %+v", notFound)
	}
	if !errors.Is(err, sdkerrors.ErrNoMatches) {
		t.Error("Expected error to unwrap to ErrNoMatches")
	}
}

func TestParseMinCountEnforced(t *testing.T) {
	text := "<item>only one</item>"
	_, err := Parse(text, Model{Name: "item", MinCount: 3})
	if err == nil {
		t.Fatal("Expected error for insufficient matches, got nil")
	}

	var notFound *NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected *NotFoundError, got: %T", err)
	}
	if notFound.Found != 1 || notFound.Required != 3 {
		t.Errorf("Expected 1 of 3, got: %d of %d", notFound.Found, notFound.Required)
	}
}

func TestParseValidatesAgainstSchema(t *testing.T) {
	model := Model{
		Name: "person",
		Schema: &schema.Schema{
			Type: schema.TypeObject,
			Properties: map[string]*schema.Property{
				"name": {Type: schema.TypeString, Required: true},
			},
		},
	}

	records, err := Parse(`<person>{"name": "Ada"}</person>`, model)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	data, ok := records[0].Data.(map[string]interface{})
	if !ok {
		t.Fatalf("Expected decoded object, got: %T", records[0].Data)
	}
	if data["name"] != "Ada" {
		t.Errorf("Expected decoded name, got: %v", data["name"])
	}

	_, err = Parse(`<person>{"age": 42}</person>`, model)
	if err == nil {
		t.Fatal("Expected validation error, got nil")
	}
	var invalid *InvalidRecordError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected *InvalidRecordError, got: %T", err)
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	model := Model{
		Name:   "data",
		Schema: &schema.Schema{Type: schema.TypeObject},
	}
	_, err := Parse(`<data>{not json}</data>`, model)
	if err == nil {
		t.Fatal("Expected error for malformed JSON, got nil")
	}
	var invalid *InvalidRecordError
	if !errors.As(err, &invalid) {
		t.Fatalf("Expected *InvalidRecordError, got: %T", err)
	}
}

func TestParseOrdersAcrossModels(t *testing.T) {
	text := `<b>two</b> then <a>one</a>`
	records, err := Parse(text, Model{Name: "a"}, Model{Name: "b"})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if records[0].Model != "b" || records[1].Model != "a" {
		t.Errorf("Expected text order across models, got: %s, %s", records[0].Model, records[1].Model)
	}
}

func TestParseRequiresModels(t *testing.T) {
	if _, err := Parse("text"); err == nil {
		t.Error("Expected error with no models")
	}
}

func TestTryParseSkipsInvalidBlocks(t *testing.T) {
	model := Model{
		Name:   "data",
		Schema: &schema.Schema{Type: schema.TypeObject},
	}
	text := `<data>{broken}</data> <data>{"ok": true}</data>`

	records := TryParse(text, model)
	if len(records) != 1 {
		t.Fatalf("Expected 1 valid record, got: %d", len(records))
	}
	if records[0].Raw != `{"ok": true}` {
		t.Errorf("Expected the valid block, got: %q", records[0].Raw)
	}
}

func TestTryParseNoMatchesReturnsEmpty(t *testing.T) {
	records := TryParse("plain text", Model{Name: "missing"})
	if len(records) != 0 {
		t.Errorf("Expected no records, got: %d", len(records))
	}
}
