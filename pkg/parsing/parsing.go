// Package parsing extracts typed records from generated text.
//
// Records are tagged blocks of the form <name>...</name> whose body is parsed
// as JSON and validated against an optional schema definition. The pipeline
// engine uses Parse as the built-in structured-output validator: any error is
// a signal to regenerate.
package parsing

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	sdkerrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/schema"
)

// Model describes one record type that can be extracted from text
type Model struct {
	// Name is the tag delimiting the record in generated text
	Name string

	// Schema optionally validates the JSON body of each matched block.
	// When nil, any block body is accepted verbatim.
	Schema *schema.Schema

	// MinCount is the minimum number of matches required for extraction to
	// succeed. Zero means one.
	MinCount int
}

// Record is one extracted instance of a model
type Record struct {
	// Model is the name of the model that produced this record
	Model string

	// Raw is the unparsed body of the matched block
	Raw string

	// Data holds the decoded JSON body when the model carries a schema
	Data interface{}
}

// NotFoundError indicates that a model matched fewer blocks than required
type NotFoundError struct {
	Model    string
	Found    int
	Required int
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q matched %d of %d required records", e.Model, e.Found, e.Required)
}

// Unwrap allows errors.Is checks against ErrNoMatches
func (e *NotFoundError) Unwrap() error {
	return sdkerrors.ErrNoMatches
}

// InvalidRecordError indicates that a matched block failed schema validation
// or JSON decoding
type InvalidRecordError struct {
	Model  string
	Reason string
}

// Error implements the error interface
func (e *InvalidRecordError) Error() string {
	return fmt.Sprintf("invalid %q record: %s", e.Model, e.Reason)
}

var validator = schema.NewValidator()

// Parse extracts records for every given model from text. Each model must
// match at least its MinCount blocks and every matched block must satisfy the
// model's schema, otherwise a distinguishable error is returned. Records are
// returned in the order their opening tags appear in the text.
func Parse(text string, models ...Model) ([]Record, error) {
	if len(models) == 0 {
		return nil, fmt.Errorf("at least one model is required")
	}

	type positioned struct {
		record Record
		offset int
	}
	var found []positioned

	for _, model := range models {
		if model.Name == "" {
			return nil, fmt.Errorf("model name cannot be empty")
		}

		required := model.MinCount
		if required <= 0 {
			required = 1
		}

		matches := tagPattern(model.Name).FindAllStringSubmatchIndex(text, -1)
		if len(matches) < required {
			return nil, &NotFoundError{Model: model.Name, Found: len(matches), Required: required}
		}

		for _, m := range matches {
			body := strings.TrimSpace(text[m[2]:m[3]])
			record := Record{Model: model.Name, Raw: body}

			if model.Schema != nil {
				var data interface{}
				if err := json.Unmarshal([]byte(body), &data); err != nil {
					return nil, &InvalidRecordError{Model: model.Name, Reason: err.Error()}
				}
				if result := validator.Validate(data, model.Schema); !result.Valid {
					return nil, &InvalidRecordError{
						Model:  model.Name,
						Reason: describeErrors(result.Errors),
					}
				}
				record.Data = data
			}

			found = append(found, positioned{record: record, offset: m[0]})
		}
	}

	// Order records by appearance in the text
	for i := 0; i < len(found)-1; i++ {
		for j := i + 1; j < len(found); j++ {
			if found[i].offset > found[j].offset {
				found[i], found[j] = found[j], found[i]
			}
		}
	}

	records := make([]Record, 0, len(found))
	for _, p := range found {
		records = append(records, p.record)
	}
	return records, nil
}

// TryParse extracts whatever records are present without enforcing minimum
// counts. Blocks that fail schema validation are skipped.
func TryParse(text string, models ...Model) []Record {
	var records []Record
	for _, model := range models {
		if model.Name == "" {
			continue
		}
		for _, m := range tagPattern(model.Name).FindAllStringSubmatch(text, -1) {
			body := strings.TrimSpace(m[1])
			record := Record{Model: model.Name, Raw: body}
			if model.Schema != nil {
				var data interface{}
				if err := json.Unmarshal([]byte(body), &data); err != nil {
					continue
				}
				if result := validator.Validate(data, model.Schema); !result.Valid {
					continue
				}
				record.Data = data
			}
			records = append(records, record)
		}
	}
	return records
}

func tagPattern(name string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?s)<` + quoted + `>(.*?)</` + quoted + `>`)
}

func describeErrors(errs []schema.ValidationError) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Path, e.Message))
	}
	return strings.Join(parts, "; ")
}
