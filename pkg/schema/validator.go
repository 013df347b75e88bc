package schema

import (
	"fmt"
	"regexp"
)

// Validator validates data against schemas
type Validator struct{}

// NewValidator creates a new schema validator
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates data against a schema
func (v *Validator) Validate(data interface{}, schema *Schema) *ValidationResult {
	result := &ValidationResult{
		Valid:  true,
		Errors: []ValidationError{},
	}

	// Convert schema to property for unified validation
	prop := &Property{
		Type:       schema.Type,
		Properties: schema.Properties,
		Items:      schema.Items,
	}

	errors := v.validateValue(data, prop, "root")
	if len(errors) > 0 {
		result.Valid = false
		result.Errors = errors
	}

	return result
}

// validateValue validates a value against a property definition
func (v *Validator) validateValue(value interface{}, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	if prop.Required && value == nil {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: "field is required",
			Code:    "REQUIRED",
		})
		return errors
	}

	// Nil and not required is valid
	if value == nil {
		return errors
	}

	switch prop.Type {
	case TypeString:
		if str, ok := value.(string); ok {
			errors = append(errors, v.validateString(str, prop.Validation, path)...)
		} else {
			errors = append(errors, typeMismatch(path, "string", value))
		}

	case TypeNumber:
		var num float64
		switch n := value.(type) {
		case float64:
			num = n
		case int:
			num = float64(n)
		case int64:
			num = float64(n)
		case int32:
			num = float64(n)
		default:
			errors = append(errors, typeMismatch(path, "number", value))
			return errors
		}
		errors = append(errors, v.validateNumber(num, prop.Validation, path)...)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			errors = append(errors, typeMismatch(path, "boolean", value))
		}

	case TypeObject:
		obj, ok := value.(map[string]interface{})
		if !ok {
			errors = append(errors, typeMismatch(path, "object", value))
			return errors
		}
		for name, nested := range prop.Properties {
			errors = append(errors, v.validateValue(obj[name], nested, path+"."+name)...)
		}

	case TypeArray:
		items, ok := value.([]interface{})
		if !ok {
			errors = append(errors, typeMismatch(path, "array", value))
			return errors
		}
		errors = append(errors, v.validateArray(items, prop, path)...)

	case TypeAny:
		// Anything goes
	}

	return errors
}

func (v *Validator) validateString(value string, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError
	if rules == nil {
		return errors
	}

	if rules.MinLength != nil && len(value) < *rules.MinLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is below minimum %d", len(value), *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}
	if rules.MaxLength != nil && len(value) > *rules.MaxLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", len(value), *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid pattern: %v", err),
				Code:    "INVALID_PATTERN",
			})
		} else if !re.MatchString(value) {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match pattern %s", rules.Pattern),
				Code:    "PATTERN_MISMATCH",
			})
		}
	}
	if len(rules.Enum) > 0 {
		found := false
		for _, allowed := range rules.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value %q is not one of the allowed values", value),
				Code:    "ENUM_MISMATCH",
			})
		}
	}

	return errors
}

func (v *Validator) validateNumber(value float64, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError
	if rules == nil {
		return errors
	}

	if rules.Minimum != nil && value < *rules.Minimum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v is below minimum %v", value, *rules.Minimum),
			Code:    "MINIMUM",
		})
	}
	if rules.Maximum != nil && value > *rules.Maximum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %v exceeds maximum %v", value, *rules.Maximum),
			Code:    "MAXIMUM",
		})
	}

	return errors
}

func (v *Validator) validateArray(items []interface{}, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	if rules := prop.Validation; rules != nil {
		if rules.MinItems != nil && len(items) < *rules.MinItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array has %d items, minimum is %d", len(items), *rules.MinItems),
				Code:    "MIN_ITEMS",
			})
		}
		if rules.MaxItems != nil && len(items) > *rules.MaxItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array has %d items, maximum is %d", len(items), *rules.MaxItems),
				Code:    "MAX_ITEMS",
			})
		}
	}

	if prop.Items != nil {
		for i, item := range items {
			errors = append(errors, v.validateValue(item, prop.Items, fmt.Sprintf("%s[%d]", path, i))...)
		}
	}

	return errors
}

func typeMismatch(path, expected string, value interface{}) ValidationError {
	return ValidationError{
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %T", expected, value),
		Code:    "TYPE_MISMATCH",
	}
}
