package generation

// GenerateParams is an overlay of generation parameters. Fields left nil are
// unset and fall back to whatever the layer below (pipeline defaults, backend
// defaults) provides. Overlays merge right-biased via MergeWith.
type GenerateParams struct {
	// Temperature controls sampling randomness
	Temperature *float64 `json:"temperature,omitempty"`

	// MaxTokens limits the number of generated tokens
	MaxTokens *int `json:"maxTokens,omitempty"`

	// TopP is the nucleus sampling cutoff
	TopP *float64 `json:"topP,omitempty"`

	// Stop lists sequences that terminate generation
	Stop []string `json:"stop,omitempty"`

	// PresencePenalty penalizes tokens already present in the text
	PresencePenalty *float64 `json:"presencePenalty,omitempty"`

	// FrequencyPenalty penalizes tokens by their frequency so far
	FrequencyPenalty *float64 `json:"frequencyPenalty,omitempty"`

	// Seed makes sampling deterministic where the backend supports it
	Seed *int64 `json:"seed,omitempty"`

	// Extra carries backend-specific parameters
	Extra map[string]interface{} `json:"extra,omitempty"`
}

// Clone returns a copy of the params. Slice and map fields are copied so the
// clone can be modified independently.
func (p *GenerateParams) Clone() *GenerateParams {
	if p == nil {
		return nil
	}

	clone := &GenerateParams{
		Temperature:      copyFloat(p.Temperature),
		MaxTokens:        copyInt(p.MaxTokens),
		TopP:             copyFloat(p.TopP),
		PresencePenalty:  copyFloat(p.PresencePenalty),
		FrequencyPenalty: copyFloat(p.FrequencyPenalty),
		Seed:             copyInt64(p.Seed),
	}
	if p.Stop != nil {
		clone.Stop = append([]string(nil), p.Stop...)
	}
	if p.Extra != nil {
		clone.Extra = make(map[string]interface{}, len(p.Extra))
		for k, v := range p.Extra {
			clone.Extra[k] = v
		}
	}
	return clone
}

// MergeWith layers override on top of the receiver and returns the merged
// params. The merge is right-biased: fields set in override win, unset fields
// fall back to the base. Extra maps are merged key by key with override keys
// taking precedence. Both sides are left untouched and a nil receiver or a nil
// override is valid.
func (p *GenerateParams) MergeWith(override *GenerateParams) *GenerateParams {
	if p == nil {
		return override.Clone()
	}
	if override == nil {
		return p.Clone()
	}

	merged := p.Clone()
	if override.Temperature != nil {
		merged.Temperature = copyFloat(override.Temperature)
	}
	if override.MaxTokens != nil {
		merged.MaxTokens = copyInt(override.MaxTokens)
	}
	if override.TopP != nil {
		merged.TopP = copyFloat(override.TopP)
	}
	if override.Stop != nil {
		merged.Stop = append([]string(nil), override.Stop...)
	}
	if override.PresencePenalty != nil {
		merged.PresencePenalty = copyFloat(override.PresencePenalty)
	}
	if override.FrequencyPenalty != nil {
		merged.FrequencyPenalty = copyFloat(override.FrequencyPenalty)
	}
	if override.Seed != nil {
		merged.Seed = copyInt64(override.Seed)
	}
	if override.Extra != nil {
		if merged.Extra == nil {
			merged.Extra = make(map[string]interface{}, len(override.Extra))
		}
		for k, v := range override.Extra {
			merged.Extra[k] = v
		}
	}
	return merged
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// Float returns a pointer to v for use in params literals
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v for use in params literals
func Int(v int) *int { return &v }

// Int64 returns a pointer to v for use in params literals
func Int64(v int64) *int64 { return &v }
