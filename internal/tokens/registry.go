// Package tokens counts tokens in transaction text for the model that produced it.
package tokens

import (
	"fmt"
	"strings"
)

// Counter counts tokens in text for a model.
type Counter interface {
	CountText(model, text string) (int, error)
	SupportsModel(model string) bool
}

// Registry picks a counter per model.
// It supports:
// 1. Registered Counter implementations (like tiktoken for OpenAI models)
// 2. A fallback estimator for unknown models
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered and the
// character estimator as fallback.
func NewRegistry() *Registry {
	r := &Registry{
		fallback: NewEstimator(),
	}
	r.Register(NewTiktokenCounter())
	return r
}

// Register adds a token counter to the registry.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// SetFallback sets the fallback counter for unsupported models.
func (r *Registry) SetFallback(counter Counter) {
	r.fallback = counter
}

// GetCounter returns the appropriate counter for a model.
func (r *Registry) GetCounter(model string) Counter {
	for _, counter := range r.counters {
		if counter.SupportsModel(model) {
			return counter
		}
	}
	return r.fallback
}

// CountText counts text with the first counter that supports model.
func (r *Registry) CountText(model, text string) (int, error) {
	counter := r.GetCounter(model)
	if counter == nil {
		return 0, fmt.Errorf("no token counter available for model: %s", model)
	}
	return counter.CountText(model, text)
}

// Estimator provides token count estimation based on character count.
// This is the fallback for models without a known tokenizer.
type Estimator struct {
	// CharsPerToken is the average characters per token (default: 4)
	CharsPerToken float64
}

// NewEstimator creates a new token estimator.
func NewEstimator() *Estimator {
	return &Estimator{
		CharsPerToken: 4.0,
	}
}

// CountText estimates the token count of text.
func (e *Estimator) CountText(_ string, text string) (int, error) {
	return int(float64(len(text)) / e.CharsPerToken), nil
}

// SupportsModel returns true - estimator supports all models as a fallback.
func (e *Estimator) SupportsModel(string) bool {
	return true
}

// ModelMatcher helps match model names to provider patterns.
type ModelMatcher struct {
	prefixes []string
	exact    []string
}

// NewModelMatcher creates a new model matcher.
func NewModelMatcher(prefixes, exact []string) *ModelMatcher {
	return &ModelMatcher{
		prefixes: prefixes,
		exact:    exact,
	}
}

// Matches returns true if the model matches any pattern, ignoring case.
func (m *ModelMatcher) Matches(model string) bool {
	model = strings.ToLower(model)

	for _, e := range m.exact {
		if model == e {
			return true
		}
	}

	for _, p := range m.prefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}

	return false
}
