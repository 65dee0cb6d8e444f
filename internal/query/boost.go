// Package query turns free-text input into weighted multi-field bleve queries.
package query

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// DefaultBoosts are the field weights used when none are configured.
func DefaultBoosts() map[string]float64 {
	return map[string]float64{
		"contents": 1.0,
		"title":    3.0,
		"summary":  2.0,
		"name":     4.0,
	}
}

// BoostFactors is a field → weight table shared by every search. It is safe for concurrent use;
// Set replaces the whole table.
type BoostFactors struct {
	mu      sync.RWMutex
	weights map[string]float64
}

// NewBoostFactors returns a table holding weights. Nil weights means DefaultBoosts.
func NewBoostFactors(weights map[string]float64) (*BoostFactors, error) {
	if weights == nil {
		weights = DefaultBoosts()
	}
	b := &BoostFactors{}
	if err := b.Set(weights); err != nil {
		return nil, err
	}
	return b, nil
}

// Set replaces every entry with weights. Keys are lower-cased; a non-positive weight or an
// empty key rejects the whole update and leaves the table unchanged.
func (b *BoostFactors) Set(weights map[string]float64) error {
	normalized, err := Normalize(weights)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.weights = normalized
	b.mu.Unlock()
	return nil
}

// Get returns the weight of field.
func (b *BoostFactors) Get(field string) (float64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	w, ok := b.weights[strings.ToLower(field)]
	return w, ok
}

// Len returns the number of weighted fields.
func (b *BoostFactors) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.weights)
}

// Snapshot returns a copy of the table.
func (b *BoostFactors) Snapshot() map[string]float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]float64, len(b.weights))
	for k, v := range b.weights {
		out[k] = v
	}
	return out
}

// Normalize lower-cases the keys of weights and validates every weight.
func Normalize(weights map[string]float64) (map[string]float64, error) {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		key := strings.ToLower(strings.TrimSpace(k))
		if key == "" {
			return nil, fmt.Errorf("boost factor: empty field name")
		}
		if v <= 0 {
			return nil, fmt.Errorf("boost factor for %q must be positive, got %v", k, v)
		}
		out[key] = v
	}
	return out, nil
}

// Fingerprint encodes weights as sorted field=weight pairs.
func Fingerprint(weights map[string]float64) string {
	keys := make([]string, 0, len(weights))
	for k := range weights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(weights[k], 'g', -1, 64))
	}
	return b.String()
}
