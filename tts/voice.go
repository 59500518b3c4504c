package tts

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultWeight is the mix weight a voice gets when added without
	// an explicit one.
	DefaultWeight = 1.0

	// MinWeight is the smallest allowed mix weight; lower values are
	// clamped up to it.
	MinWeight = 0.1
)

// Selection tracks which voices are chosen for a generation and their
// relative mix weights, in insertion order. Weights are independent of
// each other; no normalization is applied. A Selection only accepts
// voices present in the catalog it was created with.
type Selection struct {
	catalog map[string]struct{}
	entries []voiceEntry
}

type voiceEntry struct {
	id     string
	weight float64
}

// Voice is one selected voice with its mix weight.
type Voice struct {
	ID     string
	Weight float64
}

// NewSelection returns an empty selection validated against the given
// voice catalog.
func NewSelection(catalog []string) *Selection {
	known := make(map[string]struct{}, len(catalog))
	for _, id := range catalog {
		known[id] = struct{}{}
	}
	return &Selection{catalog: known}
}

// Add selects a voice at the default weight. It reports false when the
// voice is not in the catalog.
func (s *Selection) Add(id string) bool {
	return s.AddWeight(id, DefaultWeight)
}

// AddWeight selects a voice at the given weight, clamped to MinWeight.
// Adding an already selected voice updates its weight in place and
// keeps its original position. It reports false when the voice is not
// in the catalog.
func (s *Selection) AddWeight(id string, weight float64) bool {
	if _, ok := s.catalog[id]; !ok {
		return false
	}
	weight = clampWeight(weight)
	for i := range s.entries {
		if s.entries[i].id == id {
			s.entries[i].weight = weight
			return true
		}
	}
	s.entries = append(s.entries, voiceEntry{id: id, weight: weight})
	return true
}

// Remove drops a voice from the selection. Removing a voice that is
// not selected is a no-op.
func (s *Selection) Remove(id string) {
	for i := range s.entries {
		if s.entries[i].id == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// SetWeight updates the weight of an already selected voice, clamped
// to MinWeight. It reports false when the voice is not selected.
func (s *Selection) SetWeight(id string, weight float64) bool {
	for i := range s.entries {
		if s.entries[i].id == id {
			s.entries[i].weight = clampWeight(weight)
			return true
		}
	}
	return false
}

// Weight returns the weight of a selected voice.
func (s *Selection) Weight(id string) (float64, bool) {
	for _, e := range s.entries {
		if e.id == id {
			return e.weight, true
		}
	}
	return 0, false
}

// HasAny reports whether at least one voice is selected.
func (s *Selection) HasAny() bool {
	return len(s.entries) > 0
}

// Has reports whether the given voice is selected.
func (s *Selection) Has(id string) bool {
	_, ok := s.Weight(id)
	return ok
}

// Len returns the number of selected voices.
func (s *Selection) Len() int {
	return len(s.entries)
}

// Voices returns the selected voices in insertion order.
func (s *Selection) Voices() []Voice {
	out := make([]Voice, len(s.entries))
	for i, e := range s.entries {
		out[i] = Voice{ID: e.id, Weight: e.weight}
	}
	return out
}

// WireString serializes the selection for the synthesis request. A
// single voice at weight exactly 1.0 is the bare identifier; anything
// else is a '+'-joined list of id(weight) pairs in insertion order.
func (s *Selection) WireString() string {
	if len(s.entries) == 0 {
		return ""
	}
	if len(s.entries) == 1 && s.entries[0].weight == DefaultWeight {
		return s.entries[0].id
	}
	var b strings.Builder
	for i, e := range s.entries {
		if i > 0 {
			b.WriteByte('+')
		}
		b.WriteString(e.id)
		b.WriteByte('(')
		b.WriteString(formatWeight(e.weight))
		b.WriteByte(')')
	}
	return b.String()
}

// ParseWireString parses a serialized voice mix back into a Selection
// validated against the catalog. It accepts both the bare-identifier
// and the id(weight) forms.
func ParseWireString(wire string, catalog []string) (*Selection, error) {
	sel := NewSelection(catalog)
	for _, part := range strings.Split(wire, "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			return nil, fmt.Errorf("parse voice mix %q: empty component", wire)
		}
		id, weight := part, DefaultWeight
		if open := strings.IndexByte(part, '('); open >= 0 {
			if !strings.HasSuffix(part, ")") {
				return nil, fmt.Errorf("parse voice mix: %q is missing a closing parenthesis", part)
			}
			id = part[:open]
			w, err := strconv.ParseFloat(part[open+1:len(part)-1], 64)
			if err != nil {
				return nil, fmt.Errorf("parse voice mix: bad weight in %q: %w", part, err)
			}
			weight = w
		}
		if !sel.AddWeight(id, weight) {
			return nil, fmt.Errorf("unknown voice %q", id)
		}
	}
	return sel, nil
}

// clampWeight enforces the weight floor. Non-finite input falls back
// to the default weight.
func clampWeight(w float64) float64 {
	if math.IsNaN(w) || math.IsInf(w, 0) {
		return DefaultWeight
	}
	if w < MinWeight {
		return MinWeight
	}
	return w
}

// formatWeight renders a weight with the fewest digits that still
// parse back to the same float.
func formatWeight(w float64) string {
	return strconv.FormatFloat(w, 'g', -1, 64)
}
