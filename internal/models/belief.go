package models

import (
	"fmt"
	"time"
)

// Category classifies what a belief is about.
type Category string

const (
	CategoryPreference  Category = "preference"
	CategoryConstraint  Category = "constraint"
	CategoryFitness     Category = "fitness"
	CategoryInjury      Category = "injury"
	CategoryHistory     Category = "history"
	CategoryMotivation  Category = "motivation"
	CategoryPhysical    Category = "physical"
	CategoryScheduling  Category = "scheduling"
	CategoryPersonality Category = "personality"
	CategoryMeta        Category = "meta"
)

// Categories lists every valid Category.
var Categories = []Category{
	CategoryPreference, CategoryConstraint, CategoryFitness, CategoryInjury,
	CategoryHistory, CategoryMotivation, CategoryPhysical, CategoryScheduling,
	CategoryPersonality, CategoryMeta,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, k := range Categories {
		if c == k {
			return true
		}
	}
	return false
}

// ParseCategory converts a string into a Category.
func ParseCategory(v string) (Category, error) {
	c := Category(v)
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", v)
	}
	return c, nil
}

// Stability describes how long a belief is expected to hold.
type Stability string

const (
	StabilityStable   Stability = "stable"
	StabilityEvolving Stability = "evolving"
	StabilitySession  Stability = "session"
)

// Valid reports whether s is a known stability tag.
func (s Stability) Valid() bool {
	return s == StabilityStable || s == StabilityEvolving || s == StabilitySession
}

// ParseStability converts a string into a Stability. Empty means evolving.
func ParseStability(v string) (Stability, error) {
	if v == "" {
		return StabilityEvolving, nil
	}
	s := Stability(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown stability %q", v)
	}
	return s, nil
}

// BeliefStatus is the lifecycle state of a belief.
type BeliefStatus string

const (
	BeliefActive   BeliefStatus = "active"
	BeliefArchived BeliefStatus = "archived"
)

// Valid reports whether s is a known status.
func (s BeliefStatus) Valid() bool {
	return s == BeliefActive || s == BeliefArchived
}

// Belief is a scored statement about the athlete.
type Belief struct {
	ID              string       `json:"id"`
	Text            string       `json:"text"`
	Category        Category     `json:"category"`
	Stability       Stability    `json:"stability"`
	Confidence      float64      `json:"confidence"`
	Embedding       []float32    `json:"-"`
	EmbeddingModel  string       `json:"embedding_model"`
	ConfirmCount    int          `json:"confirm_count"`
	ContradictCount int          `json:"contradict_count"`
	Status          BeliefStatus `json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
	LastTouched     time.Time    `json:"last_touched"`
	ArchivedAt      *time.Time   `json:"archived_at,omitempty"`
	SupersededBy    string       `json:"superseded_by,omitempty"`
}
