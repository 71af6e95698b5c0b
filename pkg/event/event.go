// Package event defines the vocabulary shared by extraction and projection:
// event categories, their per-category type enumerations, extracted
// candidates and the typed detail payloads attached to them.
package event

import (
	"errors"
	"strings"
	"time"
)

// Category is the top-level classification of an extracted event.
type Category string

const (
	CategoryFeeding   Category = "feeding"
	CategorySleep     Category = "sleep"
	CategoryDiaper    Category = "diaper"
	CategoryHealth    Category = "health"
	CategoryGrowth    Category = "growth"
	CategoryMilestone Category = "milestone"
	CategoryActivity  Category = "activity"
	CategoryMood      Category = "mood"
	CategoryNote      Category = "note"
)

// TypeOther is the in-category fallback for unrecognised types.
const TypeOther = "other"

// categoryTypes is the fixed per-category type enumeration.
var categoryTypes = map[Category][]string{
	CategoryFeeding:   {"bottle", "breast", "formula", "solid", "meal", "snack", "water", TypeOther},
	CategorySleep:     {"nap", "night_sleep", "wake_up", TypeOther},
	CategoryDiaper:    {"wet", "dirty", "mixed", "dry", TypeOther},
	CategoryHealth:    {"symptom", "temperature", "medication", "vaccination", "doctor_visit", "allergy", "injury", TypeOther},
	CategoryGrowth:    {"weight", "height", "head_circumference", TypeOther},
	CategoryMilestone: {"motor", "language", "social", "cognitive", TypeOther},
	CategoryActivity:  {"play", "outdoor", "bath", "tummy_time", "reading", "learning", TypeOther},
	CategoryMood:      {"happy", "calm", "fussy", "upset", TypeOther},
	CategoryNote:      {"general", "curriculum", TypeOther},
}

// Categories returns every category in a stable order.
func Categories() []Category {
	return []Category{
		CategoryFeeding, CategorySleep, CategoryDiaper, CategoryHealth, CategoryGrowth,
		CategoryMilestone, CategoryActivity, CategoryMood, CategoryNote,
	}
}

// Types returns the type enumeration of a category, or nil if unknown.
func Types(c Category) []string {
	return categoryTypes[c]
}

// ParseCategory normalizes s and reports whether it names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(normalize(s))
	_, ok := categoryTypes[c]
	return c, ok
}

// NormalizeType maps a free-form type string onto the category's enumeration.
// Unknown types become TypeOther.
func NormalizeType(c Category, t string) string {
	t = normalize(t)
	for _, known := range categoryTypes[c] {
		if known == t {
			return t
		}
	}
	return TypeOther
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(s)
}

// Candidate is one proposed event produced by extraction. Details is the
// flexible payload; Payload() validates it into the category's typed detail.
type Candidate struct {
	Category      Category       `json:"category"`
	Type          string         `json:"type"`
	Timestamp     time.Time      `json:"timestamp"`
	Summary       string         `json:"summary"`
	Confidence    float64        `json:"confidence"`
	Details       map[string]any `json:"details,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Location      string         `json:"location,omitempty"`
	TimeReference string         `json:"timeReference,omitempty"`
}

var (
	// ErrMissingSummary is returned for candidates without a summary.
	ErrMissingSummary = errors.New("candidate has no summary")

	// ErrMissingTimestamp is returned for candidates without a usable timestamp.
	ErrMissingTimestamp = errors.New("candidate has no timestamp")
)

// Validate checks the mandatory fields needed to project a candidate.
func (c Candidate) Validate() error {
	if strings.TrimSpace(c.Summary) == "" {
		return ErrMissingSummary
	}
	if c.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// Payload decodes Details into the typed detail for the candidate's category.
func (c Candidate) Payload() (Payload, error) {
	return DecodePayload(c.Category, c.Details)
}
