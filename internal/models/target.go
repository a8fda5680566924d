// Package models defines the domain types for attune.
package models

import (
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Category classifies what a rotation target represents.
type Category string

const (
	CategoryIndividual Category = "individual"
	CategoryGroup      Category = "group"
	CategoryCommunity  Category = "community"
	CategoryLocation   Category = "location"
	CategorySpecies    Category = "species"
	CategoryOther      Category = "other"
)

// Categories lists every valid Category.
var Categories = []Category{
	CategoryIndividual, CategoryGroup, CategoryCommunity,
	CategoryLocation, CategorySpecies, CategoryOther,
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryIndividual, CategoryGroup, CategoryCommunity,
		CategoryLocation, CategorySpecies, CategoryOther:
		return true
	}
	return false
}

// SourceType tells how a target's locator is resolved to items.
type SourceType string

const (
	SourceDirectory SourceType = "directory"
	SourceURL       SourceType = "url"
)

// Valid reports whether s is a known source type.
func (s SourceType) Valid() bool {
	switch s {
	case SourceDirectory, SourceURL:
		return true
	}
	return false
}

// InferSourceType guesses the source type from a locator.
func InferSourceType(locator string) SourceType {
	l := strings.ToLower(locator)
	if strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://") {
		return SourceURL
	}
	return SourceDirectory
}

// Defaults applied to newly registered targets.
const (
	DefaultRepetitionsPerItem = 1
	DefaultDisplayDurationMs  = 5000
	DefaultPriority           = 5
)

// Usage holds counters that only the scheduler's outcome recording may change.
type Usage struct {
	LastServedAt         *time.Time `json:"last_served_at,omitempty"`
	TotalServings        int64      `json:"total_servings"`
	TotalRepetitionsDone int64      `json:"total_repetitions_done"`
	TotalDurationMs      int64      `json:"total_duration_served_ms"`
}

// Target is a registered rotation target.
type Target struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Category           Category   `json:"category"`
	SourceType         SourceType `json:"source_type"`
	Locator            string     `json:"locator"`
	MantraPreference   string     `json:"mantra_preference,omitempty"`
	Intentions         []string   `json:"intentions"`
	RepetitionsPerItem int        `json:"repetitions_per_item"`
	DisplayDurationMs  int        `json:"display_duration_ms"`
	Priority           int        `json:"priority"`
	IsUrgent           bool       `json:"is_urgent"`
	IsActive           bool       `json:"is_active"`
	ItemCount          int        `json:"item_count"`
	Usage              Usage      `json:"usage"`
	Tags               []string   `json:"tags"`
	Notes              string     `json:"notes,omitempty"`
	Position           int64      `json:"position"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DisplayDuration returns the per-item display duration.
func (t Target) DisplayDuration() time.Duration {
	return time.Duration(t.DisplayDurationMs) * time.Millisecond
}

// Clone returns a deep copy so callers can never alias registry state.
func (t Target) Clone() Target {
	out := t
	out.Intentions = append([]string(nil), t.Intentions...)
	out.Tags = append([]string(nil), t.Tags...)
	if t.Usage.LastServedAt != nil {
		ts := *t.Usage.LastServedAt
		out.Usage.LastServedAt = &ts
	}
	return out
}

// Validate checks the fields every stored target must carry.
func (t Target) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.ID, validation.Required),
		validation.Field(&t.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&t.Locator, validation.Required),
		validation.Field(&t.Category, validation.Required, validation.By(validCategory)),
		validation.Field(&t.SourceType, validation.Required, validation.By(validSourceType)),
		validation.Field(&t.RepetitionsPerItem, validation.Required, validation.Min(1)),
		validation.Field(&t.DisplayDurationMs, validation.Required, validation.Min(1)),
		validation.Field(&t.Priority, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&t.ItemCount, validation.Min(0)),
	)
}

// TargetInput is the payload of a registration call.
type TargetInput struct {
	Name               string     `json:"name" yaml:"name"`
	Category           Category   `json:"category" yaml:"category"`
	SourceType         SourceType `json:"source_type" yaml:"source_type"`
	Locator            string     `json:"locator" yaml:"locator"`
	MantraPreference   string     `json:"mantra_preference" yaml:"mantra_preference"`
	Intentions         []string   `json:"intentions" yaml:"intentions"`
	RepetitionsPerItem int        `json:"repetitions_per_item" yaml:"repetitions_per_item"`
	DisplayDurationMs  int        `json:"display_duration_ms" yaml:"display_duration_ms"`
	Priority           int        `json:"priority" yaml:"priority"`
	IsUrgent           bool       `json:"is_urgent" yaml:"is_urgent"`
	IsActive           *bool      `json:"is_active" yaml:"is_active"`
	Tags               []string   `json:"tags" yaml:"tags"`
	Notes              string     `json:"notes" yaml:"notes"`
}

// TargetPatch carries a partial update. Nil fields are left untouched.
// Usage counters and item count cannot be patched.
type TargetPatch struct {
	Name               *string     `json:"name"`
	Category           *Category   `json:"category"`
	SourceType         *SourceType `json:"source_type"`
	Locator            *string     `json:"locator"`
	MantraPreference   *string     `json:"mantra_preference"`
	Intentions         *[]string   `json:"intentions"`
	RepetitionsPerItem *int        `json:"repetitions_per_item"`
	DisplayDurationMs  *int        `json:"display_duration_ms"`
	Priority           *int        `json:"priority"`
	IsUrgent           *bool       `json:"is_urgent"`
	IsActive           *bool       `json:"is_active"`
	Tags               *[]string   `json:"tags"`
	Notes              *string     `json:"notes"`
}

// Apply merges the supplied fields into t.
func (p TargetPatch) Apply(t *Target) {
	if p.Name != nil {
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.SourceType != nil {
		t.SourceType = *p.SourceType
	}
	if p.Locator != nil {
		t.Locator = strings.TrimSpace(*p.Locator)
	}
	if p.MantraPreference != nil {
		t.MantraPreference = *p.MantraPreference
	}
	if p.Intentions != nil {
		t.Intentions = UniqueStrings(*p.Intentions)
	}
	if p.RepetitionsPerItem != nil {
		t.RepetitionsPerItem = *p.RepetitionsPerItem
	}
	if p.DisplayDurationMs != nil {
		t.DisplayDurationMs = *p.DisplayDurationMs
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.IsUrgent != nil {
		t.IsUrgent = *p.IsUrgent
	}
	if p.IsActive != nil {
		t.IsActive = *p.IsActive
	}
	if p.Tags != nil {
		t.Tags = UniqueStrings(*p.Tags)
	}
	if p.Notes != nil {
		t.Notes = *p.Notes
	}
}

// TouchesLocator reports whether applying p changes where items come from.
func (p TargetPatch) TouchesLocator() bool {
	return p.Locator != nil || p.SourceType != nil
}

// TargetFilter narrows List results. Zero value matches everything.
type TargetFilter struct {
	OnlyActive  bool
	OnlyUrgent  bool
	MinPriority int
}

// Match reports whether t passes the filter.
func (f TargetFilter) Match(t Target) bool {
	if f.OnlyActive && !t.IsActive {
		return false
	}
	if f.OnlyUrgent && !t.IsUrgent {
		return false
	}
	return t.Priority >= f.MinPriority
}

// OutcomeDelta is what one served cycle adds to a target's usage counters.
type OutcomeDelta struct {
	Servings    int64
	Repetitions int64
	Duration    time.Duration
	ServedAt    time.Time
}

// Validate rejects deltas that would decrease a counter.
func (d OutcomeDelta) Validate() error {
	if d.Servings < 0 || d.Repetitions < 0 || d.Duration < 0 {
		return fmt.Errorf("outcome delta must not be negative: %+v", d)
	}
	return nil
}

// UniqueStrings trims, drops empties and dedupes while keeping first-seen order.
func UniqueStrings(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func validCategory(v any) error {
	if c, _ := v.(Category); !c.Valid() {
		return fmt.Errorf("unknown category %q", v)
	}
	return nil
}

func validSourceType(v any) error {
	if s, _ := v.(SourceType); !s.Valid() {
		return fmt.Errorf("unknown source type %q", v)
	}
	return nil
}
