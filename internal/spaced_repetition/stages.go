package spaced_repetition

import (
	"fmt"
	"time"
)

// StageDefinition is one rung of the fixed review-interval ladder
type StageDefinition struct {
	Index       int           `json:"index"`
	Delay       time.Duration `json:"delay"`
	Label       string        `json:"label"`
	Description string        `json:"description"`
}

// StageTable maps a stage index to its review delay and labels.
// It is immutable after construction and safe for concurrent use.
type StageTable struct {
	stages []StageDefinition
}

// DefaultStages returns the reference forgetting-curve ladder:
// 0h, 1h, 12h, 24h, 96h, 168h, 360h
func DefaultStages() *StageTable {
	hours := []int{0, 1, 12, 24, 96, 168, 360}
	descriptions := []string{
		"Review now",
		"After 1 hour",
		"After 12 hours (before sleep)",
		"After 1 day",
		"After 4 days",
		"After 7 days",
		"After 15 days",
	}

	defs := make([]StageDefinition, len(hours))
	for i, h := range hours {
		defs[i] = StageDefinition{
			Index:       i,
			Delay:       time.Duration(h) * time.Hour,
			Label:       fmt.Sprintf("Stage %d", i+1),
			Description: descriptions[i],
		}
	}
	return &StageTable{stages: defs}
}

// NewStageTable builds a table from custom definitions. Indices are
// reassigned from the slice order; delays must be non-negative and
// non-decreasing.
func NewStageTable(defs []StageDefinition) (*StageTable, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("stage table must have at least one stage")
	}

	stages := make([]StageDefinition, len(defs))
	for i, d := range defs {
		if d.Delay < 0 {
			return nil, fmt.Errorf("stage %d: negative delay %s", i, d.Delay)
		}
		if i > 0 && d.Delay < defs[i-1].Delay {
			return nil, fmt.Errorf("stage %d: delay %s is shorter than previous stage", i, d.Delay)
		}
		d.Index = i
		if d.Label == "" {
			d.Label = fmt.Sprintf("Stage %d", i+1)
		}
		stages[i] = d
	}
	return &StageTable{stages: stages}, nil
}

// StageCount returns the number of stages
func (t *StageTable) StageCount() int {
	return len(t.stages)
}

// clamp maps out-of-range indices onto the nearest valid stage
func (t *StageTable) clamp(stage int) int {
	if stage < 0 {
		return 0
	}
	if stage >= len(t.stages) {
		return len(t.stages) - 1
	}
	return stage
}

// DelayFor returns the delay of a stage. Indices past the end read the last stage.
func (t *StageTable) DelayFor(stage int) time.Duration {
	return t.stages[t.clamp(stage)].Delay
}

// LabelFor returns the short label of a stage
func (t *StageTable) LabelFor(stage int) string {
	return t.stages[t.clamp(stage)].Label
}

// DescriptionFor returns the human description of a stage
func (t *StageTable) DescriptionFor(stage int) string {
	return t.stages[t.clamp(stage)].Description
}

// Lookup is the strict variant of the accessors above
func (t *StageTable) Lookup(stage int) (StageDefinition, error) {
	if stage < 0 || stage >= len(t.stages) {
		return StageDefinition{}, fmt.Errorf("%w: %d (table has %d stages)", ErrStageOutOfRange, stage, len(t.stages))
	}
	return t.stages[stage], nil
}

// All returns a copy of every stage definition in order
func (t *StageTable) All() []StageDefinition {
	out := make([]StageDefinition, len(t.stages))
	copy(out, t.stages)
	return out
}
