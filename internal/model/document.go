package model

import (
	"slices"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// DefaultSteps is the pipeline every new installation starts with.
var DefaultSteps = []string{"intake", "processing", "validation", "approval", "final"}

// HistoryEntry records one artifact upload or explicit status change against
// a step. A nil ArtifactReference marks a pure status change.
type HistoryEntry struct {
	Step              string    `json:"step"`
	Timestamp         time.Time `json:"timestamp"`
	ActingUser        string    `json:"user"`
	ArtifactReference *string   `json:"artifact,omitempty"`
	Comment           string    `json:"comment,omitempty"`
	DeclaredStatus    Status    `json:"status,omitempty"`
}

// HasArtifact reports whether the entry carries an artifact reference.
func (e HistoryEntry) HasArtifact() bool {
	return e.ArtifactReference != nil
}

// Artifact returns the artifact reference or an empty string.
func (e HistoryEntry) Artifact() string {
	if e.ArtifactReference == nil {
		return ""
	}
	return *e.ArtifactReference
}

// Document is one uploaded artifact lineage moving through its steps.
// StepBudgets holds per-document overrides only; steps without an entry use
// the global budget at recompute time.
type Document struct {
	ID               string                `json:"id"`
	Supplier         string                `json:"supplier"`
	OriginalFilename string                `json:"original_filename"`
	StepSequence     []string              `json:"step_sequence"`
	CurrentStep      string                `json:"current_step"`
	History          []HistoryEntry        `json:"history"`
	StepStatus       map[string]StepRecord `json:"step_status"`
	StepAssignments  map[string][]string   `json:"step_assignments"`
	StepBudgets      map[string]int        `json:"step_budgets"`
	CreationTime     time.Time             `json:"creation_time"`
}

// Defaults holds the global configuration a new document is seeded from.
// Budgets are not part of it: they stay global until a document overrides
// them.
type Defaults struct {
	Steps       []string
	Assignments map[string][]string
}

// NewDocument materializes a complete per-document configuration: a private
// copy of the default step sequence and assignments, one NotStarted record
// per step, and the first step as current.
func NewDocument(id, supplier, filename string, defaults Defaults, now time.Time) *Document {
	doc := &Document{
		ID:               id,
		Supplier:         strings.TrimSpace(supplier),
		OriginalFilename: strings.TrimSpace(filename),
		StepSequence:     slices.Clone(defaults.Steps),
		History:          []HistoryEntry{},
		StepStatus:       make(map[string]StepRecord, len(defaults.Steps)),
		StepAssignments:  make(map[string][]string, len(defaults.Assignments)),
		StepBudgets:      map[string]int{},
		CreationTime:     now,
	}
	if doc.StepSequence == nil {
		doc.StepSequence = []string{}
	}
	for _, step := range doc.StepSequence {
		doc.StepStatus[step] = NewStepRecord()
		if users, ok := defaults.Assignments[step]; ok {
			doc.StepAssignments[step] = SortedUnique(users)
		}
	}
	if len(doc.StepSequence) > 0 {
		doc.CurrentStep = doc.StepSequence[0]
	}
	return doc
}

// StepIndex returns the position of step in the sequence or -1.
func (d *Document) StepIndex(step string) int {
	return slices.Index(d.StepSequence, step)
}

// HasStep reports whether step belongs to the document's sequence.
func (d *Document) HasStep(step string) bool {
	return d.StepIndex(step) >= 0
}

// Assignment returns the explicit assignment set for step. The boolean is
// false when the document defers to global roles for that step.
func (d *Document) Assignment(step string) ([]string, bool) {
	if d.StepAssignments == nil {
		return nil, false
	}
	users, ok := d.StepAssignments[step]
	return users, ok
}

// HistoryFor reports whether any history entry references step.
func (d *Document) HistoryFor(step string) bool {
	for _, entry := range d.History {
		if entry.Step == step {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand to callers outside the engine lock.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	out := *d
	out.StepSequence = slices.Clone(d.StepSequence)
	out.History = make([]HistoryEntry, len(d.History))
	for i, entry := range d.History {
		if entry.ArtifactReference != nil {
			ref := *entry.ArtifactReference
			entry.ArtifactReference = &ref
		}
		out.History[i] = entry
	}
	out.StepStatus = make(map[string]StepRecord, len(d.StepStatus))
	for step, record := range d.StepStatus {
		if record.LastUpdateTime != nil {
			ts := *record.LastUpdateTime
			record.LastUpdateTime = &ts
		}
		out.StepStatus[step] = record
	}
	out.StepAssignments = make(map[string][]string, len(d.StepAssignments))
	for step, users := range d.StepAssignments {
		out.StepAssignments[step] = slices.Clone(users)
	}
	out.StepBudgets = make(map[string]int, len(d.StepBudgets))
	for step, minutes := range d.StepBudgets {
		out.StepBudgets[step] = minutes
	}
	return &out
}

// NormalizeName trims and NFC-normalizes a step or user name.
func NormalizeName(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}

// SortedUnique normalizes, deduplicates and sorts names, dropping blanks.
// The result is never nil so an explicit empty set survives a round trip.
func SortedUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		name := NormalizeName(value)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
