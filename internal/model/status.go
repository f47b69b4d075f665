package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the state of a single step. The three conventional values are
// defined as constants; any other declared string is kept verbatim.
type Status string

const (
	StatusNotStarted Status = "Not Started"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
)

var conventionalStatuses = map[string]Status{
	"not started": StatusNotStarted,
	"not_started": StatusNotStarted,
	"in progress": StatusInProgress,
	"in_progress": StatusInProgress,
	"completed":   StatusCompleted,
}

// ParseStatus trims the raw value and maps case variants of the conventional
// statuses onto their canonical spelling. Free-form values pass through.
func ParseStatus(raw string) Status {
	trimmed := strings.TrimSpace(raw)
	if canonical, ok := conventionalStatuses[strings.ToLower(trimmed)]; ok {
		return canonical
	}
	return Status(trimmed)
}

// IsCompleted reports whether the status is the terminal Completed value.
func (s Status) IsCompleted() bool {
	return s == StatusCompleted
}

func (s Status) String() string {
	return string(s)
}

// StepRecord is the derived state of one step of one document.
type StepRecord struct {
	Status                Status     `json:"status"`
	LastUpdateTime        *time.Time `json:"last_update_time,omitempty"`
	LastUpdateUser        string     `json:"last_update_user,omitempty"`
	AssignedBudgetMinutes int        `json:"assigned_budget_minutes"`
	WorkedMinutes         float64    `json:"worked_minutes"`
	IsOverdue             bool       `json:"is_overdue"`
}

// NewStepRecord returns the record used for a step nobody has touched yet.
func NewStepRecord() StepRecord {
	return StepRecord{Status: StatusNotStarted}
}

// Equal reports whether two records carry the same derived state.
func (r StepRecord) Equal(other StepRecord) bool {
	if r.Status != other.Status ||
		r.LastUpdateUser != other.LastUpdateUser ||
		r.AssignedBudgetMinutes != other.AssignedBudgetMinutes ||
		r.WorkedMinutes != other.WorkedMinutes ||
		r.IsOverdue != other.IsOverdue {
		return false
	}
	switch {
	case r.LastUpdateTime == nil || other.LastUpdateTime == nil:
		return r.LastUpdateTime == nil && other.LastUpdateTime == nil
	default:
		return r.LastUpdateTime.Equal(*other.LastUpdateTime)
	}
}

// StepStatusValue decodes a persisted step status that is either a legacy
// bare string or a structured record.
type StepStatusValue struct {
	Legacy string
	Record *StepRecord
}

// UnmarshalJSON accepts both `"Completed"` and `{"status":"Completed",...}`.
func (v *StepStatusValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = StepStatusValue{}
		return nil
	}
	if data[0] == '"' {
		var legacy string
		if err := json.Unmarshal(data, &legacy); err != nil {
			return fmt.Errorf("decode legacy step status: %w", err)
		}
		*v = StepStatusValue{Legacy: legacy}
		return nil
	}
	var record StepRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return fmt.Errorf("decode step status record: %w", err)
	}
	*v = StepStatusValue{Record: &record}
	return nil
}

// MarshalJSON always writes the structured form.
func (v StepStatusValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Normalize())
}

// Normalize returns the structured record. A legacy string becomes the
// record's status; an empty value becomes a fresh NotStarted record.
func (v StepStatusValue) Normalize() StepRecord {
	if v.Record != nil {
		record := *v.Record
		record.Status = ParseStatus(string(record.Status))
		if record.Status == "" {
			record.Status = StatusNotStarted
		}
		return record
	}
	record := NewStepRecord()
	if status := ParseStatus(v.Legacy); status != "" {
		record.Status = status
	}
	return record
}

// NormalizeStatusMap upgrades a decoded status map to structured records.
func NormalizeStatusMap(values map[string]StepStatusValue) map[string]StepRecord {
	out := make(map[string]StepRecord, len(values))
	for step, value := range values {
		out[step] = value.Normalize()
	}
	return out
}
