// Package provenance records an append-only audit trail of every action a
// pipeline run takes, and persists it as JSON beside the run's output.
package provenance

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
)

// Entry is a single immutable audit record.
type Entry struct {
	Timestamp    time.Time      `json:"timestamp"`
	Step         string         `json:"step"`
	Action       string         `json:"action"`
	Details      map[string]any `json:"details"`
	RowsAffected int            `json:"rows_affected,omitempty"`
	RuleName     string         `json:"rule_name,omitempty"`
	FileUsed     string         `json:"file_used,omitempty"`
}

// Tracker accumulates entries for one pipeline run. It is owned by the
// orchestrator and shared by reference with each stage for append-only
// writes. A nil Tracker is safe: Log becomes a no-op.
type Tracker struct {
	runID   string
	start   time.Time
	entries []Entry
}

// New creates a Tracker with a fresh run ID.
func New() *Tracker {
	return &Tracker{
		runID: uuid.NewString(),
		start: time.Now(),
	}
}

// NewWithRunID creates a Tracker with a caller-chosen run ID.
func NewWithRunID(runID string) *Tracker {
	t := New()
	t.runID = runID
	return t
}

// RunID returns the run identifier.
func (t *Tracker) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// LogOption sets an optional field on an entry.
type LogOption func(*Entry)

// WithRows records the number of rows affected.
func WithRows(n int) LogOption { return func(e *Entry) { e.RowsAffected = n } }

// WithRule records the rule or check name applied.
func WithRule(name string) LogOption { return func(e *Entry) { e.RuleName = name } }

// WithFile records a file consumed or produced by the action.
func WithFile(path string) LogOption { return func(e *Entry) { e.FileUsed = path } }

// Log appends a timestamped entry. It never fails the caller.
func (t *Tracker) Log(step, action string, details map[string]any, opts ...LogOption) {
	if t == nil {
		return
	}
	e := Entry{
		Timestamp: time.Now(),
		Step:      step,
		Action:    action,
		Details:   details,
	}
	for _, opt := range opts {
		opt(&e)
	}
	t.entries = append(t.entries, e)
}

// Entries returns a copy of the entries recorded so far.
func (t *Tracker) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// StepSummary aggregates the entries of one pipeline step.
type StepSummary struct {
	Actions           []string `json:"actions"`
	EntryCount        int      `json:"entry_count"`
	TotalRowsAffected int      `json:"total_rows_affected"`
}

// Summary aggregates entries grouped by step.
type Summary struct {
	RunID        string                 `json:"run_id"`
	TotalEntries int                    `json:"total_entries"`
	Steps        map[string]StepSummary `json:"steps"`
}

// Summarize returns per-step entry counts and total rows affected.
func (t *Tracker) Summarize() Summary {
	s := Summary{Steps: map[string]StepSummary{}}
	if t == nil {
		return s
	}
	s.RunID = t.runID
	s.TotalEntries = len(t.entries)
	for _, e := range t.entries {
		step := s.Steps[e.Step]
		step.Actions = append(step.Actions, e.Action)
		step.EntryCount++
		step.TotalRowsAffected += e.RowsAffected
		s.Steps[e.Step] = step
	}
	return s
}

// RunLog is the persisted form of a full run.
type RunLog struct {
	RunID           string  `json:"run_id"`
	StartTime       string  `json:"start_time"`
	EndTime         string  `json:"end_time"`
	DurationSeconds float64 `json:"duration_seconds"`
	Entries         []Entry `json:"entries"`
}

// Save serializes the full ledger to a JSON file, creating directories as
// needed.
func (t *Tracker) Save(path string) error {
	if t == nil {
		return nil
	}
	end := time.Now()
	log := RunLog{
		RunID:           t.runID,
		StartTime:       t.start.Format(time.RFC3339Nano),
		EndTime:         end.Format(time.RFC3339Nano),
		DurationSeconds: end.Sub(t.start).Seconds(),
		Entries:         t.entries,
	}
	if log.Entries == nil {
		log.Entries = []Entry{}
	}

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrap(err, "provenance: create dir")
		}
	}

	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return eris.Wrap(err, "provenance: marshal")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrap(err, "provenance: write file")
	}
	return nil
}
