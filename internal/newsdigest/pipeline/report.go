package pipeline

import (
	"fmt"
	"time"

	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/enrich"
	"github.com/RobinCoderZhao/newsdigest/internal/newsdigest/sources"
)

// State is a step of the run state machine. Runs only move forward.
type State int

const (
	Idle State = iota
	Fetching
	Deduping
	Enriching
	Grouping
	Delivering
	Done
	Failed
)

var stateNames = [...]string{"idle", "fetching", "deduping", "enriching", "grouping", "delivering", "done", "failed"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Done || s == Failed }

// SourceReport is the fetch outcome of one source.
type SourceReport struct {
	Name     string        `json:"name"`
	Count    int           `json:"count"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration_ns"`
}

func newSourceReport(res sources.Result) SourceReport {
	sr := SourceReport{Name: res.Name, Count: res.Count, Duration: res.Duration}
	if res.Err != nil {
		sr.Error = res.Err.Error()
	}
	return sr
}

// DedupeReport counts what the merge stage kept and dropped.
type DedupeReport struct {
	Kept        int `json:"kept"`
	NoKey       int `json:"no_key"`
	Duplicates  int `json:"duplicates"`
	AlreadySeen int `json:"already_seen"`
	Excluded    int `json:"excluded"`
}

// Report describes one run.
type Report struct {
	RunID           string         `json:"run_id"`
	State           State          `json:"state"`
	States          []State        `json:"states"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Sources         []SourceReport `json:"sources"`
	Fetched         int            `json:"fetched"`
	Dedupe          DedupeReport   `json:"dedupe"`
	Enrichment      enrich.Stats   `json:"enrichment"`
	Recorded        int            `json:"recorded"`
	RecordFailures  int            `json:"record_failures"`
	Items           int            `json:"items"`
	Groups          []string       `json:"groups,omitempty"`
	Delivered       bool           `json:"delivered"`
	DeliverySkipped bool           `json:"delivery_skipped"`
	Error           string         `json:"error,omitempty"`
}

func newReport(runID string, started time.Time) *Report {
	return &Report{
		RunID:     runID,
		State:     Idle,
		States:    []State{Idle},
		StartedAt: started,
	}
}

// advance moves to s. Backward moves and moves out of a terminal state are
// programming errors.
func (r *Report) advance(s State) {
	if r.State.Terminal() || s <= r.State {
		panic(fmt.Sprintf("pipeline: invalid transition %s -> %s", r.State, s))
	}
	r.State = s
	r.States = append(r.States, s)
}

// Succeeded reports whether the run ended in Done.
func (r *Report) Succeeded() bool { return r.State == Done }
