package domain

import "time"

// StageSummary holds the counters a stage reports, e.g. {"listed": 3}.
type StageSummary map[string]int

// RunError is one entry of a run's append-only error list.
type RunError struct {
	Stage     StageName `json:"stage"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// LogEntry is one entry of a run's append-only log.
type LogEntry struct {
	Level     LogLevel  `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Limits bounds how much work a run's stages may do.
type Limits struct {
	MaxProducts int `json:"max_products,omitempty"`
	MaxListings int `json:"max_listings,omitempty"`
	SyncBatch   int `json:"sync_batch,omitempty"`
}

// WithDefaults fills zero fields from def.
func (l Limits) WithDefaults(def Limits) Limits {
	if l.MaxProducts <= 0 {
		l.MaxProducts = def.MaxProducts
	}
	if l.MaxListings <= 0 {
		l.MaxListings = def.MaxListings
	}
	if l.SyncBatch <= 0 {
		l.SyncBatch = def.SyncBatch
	}
	return l
}

// Run represents one end-to-end execution of the pipeline.
type Run struct {
	RunID        string                     `json:"run_id"`
	Kind         RunKind                    `json:"kind"`
	Status       RunStatus                  `json:"status"`
	StageResults map[StageName]StageSummary `json:"stage_results"`
	Errors       []RunError                 `json:"errors"`
	Logs         []LogEntry                 `json:"logs"`
	Limits       Limits                     `json:"limits"`
	TriggeredBy  Trigger                    `json:"triggered_by"`
	CreatedAt    time.Time                  `json:"created_at"`
	StartedAt    *time.Time                 `json:"started_at,omitempty"`
	CompletedAt  *time.Time                 `json:"completed_at,omitempty"`
	DurationMs   int64                      `json:"duration_ms"`
}

// Clone returns a deep copy of the run safe to hand to another goroutine.
func (r *Run) Clone() *Run {
	if r == nil {
		return nil
	}
	c := *r
	c.StageResults = make(map[StageName]StageSummary, len(r.StageResults))
	for stage, summary := range r.StageResults {
		s := make(StageSummary, len(summary))
		for k, v := range summary {
			s[k] = v
		}
		c.StageResults[stage] = s
	}
	c.Errors = append([]RunError(nil), r.Errors...)
	c.Logs = append([]LogEntry(nil), r.Logs...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Counter returns a stage counter, zero when the stage has not reported.
func (r *Run) Counter(stage StageName, key string) int {
	return r.StageResults[stage][key]
}
