package domain

// TriggerRequest represents a request to start a pipeline run.
type TriggerRequest struct {
	Kind        RunKind `json:"kind"`
	Limits      Limits  `json:"limits,omitempty"`
	TriggeredBy Trigger `json:"triggered_by,omitempty"`
}

// TriggerResponse is returned when a run was accepted.
type TriggerResponse struct {
	RunID  string    `json:"run_id"`
	Kind   RunKind   `json:"kind"`
	Status RunStatus `json:"status"`
}

// ConflictResponse is returned when a run is already active.
type ConflictResponse struct {
	Error       string `json:"error"`
	ActiveRunID string `json:"active_run_id"`
}

// RunDigest is the short form of a finished run shown in status responses.
type RunDigest struct {
	RunID        string                     `json:"run_id"`
	Kind         RunKind                    `json:"kind"`
	Status       RunStatus                  `json:"status"`
	StageResults map[StageName]StageSummary `json:"stage_results"`
	ErrorCount   int                        `json:"error_count"`
	CompletedAt  int64                      `json:"completed_at,omitempty"`
	DurationMs   int64                      `json:"duration_ms"`
}

// StatusResponse reports the active run and the last completed one.
type StatusResponse struct {
	IsRunning     bool       `json:"is_running"`
	ActiveRun     *Run       `json:"active_run"`
	LastCompleted *RunDigest `json:"last_completed"`
}

// HistoryResponse is one page of runs, newest first.
type HistoryResponse struct {
	Runs       []Run      `json:"runs"`
	Pagination Pagination `json:"pagination"`
}

// Pagination describes a history page.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// CancelResponse is returned after a cancellation request.
type CancelResponse struct {
	RunID   string    `json:"run_id"`
	Status  RunStatus `json:"status"`
	Message string    `json:"message"`
}

// Digest builds the short form of r.
func (r *Run) Digest() *RunDigest {
	if r == nil {
		return nil
	}
	d := &RunDigest{
		RunID:        r.RunID,
		Kind:         r.Kind,
		Status:       r.Status,
		StageResults: r.StageResults,
		ErrorCount:   len(r.Errors),
		DurationMs:   r.DurationMs,
	}
	if r.CompletedAt != nil {
		d.CompletedAt = r.CompletedAt.UnixMilli()
	}
	return d
}
