// Package domain defines the core domain models for the pipeline.
package domain

// RunStatus represents the status of a pipeline run.
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	}
	return false
}

// IsActive reports whether s counts against the single-active-run rule.
func (s RunStatus) IsActive() bool {
	return s == RunStatusQueued || s == RunStatusRunning
}

// RunKind selects the stage plan of a run.
type RunKind string

const (
	RunKindFull           RunKind = "full"
	RunKindTrendScout     RunKind = "trend_scout"
	RunKindPriceUpdate    RunKind = "price_update"
	RunKindInventoryCheck RunKind = "inventory_check"
)

// Valid reports whether k is a known run kind.
func (k RunKind) Valid() bool {
	switch k {
	case RunKindFull, RunKindTrendScout, RunKindPriceUpdate, RunKindInventoryCheck:
		return true
	}
	return false
}

// Trigger records what started a run.
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerCron    Trigger = "cron"
	TriggerAgent   Trigger = "agent"
	TriggerWebhook Trigger = "webhook"
)

// Valid reports whether t is a known trigger.
func (t Trigger) Valid() bool {
	switch t {
	case TriggerManual, TriggerCron, TriggerAgent, TriggerWebhook:
		return true
	}
	return false
}

// StageName identifies a stage within a run.
type StageName string

const (
	StageDiscovery    StageName = "discovery"
	StageSourcing     StageName = "sourcing"
	StageEnrichment   StageName = "enrichment"
	StageValidation   StageName = "validation"
	StageListing      StageName = "listing"
	StageExternalSync StageName = "external_sync"
	StageRepricing    StageName = "repricing"
	StageInventory    StageName = "inventory"

	// StageFatal tags errors that aborted the whole run.
	StageFatal StageName = "fatal"
)

// LogLevel is the severity of a run log entry.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// SyncState tags a value produced through the agent bridge.
type SyncState string

const (
	// SyncStateConfirmed means the agent replied with a usable result.
	SyncStateConfirmed SyncState = "confirmed"
	// SyncStatePending means no usable reply arrived; the value is a placeholder.
	SyncStatePending SyncState = "pending"
)

// CommandType names a command sent to the external agent.
type CommandType string

const (
	CommandCreateListing     CommandType = "create_listing"
	CommandUpdateListing     CommandType = "update_listing"
	CommandGetListing        CommandType = "get_listing"
	CommandDeleteListing     CommandType = "delete_listing"
	CommandUpdatePrice       CommandType = "update_price"
	CommandCreateFulfillment CommandType = "create_fulfillment"
	CommandSetInventory      CommandType = "set_inventory"
	CommandGetListingCount   CommandType = "get_listing_count"

	CommandAlertPipelineComplete CommandType = "alert_pipeline_complete"
	CommandAlertPipelineError    CommandType = "alert_pipeline_error"
	CommandAlertLowStock         CommandType = "alert_low_stock"
	CommandAlertPriceChange      CommandType = "alert_price_change"
	CommandPing                  CommandType = "ping"
)

// ValidationDecision is the outcome of evaluating a candidate product.
type ValidationDecision string

const (
	DecisionApprove ValidationDecision = "approve"
	DecisionReject  ValidationDecision = "reject"
	DecisionHold    ValidationDecision = "hold"
)
