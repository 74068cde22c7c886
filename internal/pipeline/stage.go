// Package pipeline runs the catalog pipeline: a fixed sequence of stages per
// run kind, each isolated from the others' failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// ErrFatal marks a stage error that must abort the whole run.
var ErrFatal = errors.New("fatal pipeline error")

// Stage is one independently-failing unit of work.
type Stage interface {
	Name() domain.StageName
	Run(ctx context.Context, sc StageContext) (Result, error)
}

// StageContext is what a stage knows about the run it belongs to.
type StageContext struct {
	RunID  string
	Kind   domain.RunKind
	Limits domain.Limits
	// Log appends to the run's log. Safe for concurrent use.
	Log func(level domain.LogLevel, msg string)
}

// Logf appends a formatted entry to the run log.
func (sc StageContext) Logf(level domain.LogLevel, format string, args ...any) {
	if sc.Log != nil {
		sc.Log(level, fmt.Sprintf(format, args...))
	}
}

// Result is a stage's summary plus any per-item failures that did not stop it.
type Result struct {
	Summary domain.StageSummary
	Errors  []string
}

var plans = map[domain.RunKind][]domain.StageName{
	domain.RunKindFull: {
		domain.StageDiscovery,
		domain.StageSourcing,
		domain.StageEnrichment,
		domain.StageValidation,
		domain.StageListing,
		domain.StageExternalSync,
	},
	domain.RunKindTrendScout:     {domain.StageDiscovery},
	domain.RunKindPriceUpdate:    {domain.StageRepricing},
	domain.RunKindInventoryCheck: {domain.StageInventory},
}

// Plan returns the stage order for kind.
func Plan(kind domain.RunKind) []domain.StageName {
	return append([]domain.StageName(nil), plans[kind]...)
}
