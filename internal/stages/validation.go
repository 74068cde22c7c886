package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/policy"
)

// Margin thresholds applied by the validation policy.
const (
	DefaultMinMargin     = 20
	DefaultApproveMargin = 35
)

// Validation decides undecided, costed candidates with the product policy.
// Approved products are stamped with the run that approved them.
type Validation struct {
	Catalog       Catalog
	Policy        *policy.Engine
	MinMargin     float64
	ApproveMargin float64
	MinTrendScore float64
	Logger        *slog.Logger
}

func (v *Validation) Name() domain.StageName { return domain.StageValidation }

func (v *Validation) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	if v.Policy == nil {
		return pipeline.Result{}, errors.New("no validation policy configured")
	}
	logger := orDefault(v.Logger).With("run_id", sc.RunID, "stage", domain.StageValidation)

	candidates, err := v.Catalog.ListProducts(ctx, domain.ProductFilter{Undecided: true, Costed: true, Limit: sc.Limits.MaxProducts})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list candidates: %w", err)
	}

	var res pipeline.Result
	approved, rejected, held := 0, 0, 0
	for i := range candidates {
		p := &candidates[i]
		in := v.input(p)
		verdict, err := v.Policy.Evaluate(ctx, in)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}

		switch verdict.Decision {
		case domain.DecisionApprove:
			now := time.Now().UTC()
			p.Approval = domain.Approval{Approved: true, RunID: sc.RunID, ApprovedAt: &now}
		case domain.DecisionReject:
			p.Approval.RejectionReason = policy.Explain(verdict.Reason, in)
		default:
			held++
			continue
		}
		if err := v.Catalog.UpdateProduct(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		if verdict.Decision == domain.DecisionApprove {
			approved++
		} else {
			rejected++
		}
		logger.Debug("product validated", "product_id", p.ProductID, "decision", verdict.Decision, "reason", verdict.Reason)
	}

	sc.Logf(domain.LogLevelInfo, "Validation: %d approved, %d rejected, %d held", approved, rejected, held)
	res.Summary = domain.StageSummary{"validated": approved, "rejected": rejected, "held": held}
	return res, nil
}

func (v *Validation) input(p *domain.Product) policy.Input {
	minMargin, approveMargin := v.MinMargin, v.ApproveMargin
	if minMargin <= 0 {
		minMargin = DefaultMinMargin
	}
	if approveMargin <= 0 {
		approveMargin = DefaultApproveMargin
	}
	return policy.Input{
		Title:         p.Title,
		CostUSD:       p.CostUSD,
		MarginPercent: p.MarginPercent,
		TrendScore:    p.TrendScore,
		SupplierURL:   p.Supplier.URL,
		MinMargin:     minMargin,
		ApproveMargin: approveMargin,
		MinTrendScore: v.MinTrendScore,
	}
}
