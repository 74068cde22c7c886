// Package policy evaluates product validation rules written in Rego.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
)

// Reason codes produced by DefaultPolicy.
const (
	ReasonNoCost         = "no_cost"
	ReasonLowMargin      = "low_margin"
	ReasonNoSupplier     = "no_supplier"
	ReasonTrendScore     = "trend_score"
	ReasonMargin         = "margin"
	ReasonBelowThreshold = "below_threshold"
)

// Input is the document the policy evaluates.
type Input struct {
	Title         string  `json:"title"`
	CostUSD       float64 `json:"cost_usd"`
	MarginPercent float64 `json:"margin_percent"`
	TrendScore    float64 `json:"trend_score"`
	SupplierURL   string  `json:"supplier_url"`
	// Thresholds
	MinMargin     float64 `json:"min_margin"`
	ApproveMargin float64 `json:"approve_margin"`
	MinTrendScore float64 `json:"min_trend_score"`
}

// Verdict is the policy's decision with its reason code.
type Verdict struct {
	Decision domain.ValidationDecision
	Reason   string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.product_policy.verdict"),
		rego.Module("product_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate runs the policy against one product.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Verdict, error) {
	doc := map[string]interface{}{
		"title":           input.Title,
		"cost_usd":        input.CostUSD,
		"margin_percent":  input.MarginPercent,
		"trend_score":     input.TrendScore,
		"supplier_url":    input.SupplierURL,
		"min_margin":      input.MinMargin,
		"approve_margin":  input.ApproveMargin,
		"min_trend_score": input.MinTrendScore,
	}
	results, err := e.query.Eval(ctx, rego.EvalInput(doc))
	if err != nil {
		return Verdict{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined verdict leaves the product for a later run.
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Verdict{Decision: domain.DecisionHold, Reason: "undefined"}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Verdict{}, fmt.Errorf("policy returned %T, want object", results[0].Expressions[0].Value)
	}
	decision, _ := obj["decision"].(string)
	reason, _ := obj["reason"].(string)
	switch v := domain.ValidationDecision(decision); v {
	case domain.DecisionApprove, domain.DecisionReject, domain.DecisionHold:
		return Verdict{Decision: v, Reason: reason}, nil
	default:
		return Verdict{}, fmt.Errorf("policy returned unknown decision %q", decision)
	}
}

// Explain renders a reason code as the rejection text stored on a product.
func Explain(reason string, input Input) string {
	switch reason {
	case ReasonNoCost:
		return "No cost data"
	case ReasonLowMargin:
		return fmt.Sprintf("Low margin: %.1f%%", input.MarginPercent)
	case ReasonNoSupplier:
		return "No supplier found"
	case ReasonBelowThreshold:
		return "Below approval thresholds"
	}
	return reason
}

// DefaultPolicy rejects products that cannot be sold at a profit and
// approves trending or high-margin ones. Anything else is held.
const DefaultPolicy = `
package product_policy

verdict = {"decision": "reject", "reason": "no_cost"} {
	input.cost_usd <= 0
} else = {"decision": "reject", "reason": "low_margin"} {
	input.margin_percent < input.min_margin
} else = {"decision": "reject", "reason": "no_supplier"} {
	input.supplier_url == ""
} else = {"decision": "approve", "reason": "trend_score"} {
	input.trend_score >= input.min_trend_score
} else = {"decision": "approve", "reason": "margin"} {
	input.margin_percent >= input.approve_margin
} else = {"decision": "hold", "reason": "below_threshold"} {
	true
}
`
