package stages

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/adapter/llm"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

const copywriterPrompt = `You are a premium ecommerce copywriter for an Australian online store.
Write a confident product description of 150 to 250 words that highlights key benefits and use cases.
Return only the description text, no headings or labels.`

// Enrichment writes descriptions for priced products that lack one.
type Enrichment struct {
	Catalog   Catalog
	LLM       llm.LLMClient
	Model     string
	MaxTokens int
	Logger    *slog.Logger
}

func (e *Enrichment) Name() domain.StageName { return domain.StageEnrichment }

// Run stops at the first rate-limit response; the remaining products are
// picked up by a later run.
func (e *Enrichment) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	logger := orDefault(e.Logger).With("run_id", sc.RunID, "stage", domain.StageEnrichment)
	if e.LLM == nil {
		sc.Logf(domain.LogLevelWarn, "No LLM configured, enrichment skipped")
		return pipeline.Result{Summary: domain.StageSummary{"enriched": 0}}, nil
	}

	products, err := e.Catalog.ListProducts(ctx, domain.ProductFilter{NeedsContent: true, Limit: sc.Limits.MaxProducts})
	if err != nil {
		return pipeline.Result{}, fmt.Errorf("failed to list products needing content: %w", err)
	}

	var res pipeline.Result
	enriched := 0
	for i := range products {
		p := &products[i]
		desc, err := e.describe(ctx, p)
		if errors.Is(err, llm.ErrRateLimited) {
			logger.Warn("llm rate limited", "enriched", enriched)
			return pipeline.Result{}, errors.New("rate limited")
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		p.Description = desc
		if err := e.Catalog.UpdateProduct(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", p.Title, err))
			continue
		}
		enriched++
	}

	sc.Logf(domain.LogLevelInfo, "Enrichment: %d products described", enriched)
	res.Summary = domain.StageSummary{"enriched": enriched}
	return res, nil
}

func (e *Enrichment) describe(ctx context.Context, p *domain.Product) (string, error) {
	req := &llm.ChatCompletionRequest{
		Model: e.Model,
		Messages: []llm.ChatMessage{
			{Role: "system", Content: copywriterPrompt},
			{Role: "user", Content: productBrief(p)},
		},
	}
	if e.MaxTokens > 0 {
		maxTokens := e.MaxTokens
		req.MaxTokens = &maxTokens
	}
	resp, err := e.LLM.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	desc := strings.TrimSpace(resp.Content())
	if desc == "" {
		return "", errors.New("empty description")
	}
	return desc, nil
}

func productBrief(p *domain.Product) string {
	category := p.Category
	if category == "" {
		category = "general"
	}
	return fmt.Sprintf("Title: %s\nCategory: %s\nPrice: $%.2f AUD\nTags: %s",
		p.Title, category, p.PriceAUD, strings.Join(p.Tags, ", "))
}
