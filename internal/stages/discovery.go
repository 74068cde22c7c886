package stages

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/domain"
	"github.com/Diamondbanana420/xeriaco-frontend-sub000/internal/pipeline"
)

// Discovery saves new trending candidates as products.
type Discovery struct {
	Catalog       Catalog
	Source        CandidateSource
	MinTrendScore float64
	Logger        *slog.Logger
}

func (d *Discovery) Name() domain.StageName { return domain.StageDiscovery }

func (d *Discovery) Run(ctx context.Context, sc pipeline.StageContext) (pipeline.Result, error) {
	logger := orDefault(d.Logger).With("run_id", sc.RunID, "stage", domain.StageDiscovery)
	if d.Source == nil {
		sc.Logf(domain.LogLevelWarn, "No candidate source configured")
		return pipeline.Result{Summary: domain.StageSummary{"discovered": 0, "saved": 0}}, nil
	}

	candidates, err := d.Source.Candidates(ctx)
	if err != nil {
		return pipeline.Result{}, err
	}

	qualified := make([]domain.Candidate, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))
	for _, c := range candidates {
		key := dedupeKey(c)
		if key == "" || seen[key] || c.TrendScore < d.MinTrendScore {
			continue
		}
		seen[key] = true
		qualified = append(qualified, c)
	}
	sort.SliceStable(qualified, func(i, j int) bool { return qualified[i].TrendScore > qualified[j].TrendScore })
	if limit := sc.Limits.MaxProducts; limit > 0 && len(qualified) > limit {
		qualified = qualified[:limit]
	}

	var res pipeline.Result
	saved := 0
	for _, c := range qualified {
		if c.SourceURL != "" {
			existing, err := d.Catalog.GetProductBySourceURL(ctx, c.SourceURL)
			if err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.Title, err))
				continue
			}
			if existing != nil {
				continue
			}
		}
		p := &domain.Product{
			ProductID:  "prod_" + uuid.New().String(),
			Title:      strings.TrimSpace(c.Title),
			Category:   c.Category,
			Tags:       discoveryTags(c),
			Source:     c.Source,
			SourceURL:  c.SourceURL,
			TrendScore: c.TrendScore,
			Active:     true,
		}
		if err := d.Catalog.CreateProduct(ctx, p); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", c.Title, err))
			continue
		}
		saved++
	}

	logger.Info("discovery complete", "candidates", len(candidates), "qualified", len(qualified), "saved", saved)
	sc.Logf(domain.LogLevelInfo, "Discovery: %d found, %d saved", len(candidates), saved)
	res.Summary = domain.StageSummary{"discovered": len(candidates), "saved": saved}
	return res, nil
}

func dedupeKey(c domain.Candidate) string {
	if c.SourceURL != "" {
		return c.SourceURL
	}
	return strings.ToLower(strings.TrimSpace(c.Title))
}

func discoveryTags(c domain.Candidate) []string {
	tags := make([]string, 0, len(c.Tags)+2)
	for _, t := range append([]string{c.Source, c.Category}, c.Tags...) {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
