package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

const noContextReasoning = "no encyclopedic context was available for this image"

// RelevanceScorer asks the judgment model for one verdict per culture label.
type RelevanceScorer struct {
	judge ports.JudgmentModel
	cfg   ContextConfig
}

func NewRelevanceScorer(judge ports.JudgmentModel, cfg ContextConfig) *RelevanceScorer {
	return &RelevanceScorer{
		judge: judge,
		cfg:   cfg.normalize(),
	}
}

// Score returns a record for every culture in req, in request order. Without
// pages every record is absent and the model is not called.
func (s *RelevanceScorer) Score(ctx context.Context, req domain.AnalysisRequest, pages []domain.EnrichmentPage) ([]domain.ScoreRecord, error) {
	records := make([]domain.ScoreRecord, 0, len(req.Cultures))
	if len(pages) == 0 {
		for _, culture := range req.Cultures {
			records = append(records, domain.ScoreRecord{Culture: culture, Reasoning: noContextReasoning})
		}
		return records, nil
	}

	contextText, names := buildJudgmentContext(req.Mode, pages, s.cfg)
	for _, culture := range req.Cultures {
		raw, err := s.judge.Judge(ctx, domain.JudgmentInput{
			Model:       req.JudgmentTag,
			Image:       req.Image,
			ContextText: contextText,
			EntityNames: names,
			Culture:     culture,
		})
		if err != nil {
			return nil, fmt.Errorf("judge culture %q: %w", culture, err)
		}
		verdict := ParseVerdict(raw)
		records = append(records, domain.ScoreRecord{
			Culture:   culture,
			Score:     verdict.Score,
			Reasoning: verdict.Reasoning,
		})
	}
	return records, nil
}
