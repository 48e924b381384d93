package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

// BatchImage is one image of an offline batch run.
type BatchImage struct {
	ID    string
	Image []byte
}

// BatchItem is the outcome for one image. Err is set when the image was
// skipped at some stage.
type BatchItem struct {
	ImageID string                 `json:"image_id"`
	Result  *domain.AnalysisResult `json:"result,omitempty"`
	Err     string                 `json:"error,omitempty"`
}

// BatchUseCase scores a folder of images without sessions. One bad image never
// stops the batch.
type BatchUseCase struct {
	retriever     ports.EntityRetriever
	disambiguator *SenseDisambiguator
	fetcher       *EnrichmentFetcher
	scorer        *RelevanceScorer
	cfg           PipelineConfig
}

func NewBatchUseCase(
	retriever ports.EntityRetriever,
	disambiguator *SenseDisambiguator,
	fetcher *EnrichmentFetcher,
	scorer *RelevanceScorer,
	cfg PipelineConfig,
) *BatchUseCase {
	return &BatchUseCase{
		retriever:     retriever,
		disambiguator: disambiguator,
		fetcher:       fetcher,
		scorer:        scorer,
		cfg:           cfg.normalize(),
	}
}

func (uc *BatchUseCase) Run(ctx context.Context, images []BatchImage, cultures []string, modelName string, multi bool) ([]BatchItem, error) {
	cultures = NormalizeCultures(cultures)
	if len(cultures) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "validate batch", errors.New("at least one culture must be provided"))
	}
	if modelName == "" {
		modelName = uc.cfg.DefaultJudgmentModel
	}
	tag, err := uc.cfg.JudgmentModels.Resolve(modelName)
	if err != nil {
		return nil, err
	}

	items := make(map[string]*BatchItem, len(images))
	order := make([]string, 0, len(images))
	byID := make(map[string][]byte, len(images))
	inputs := make([]ImageSenseInput, 0, len(images))
	for _, img := range images {
		item := &BatchItem{ImageID: img.ID}
		items[img.ID] = item
		order = append(order, img.ID)
		byID[img.ID] = img.Image

		if err := ValidateImage(img.Image); err != nil {
			item.Err = err.Error()
			continue
		}
		retrieval, err := uc.retriever.Retrieve(ctx, img.Image, uc.cfg.NeighborCount)
		if err != nil {
			slog.Error("batch_retrieval_skip", "image_id", img.ID, "error", err)
			item.Err = fmt.Sprintf("%s: %v", StageRetrieval, err)
			continue
		}
		inputs = append(inputs, ImageSenseInput{
			ImageID:   img.ID,
			Embedding: retrieval.Embedding,
			Neighbors: retrieval.Neighbors,
		})
	}

	ranked := uc.disambiguator.RankImages(ctx, inputs)
	rankedIDs := make(map[string]struct{}, len(ranked))
	for _, r := range ranked {
		rankedIDs[r.ImageID] = struct{}{}
		item := items[r.ImageID]

		pages, err := uc.fetcher.Fetch(ctx, r.Senses, uc.cfg.MaxPages)
		if err != nil {
			item.Err = fmt.Sprintf("%s: %v", StageEnrichment, err)
			continue
		}
		req := domain.AnalysisRequest{
			Image:         byID[r.ImageID],
			Fingerprint:   domain.Fingerprint(byID[r.ImageID]),
			Cultures:      cultures,
			Mode:          domain.ContextModeFromFlag(multi),
			JudgmentModel: modelName,
			JudgmentTag:   tag,
			ReceivedAt:    uc.cfg.Clock(),
		}
		scores, err := uc.scorer.Score(ctx, req, pages)
		if err != nil {
			slog.Error("batch_scoring_skip", "image_id", r.ImageID, "error", err)
			item.Err = fmt.Sprintf("%s: %v", StageScoring, err)
			continue
		}
		item.Result = &domain.AnalysisResult{
			Scores:        scores,
			Pages:         summarizePages(pages, uc.cfg.DisplayPages),
			MatchedEntity: matchedEntity(pages),
		}
	}
	for _, in := range inputs {
		if _, ok := rankedIDs[in.ImageID]; !ok {
			items[in.ImageID].Err = StageDisambiguation + ": skipped"
		}
	}

	out := make([]BatchItem, 0, len(order))
	for _, id := range order {
		out = append(out, *items[id])
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}
