package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

const (
	StageRetrieval      = "retrieval"
	StageDisambiguation = "disambiguation"
	StageEnrichment     = "enrichment"
	StagePersist        = "persist"
	StageScoring        = "scoring"

	CacheOutcomeHit      = "hit"
	CacheOutcomeRestored = "restored"
	CacheOutcomeMiss     = "miss"
	CacheOutcomeMismatch = "mismatch"

	defaultNeighborCount = 20
	defaultDisplayPages  = 10
	unknownEntity        = "Unknown"
)

type PipelineConfig struct {
	NeighborCount        int
	MaxPages             int
	DisplayPages         int
	JudgmentModels       domain.JudgmentModels
	DefaultJudgmentModel string
	Clock                func() time.Time
}

func (c PipelineConfig) normalize() PipelineConfig {
	out := c
	if out.NeighborCount <= 0 {
		out.NeighborCount = defaultNeighborCount
	}
	if out.MaxPages <= 0 {
		out.MaxPages = defaultMaxPages
	}
	if out.DisplayPages <= 0 {
		out.DisplayPages = defaultDisplayPages
	}
	if out.Clock == nil {
		out.Clock = time.Now
	}
	return out
}

// PipelineUseCase sequences retrieval, disambiguation, enrichment and scoring,
// reusing upstream artifacts of a live session when the image matches.
type PipelineUseCase struct {
	retriever     ports.EntityRetriever
	disambiguator *SenseDisambiguator
	fetcher       *EnrichmentFetcher
	scorer        *RelevanceScorer
	cache         ports.SessionCache
	store         ports.ArtifactStore
	observer      ports.PipelineObserver
	cfg           PipelineConfig
}

func NewPipelineUseCase(
	retriever ports.EntityRetriever,
	disambiguator *SenseDisambiguator,
	fetcher *EnrichmentFetcher,
	scorer *RelevanceScorer,
	cache ports.SessionCache,
	store ports.ArtifactStore,
	observer ports.PipelineObserver,
	cfg PipelineConfig,
) *PipelineUseCase {
	if observer == nil {
		observer = noopObserver{}
	}
	return &PipelineUseCase{
		retriever:     retriever,
		disambiguator: disambiguator,
		fetcher:       fetcher,
		scorer:        scorer,
		cache:         cache,
		store:         store,
		observer:      observer,
		cfg:           cfg.normalize(),
	}
}

func (uc *PipelineUseCase) JudgmentModels() []string {
	names := make([]string, 0, len(uc.cfg.JudgmentModels))
	for name := range uc.cfg.JudgmentModels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (uc *PipelineUseCase) Process(ctx context.Context, in ports.AnalyzeInput) (*domain.AnalysisResult, error) {
	req, err := uc.newRequest(in)
	if err != nil {
		return nil, err
	}

	if req.RequestedSessID != "" {
		if entry, ok := uc.lookupSession(ctx, req); ok {
			return uc.scoreCached(ctx, req, entry)
		}
	}
	return uc.runFresh(ctx, req)
}

func (uc *PipelineUseCase) newRequest(in ports.AnalyzeInput) (domain.AnalysisRequest, error) {
	cultures := NormalizeCultures(in.Cultures)
	if len(cultures) == 0 {
		return domain.AnalysisRequest{}, domain.WrapError(domain.ErrInvalidInput, "validate request", errors.New("at least one culture must be provided"))
	}

	modelName := strings.TrimSpace(in.JudgmentModel)
	if modelName == "" {
		modelName = uc.cfg.DefaultJudgmentModel
	}
	tag, err := uc.cfg.JudgmentModels.Resolve(modelName)
	if err != nil {
		return domain.AnalysisRequest{}, err
	}

	if err := ValidateImage(in.Image); err != nil {
		return domain.AnalysisRequest{}, err
	}

	return domain.AnalysisRequest{
		Image:           in.Image,
		Fingerprint:     domain.Fingerprint(in.Image),
		Cultures:        cultures,
		Mode:            domain.ContextModeFromFlag(in.MultiContext),
		JudgmentModel:   modelName,
		JudgmentTag:     tag,
		RequestedSessID: strings.TrimSpace(in.SessionID),
		ReceivedAt:      uc.cfg.Clock(),
	}, nil
}

// lookupSession finds a reusable session in memory or, after a restart, in the
// artifact store. A session whose fingerprint differs from the request image is
// never reused.
func (uc *PipelineUseCase) lookupSession(ctx context.Context, req domain.AnalysisRequest) (domain.CacheEntry, bool) {
	id := req.RequestedSessID
	outcome := CacheOutcomeHit
	entry, ok := uc.cache.Get(id)
	if !ok {
		session, artifacts, err := uc.store.LoadSession(ctx, id)
		if err != nil {
			if !domain.IsKind(err, domain.ErrSessionNotFound) {
				slog.Warn("session_restore_failed", "session_id", id, "error", err)
			}
			uc.observer.ObserveCacheLookup(CacheOutcomeMiss)
			slog.Info("cache_lookup", "session_id", id, "outcome", CacheOutcomeMiss)
			return domain.CacheEntry{}, false
		}
		entry = domain.CacheEntry{Session: session, Artifacts: artifacts}
		outcome = CacheOutcomeRestored
	}

	if entry.Session.Fingerprint != req.Fingerprint {
		uc.observer.ObserveCacheLookup(CacheOutcomeMismatch)
		slog.Warn("cache_lookup",
			"session_id", id,
			"outcome", CacheOutcomeMismatch,
			"cached_fingerprint", entry.Session.Fingerprint,
			"request_fingerprint", req.Fingerprint,
		)
		return domain.CacheEntry{}, false
	}

	if outcome == CacheOutcomeRestored {
		uc.cache.Put(entry)
	}
	uc.observer.ObserveCacheLookup(outcome)
	slog.Info("cache_lookup", "session_id", id, "outcome", outcome)
	return entry, true
}

func (uc *PipelineUseCase) scoreCached(ctx context.Context, req domain.AnalysisRequest, entry domain.CacheEntry) (*domain.AnalysisResult, error) {
	id := entry.Session.ID
	scores, err := uc.score(ctx, req, entry.Artifacts.Pages)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	if err := uc.persistScores(ctx, id, req.JudgmentModel, scores); err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return uc.assemble(id, true, entry.Artifacts.Pages, scores), nil
}

func (uc *PipelineUseCase) runFresh(ctx context.Context, req domain.AnalysisRequest) (*domain.AnalysisResult, error) {
	session := domain.Session{
		ID:          domain.NewSessionID(req.ReceivedAt),
		Fingerprint: req.Fingerprint,
		CreatedAt:   req.ReceivedAt,
	}

	artifacts, err := uc.runUpstream(ctx, req)
	if err != nil {
		return nil, err
	}

	err = uc.timed(StagePersist, func() error {
		if err := uc.store.SaveSession(ctx, session, artifacts); err != nil {
			return fmt.Errorf("%s: %w", StagePersist, err)
		}
		return nil
	})
	if err != nil {
		uc.discard(ctx, session.ID)
		return nil, err
	}

	scores, err := uc.score(ctx, req, artifacts.Pages)
	if err == nil {
		err = uc.persistScores(ctx, session.ID, req.JudgmentModel, scores)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		uc.discard(ctx, session.ID)
		return nil, err
	}

	uc.cache.Put(domain.CacheEntry{Session: session, Artifacts: artifacts})
	slog.Info("session_created", "session_id", session.ID, "pages", len(artifacts.Pages))
	return uc.assemble(session.ID, false, artifacts.Pages, scores), nil
}

func (uc *PipelineUseCase) runUpstream(ctx context.Context, req domain.AnalysisRequest) (domain.UpstreamArtifacts, error) {
	var artifacts domain.UpstreamArtifacts

	err := uc.timed(StageRetrieval, func() error {
		retrieval, err := uc.retriever.Retrieve(ctx, req.Image, uc.cfg.NeighborCount)
		if err != nil {
			return fmt.Errorf("%s: %w", StageRetrieval, err)
		}
		artifacts.Retrieval = retrieval
		return nil
	})
	if err != nil {
		return artifacts, err
	}

	err = uc.timed(StageDisambiguation, func() error {
		pool := CandidatePool(artifacts.Retrieval.Neighbors)
		senses, err := uc.disambiguator.Rank(ctx, artifacts.Retrieval.Embedding, pool)
		if err != nil {
			return fmt.Errorf("%s: %w", StageDisambiguation, err)
		}
		artifacts.Senses = senses
		return nil
	})
	if err != nil {
		return artifacts, err
	}

	err = uc.timed(StageEnrichment, func() error {
		pages, err := uc.fetcher.Fetch(ctx, artifacts.Senses, uc.cfg.MaxPages)
		if err != nil {
			return fmt.Errorf("%s: %w", StageEnrichment, err)
		}
		artifacts.Pages = pages
		return nil
	})
	if err != nil {
		return artifacts, err
	}
	uc.observer.ObservePages(len(artifacts.Pages))
	return artifacts, nil
}

func (uc *PipelineUseCase) score(ctx context.Context, req domain.AnalysisRequest, pages []domain.EnrichmentPage) ([]domain.ScoreRecord, error) {
	var scores []domain.ScoreRecord
	err := uc.timed(StageScoring, func() error {
		var err error
		scores, err = uc.scorer.Score(ctx, req, pages)
		if err != nil {
			return fmt.Errorf("%s: %w", StageScoring, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.observer.ObserveScores(req.JudgmentModel, scores)
	return scores, nil
}

func (uc *PipelineUseCase) persistScores(ctx context.Context, sessionID, model string, scores []domain.ScoreRecord) error {
	if err := uc.store.SaveScores(ctx, sessionID, model, scores); err != nil {
		return fmt.Errorf("%s: save scores: %w", StagePersist, err)
	}
	return nil
}

// discard removes storage of a fresh session that did not complete. It runs
// even when ctx is already cancelled.
func (uc *PipelineUseCase) discard(ctx context.Context, sessionID string) {
	if err := uc.store.DeleteSession(context.WithoutCancel(ctx), sessionID); err != nil {
		slog.Warn("session_cleanup_failed", "session_id", sessionID, "error", err)
	}
}

func (uc *PipelineUseCase) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	uc.observer.ObserveStage(stage, time.Since(start), err)
	attrs := []any{
		"stage", stage,
		"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
	}
	if err != nil {
		slog.Error("pipeline_stage", append(attrs, "error", err)...)
		return err
	}
	slog.Debug("pipeline_stage", attrs...)
	return nil
}

func (uc *PipelineUseCase) assemble(sessionID string, cacheHit bool, pages []domain.EnrichmentPage, scores []domain.ScoreRecord) *domain.AnalysisResult {
	return &domain.AnalysisResult{
		Scores:        scores,
		Pages:         summarizePages(pages, uc.cfg.DisplayPages),
		MatchedEntity: matchedEntity(pages),
		SessionID:     sessionID,
		CacheHit:      cacheHit,
	}
}

func summarizePages(pages []domain.EnrichmentPage, limit int) []domain.PageSummary {
	n := min(limit, len(pages))
	out := make([]domain.PageSummary, 0, n)
	for i, page := range pages[:n] {
		out = append(out, domain.PageSummary{
			Title: page.Title,
			URL:   domain.PageURL(page.Title),
			Rank:  i + 1,
			Score: page.SenseScore,
		})
	}
	return out
}

func matchedEntity(pages []domain.EnrichmentPage) string {
	if len(pages) == 0 || pages[0].Title == "" {
		return unknownEntity
	}
	return pages[0].Title
}

// NormalizeCultures trims labels and drops empty and repeated ones, keeping the
// first spelling.
func NormalizeCultures(labels []string) []string {
	seen := make(map[string]struct{}, len(labels))
	out := make([]string, 0, len(labels))
	for _, label := range labels {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		key := strings.ToLower(label)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, label)
	}
	return out
}

func ValidateImage(image []byte) error {
	if len(image) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "validate image", errors.New("image payload is empty"))
	}
	if contentType := http.DetectContentType(image); !strings.HasPrefix(contentType, "image/") {
		return domain.WrapError(domain.ErrInvalidInput, "validate image", fmt.Errorf("payload must be an image, got %s", contentType))
	}
	return nil
}

type noopObserver struct{}

func (noopObserver) ObserveStage(string, time.Duration, error)  {}
func (noopObserver) ObserveCacheLookup(string)                  {}
func (noopObserver) ObserveScores(string, []domain.ScoreRecord) {}
func (noopObserver) ObservePages(int)                           {}
