package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// ImageEncoder turns an image into its visual embedding.
type ImageEncoder interface {
	EncodeImage(ctx context.Context, image []byte) ([]float32, error)
}

// NeighborIndex performs nearest-neighbor search over catalog entity images.
type NeighborIndex interface {
	Search(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error)
}

// EntityRetriever turns an image into ranked catalog neighbors.
type EntityRetriever interface {
	Retrieve(ctx context.Context, image []byte, k int) (domain.RetrievalResult, error)
}

// SenseCatalog resolves catalog entities to senses and senses to encyclopedia pages.
type SenseCatalog interface {
	SensesForEntities(ctx context.Context, entityIDs []string) (map[string][]string, error)
	PageRefs(ctx context.Context, senseID string) ([]domain.PageRef, error)
}

// SenseEmbeddingSource looks up precomputed sense vectors. A missing id is an error.
type SenseEmbeddingSource interface {
	SenseEmbeddings(ctx context.Context, senseIDs []string) (map[string][]float32, error)
}

// ContentSource fetches encyclopedia pages. Both calls return domain.ErrNotFound
// when the page or link does not exist.
type ContentSource interface {
	Page(ctx context.Context, title string) (domain.Page, error)
	EnglishTitle(ctx context.Context, language, title string) (string, error)
}

// JudgmentModel returns the raw, unstructured verdict text.
type JudgmentModel interface {
	Judge(ctx context.Context, in domain.JudgmentInput) (string, error)
}

// SessionCache holds upstream artifacts for live sessions.
type SessionCache interface {
	Get(sessionID string) (domain.CacheEntry, bool)
	Put(entry domain.CacheEntry)
	Delete(sessionID string)
}

// ArtifactStore persists per-session blobs so sessions survive a restart.
type ArtifactStore interface {
	SaveSession(ctx context.Context, session domain.Session, artifacts domain.UpstreamArtifacts) error
	LoadSession(ctx context.Context, sessionID string) (domain.Session, domain.UpstreamArtifacts, error)
	SaveScores(ctx context.Context, sessionID, model string, scores []domain.ScoreRecord) error
	DeleteSession(ctx context.Context, sessionID string) error
}

// ObjectStorage stores uploaded source images for queued jobs.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// JobQueue publishes/consumes batch analysis jobs.
type JobQueue interface {
	PublishAnalysisJob(ctx context.Context, job domain.AnalysisJob) error
	SubscribeAnalysisJobs(ctx context.Context, handler func(context.Context, domain.AnalysisJob) (*domain.AnalysisResult, error)) error
}

// PipelineObserver receives stage timings and outcomes for metrics.
type PipelineObserver interface {
	ObserveStage(stage string, duration time.Duration, err error)
	ObserveCacheLookup(outcome string)
	ObserveScores(model string, records []domain.ScoreRecord)
	ObservePages(count int)
}
