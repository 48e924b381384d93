package ports

import (
	"context"
	"io"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

// AnalyzeInput is the raw inbound request before validation.
type AnalyzeInput struct {
	Image         []byte
	Cultures      []string
	MultiContext  bool
	JudgmentModel string
	SessionID     string
}

// RelevanceAnalyzer is the inbound contract for image/culture relevance analysis.
type RelevanceAnalyzer interface {
	Process(ctx context.Context, in AnalyzeInput) (*domain.AnalysisResult, error)
}

// JudgmentModelLister reports which judgment models the analyzer accepts.
type JudgmentModelLister interface {
	JudgmentModels() []string
}

// AnalysisJobQueuer accepts an image for asynchronous analysis by the worker.
type AnalysisJobQueuer interface {
	Enqueue(ctx context.Context, filename string, body io.Reader, job domain.AnalysisJob) (*domain.AnalysisJob, error)
}
