package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

// maxImageBytes bounds what a queued job may load back from object storage.
const maxImageBytes = 32 << 20

// JobUseCase queues analyses for the worker and runs them when they arrive.
type JobUseCase struct {
	analyzer     ports.RelevanceAnalyzer
	storage      ports.ObjectStorage
	queue        ports.JobQueue
	lists        domain.CultureLists
	models       domain.JudgmentModels
	defaultModel string
}

func NewJobUseCase(
	analyzer ports.RelevanceAnalyzer,
	storage ports.ObjectStorage,
	queue ports.JobQueue,
	lists domain.CultureLists,
	models domain.JudgmentModels,
	defaultModel string,
) *JobUseCase {
	return &JobUseCase{
		analyzer:     analyzer,
		storage:      storage,
		queue:        queue,
		lists:        lists,
		models:       models,
		defaultModel: defaultModel,
	}
}

// Enqueue validates the job and the image, stores the image and publishes a
// job referring to it. Nothing is stored for a rejected job. The returned job
// carries the storage key the worker will read.
func (uc *JobUseCase) Enqueue(ctx context.Context, filename string, body io.Reader, job domain.AnalysisJob) (*domain.AnalysisJob, error) {
	if len(job.Cultures) == 0 && strings.TrimSpace(job.ListName) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "enqueue analysis", errors.New("cultures or list_name is required"))
	}
	if job.ListName != "" {
		if _, err := uc.lists.Resolve(job.ListName); err != nil {
			return nil, err
		}
	}

	job.JudgmentModel = strings.TrimSpace(job.JudgmentModel)
	if job.JudgmentModel == "" {
		job.JudgmentModel = uc.defaultModel
	}
	if _, err := uc.models.Resolve(job.JudgmentModel); err != nil {
		return nil, err
	}

	image, err := readImage(body, filename)
	if err != nil {
		return nil, err
	}
	if err := ValidateImage(image); err != nil {
		return nil, err
	}

	job.ImageKey = fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filename))
	if err := uc.storage.Save(ctx, job.ImageKey, bytes.NewReader(image)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}
	if err := uc.queue.PublishAnalysisJob(ctx, job); err != nil {
		if delErr := uc.storage.Delete(context.WithoutCancel(ctx), job.ImageKey); delErr != nil {
			slog.Warn("job_upload_cleanup_failed", "image_key", job.ImageKey, "error", delErr)
		}
		return nil, fmt.Errorf("publish analysis job: %w", err)
	}
	return &job, nil
}

// Handle runs one queued job through the analyzer.
func (uc *JobUseCase) Handle(ctx context.Context, job domain.AnalysisJob) (*domain.AnalysisResult, error) {
	cultures := job.Cultures
	if len(cultures) == 0 {
		resolved, err := uc.lists.Resolve(job.ListName)
		if err != nil {
			return nil, err
		}
		cultures = resolved
	}

	image, err := uc.loadImage(ctx, job.ImageKey)
	if err != nil {
		return nil, err
	}

	return uc.analyzer.Process(ctx, ports.AnalyzeInput{
		Image:         image,
		Cultures:      cultures,
		MultiContext:  job.MultiContext,
		JudgmentModel: job.JudgmentModel,
		SessionID:     job.SessionID,
	})
}

func (uc *JobUseCase) loadImage(ctx context.Context, key string) ([]byte, error) {
	rc, err := uc.storage.Open(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", key, err)
	}
	defer rc.Close()
	return readImage(rc, key)
}

func readImage(r io.Reader, name string) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read image %s: %w", name, err)
	}
	if n > maxImageBytes {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read image", fmt.Errorf("image %s exceeds %d bytes", name, maxImageBytes))
	}
	return buf.Bytes(), nil
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." || base == "_" {
		return "image.bin"
	}
	return base
}
