package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

const defaultSenseBatchSize = 64

// SenseDisambiguator ranks candidate senses against an image embedding.
type SenseDisambiguator struct {
	embeddings ports.SenseEmbeddingSource
	batchSize  int
}

func NewSenseDisambiguator(embeddings ports.SenseEmbeddingSource, batchSize int) *SenseDisambiguator {
	if batchSize <= 0 {
		batchSize = defaultSenseBatchSize
	}
	return &SenseDisambiguator{
		embeddings: embeddings,
		batchSize:  batchSize,
	}
}

// CandidatePool is the de-duplicated union of sense ids over all neighbors,
// in first-seen order.
func CandidatePool(neighbors []domain.Neighbor) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		for _, id := range n.SenseIDs {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

func (d *SenseDisambiguator) Rank(ctx context.Context, imageEmbedding []float32, senseIDs []string) ([]domain.SenseCandidate, error) {
	if len(imageEmbedding) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "rank senses", fmt.Errorf("empty image embedding"))
	}

	best := make(map[string]float64, len(senseIDs))
	ids := uniqueStrings(senseIDs)
	for start := 0; start < len(ids); start += d.batchSize {
		end := min(start+d.batchSize, len(ids))
		if err := d.scoreBatch(ctx, imageEmbedding, ids[start:end], best); err != nil {
			return nil, fmt.Errorf("rank senses batch %d: %w", start/d.batchSize, err)
		}
	}

	out := make([]domain.SenseCandidate, 0, len(best))
	for id, score := range best {
		out = append(out, domain.SenseCandidate{SenseID: id, Score: score})
	}
	sortCandidates(out)
	return out, nil
}

func (d *SenseDisambiguator) scoreBatch(ctx context.Context, imageEmbedding []float32, batch []string, best map[string]float64) error {
	vectors, err := d.embeddings.SenseEmbeddings(ctx, batch)
	if err != nil {
		return fmt.Errorf("load sense embeddings: %w", err)
	}
	for _, id := range batch {
		vec, ok := vectors[id]
		if !ok {
			return domain.WrapError(domain.ErrNotFound, "load sense embeddings", fmt.Errorf("sense %s has no embedding", id))
		}
		if len(vec) != len(imageEmbedding) {
			return domain.WrapError(
				domain.ErrInvalidInput,
				"score sense",
				fmt.Errorf("sense %s dimension %d, image dimension %d", id, len(vec), len(imageEmbedding)),
			)
		}
		score := sigmoid(dot(imageEmbedding, vec))
		if prev, ok := best[id]; !ok || score > prev {
			best[id] = score
		}
	}
	return nil
}

// ImageSenseInput is one image of a batch disambiguation run.
type ImageSenseInput struct {
	ImageID   string
	Embedding []float32
	Neighbors []domain.Neighbor
}

type ImageSenseResult struct {
	ImageID string
	Senses  []domain.SenseCandidate
}

// RankImages ranks every image independently. An image whose embeddings cannot
// be loaded is logged and left out of the result.
func (d *SenseDisambiguator) RankImages(ctx context.Context, inputs []ImageSenseInput) []ImageSenseResult {
	out := make([]ImageSenseResult, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			slog.Warn("disambiguation_batch_aborted", "remaining", len(inputs)-len(out), "error", err)
			break
		}
		senses, err := d.Rank(ctx, in.Embedding, CandidatePool(in.Neighbors))
		if err != nil {
			slog.Error("disambiguation_skip", "image_id", in.ImageID, "error", err)
			continue
		}
		out = append(out, ImageSenseResult{ImageID: in.ImageID, Senses: senses})
	}
	return out
}

// sortCandidates orders by score descending, ties broken by sense id so the
// result does not depend on batch layout.
func sortCandidates(candidates []domain.SenseCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].SenseID < candidates[j].SenseID
	})
}

// sortNeighbors orders by ascending distance, ties broken by entity id.
func sortNeighbors(neighbors []domain.Neighbor) {
	sort.SliceStable(neighbors, func(i, j int) bool {
		if neighbors[i].Distance != neighbors[j].Distance {
			return neighbors[i].Distance < neighbors[j].Distance
		}
		return neighbors[i].EntityID < neighbors[j].EntityID
	})
}

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
