package usecase

import (
	"context"
	"fmt"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

// VisualRetriever encodes an image, searches the neighbor index and annotates
// every neighbor with its catalog senses.
type VisualRetriever struct {
	encoder ports.ImageEncoder
	index   ports.NeighborIndex
	catalog ports.SenseCatalog
}

func NewVisualRetriever(encoder ports.ImageEncoder, index ports.NeighborIndex, catalog ports.SenseCatalog) *VisualRetriever {
	return &VisualRetriever{
		encoder: encoder,
		index:   index,
		catalog: catalog,
	}
}

// Retrieve returns at most k neighbors ordered by ascending distance.
func (r *VisualRetriever) Retrieve(ctx context.Context, image []byte, k int) (domain.RetrievalResult, error) {
	if k <= 0 {
		k = defaultNeighborCount
	}
	embedding, err := r.encoder.EncodeImage(ctx, image)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("encode image: %w", err)
	}

	neighbors, err := r.index.Search(ctx, embedding, k)
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("search neighbors: %w", err)
	}
	sortNeighbors(neighbors)
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}

	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		ids = append(ids, n.EntityID)
	}
	senses, err := r.catalog.SensesForEntities(ctx, uniqueStrings(ids))
	if err != nil {
		return domain.RetrievalResult{}, fmt.Errorf("load entity senses: %w", err)
	}
	for i := range neighbors {
		neighbors[i].SenseIDs = senses[neighbors[i].EntityID]
	}

	return domain.RetrievalResult{Embedding: embedding, Neighbors: neighbors}, nil
}
