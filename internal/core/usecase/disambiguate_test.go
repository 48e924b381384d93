package usecase

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

func TestCandidatePoolDeduplicatesInFirstSeenOrder(t *testing.T) {
	pool := CandidatePool([]domain.Neighbor{
		{EntityID: "e1", SenseIDs: []string{"s2", "s1"}},
		{EntityID: "e2", SenseIDs: []string{"s1", "", "s3"}},
		{EntityID: "e3"},
	})
	want := []string{"s2", "s1", "s3"}
	if !reflect.DeepEqual(pool, want) {
		t.Fatalf("expected %v, got %v", want, pool)
	}
}

func TestRankOrdersByScoreDescending(t *testing.T) {
	emb := &embeddingsFake{vectors: map[string][]float32{
		"low":  {-1, 0},
		"high": {2, 0},
		"mid":  {0.5, 0},
	}}
	d := NewSenseDisambiguator(emb, 0)

	got, err := d.Rank(context.Background(), []float32{1, 0}, []string{"low", "high", "mid", "high"})
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if ids := domain.SenseIDs(got); !reflect.DeepEqual(ids, []string{"high", "mid", "low"}) {
		t.Fatalf("unexpected order: %v", ids)
	}
	if math.Abs(got[0].Score-sigmoid(2)) > 1e-9 {
		t.Fatalf("expected sigmoid score %f, got %f", sigmoid(2), got[0].Score)
	}
	for _, c := range got {
		if c.Score <= 0 || c.Score >= 1 {
			t.Fatalf("score out of (0,1): %+v", c)
		}
	}
}

func TestRankTieBreakIsIndependentOfBatchSize(t *testing.T) {
	vectors := map[string][]float32{
		"c": {1, 1},
		"a": {1, 1},
		"b": {1, 1},
		"d": {3, 0},
	}
	ids := []string{"c", "a", "d", "b"}

	small := NewSenseDisambiguator(&embeddingsFake{vectors: vectors}, 1)
	large := NewSenseDisambiguator(&embeddingsFake{vectors: vectors}, 64)

	gotSmall, err := small.Rank(context.Background(), []float32{1, 0}, ids)
	if err != nil {
		t.Fatalf("Rank() small batch error = %v", err)
	}
	gotLarge, err := large.Rank(context.Background(), []float32{1, 0}, ids)
	if err != nil {
		t.Fatalf("Rank() large batch error = %v", err)
	}
	if !reflect.DeepEqual(gotSmall, gotLarge) {
		t.Fatalf("batch size changed result: %v vs %v", gotSmall, gotLarge)
	}
	if want := []string{"d", "a", "b", "c"}; !reflect.DeepEqual(domain.SenseIDs(gotSmall), want) {
		t.Fatalf("expected %v, got %v", want, domain.SenseIDs(gotSmall))
	}
}

func TestRankSplitsIntoBatches(t *testing.T) {
	emb := &embeddingsFake{vectors: map[string][]float32{
		"a": {1}, "b": {1}, "c": {1}, "d": {1}, "e": {1},
	}}
	d := NewSenseDisambiguator(emb, 2)

	if _, err := d.Rank(context.Background(), []float32{1}, []string{"a", "b", "c", "d", "e"}); err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if got := emb.calls.Load(); got != 3 {
		t.Fatalf("expected 3 batches, got %d", got)
	}
	for _, batch := range emb.batches {
		if len(batch) > 2 {
			t.Fatalf("batch larger than limit: %v", batch)
		}
	}
}

func TestRankMissingEmbeddingIsNotFound(t *testing.T) {
	d := NewSenseDisambiguator(&embeddingsFake{vectors: map[string][]float32{"a": {1}}}, 0)

	_, err := d.Rank(context.Background(), []float32{1}, []string{"a", "ghost"})
	if !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestRankDimensionMismatchIsInvalidInput(t *testing.T) {
	d := NewSenseDisambiguator(&embeddingsFake{vectors: map[string][]float32{"a": {1, 2, 3}}}, 0)

	_, err := d.Rank(context.Background(), []float32{1}, []string{"a"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestRankRejectsEmptyImageEmbedding(t *testing.T) {
	d := NewSenseDisambiguator(&embeddingsFake{}, 0)

	_, err := d.Rank(context.Background(), nil, []string{"a"})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input error, got %v", err)
	}
}

func TestRankEmptyPoolReturnsEmpty(t *testing.T) {
	emb := &embeddingsFake{}
	d := NewSenseDisambiguator(emb, 0)

	got, err := d.Rank(context.Background(), []float32{1}, nil)
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", got)
	}
	if emb.calls.Load() != 0 {
		t.Fatalf("expected no embedding lookups")
	}
}

func TestRankImagesSkipsFailingImage(t *testing.T) {
	d := NewSenseDisambiguator(&embeddingsFake{vectors: map[string][]float32{
		"s1": {1, 0},
		"s2": {0, 1},
	}}, 0)

	results := d.RankImages(context.Background(), []ImageSenseInput{
		{ImageID: "img-1", Embedding: []float32{1, 0}, Neighbors: []domain.Neighbor{{SenseIDs: []string{"s1"}}}},
		{ImageID: "img-2", Embedding: []float32{1, 0}, Neighbors: []domain.Neighbor{{SenseIDs: []string{"missing"}}}},
		{ImageID: "img-3", Embedding: []float32{0, 1}, Neighbors: []domain.Neighbor{{SenseIDs: []string{"s1", "s2"}}}},
	})

	if len(results) != 2 {
		t.Fatalf("expected 2 ranked images, got %d", len(results))
	}
	if results[0].ImageID != "img-1" || results[1].ImageID != "img-3" {
		t.Fatalf("unexpected images: %+v", results)
	}
	if results[1].Senses[0].SenseID != "s2" {
		t.Fatalf("expected s2 first for img-3, got %v", results[1].Senses)
	}
}

func TestRankImagesStopsOnCancelledContext(t *testing.T) {
	d := NewSenseDisambiguator(&embeddingsFake{err: errors.New("unused")}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := d.RankImages(ctx, []ImageSenseInput{{ImageID: "img-1", Embedding: []float32{1}}})
	if len(results) != 0 {
		t.Fatalf("expected no results, got %v", results)
	}
}
