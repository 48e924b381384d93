package localfs

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

func sampleArtifacts() domain.UpstreamArtifacts {
	return domain.UpstreamArtifacts{
		Retrieval: domain.RetrievalResult{
			Embedding: []float32{0.25, -0.5},
			Neighbors: []domain.Neighbor{{EntityID: "Q1", Distance: 0.2, SourceURL: "https://img/1", SenseIDs: []string{"bn:1n"}}},
		},
		Senses: []domain.SenseCandidate{{SenseID: "bn:1n", Score: 0.8}},
		Pages: []domain.EnrichmentPage{{
			Page:       domain.Page{Title: "Torii", PageID: 42, Text: "A torii is a traditional Japanese gate.", Categories: []string{"Gates"}},
			Language:   "EN",
			SenseID:    "bn:1n",
			SenseScore: 0.8,
		}},
	}
}

func TestArtifactStoreRoundTrip(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	ctx := context.Background()
	session := domain.Session{ID: "20260301_120000_000000-abcd1234", Fingerprint: "fp", CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	if err := store.SaveSession(ctx, session, sampleArtifacts()); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	gotSession, gotArtifacts, err := store.LoadSession(ctx, session.ID)
	if err != nil {
		t.Fatalf("LoadSession() error = %v", err)
	}
	if !gotSession.CreatedAt.Equal(session.CreatedAt) || gotSession.Fingerprint != "fp" {
		t.Fatalf("unexpected session: %+v", gotSession)
	}
	if !reflect.DeepEqual(gotArtifacts, sampleArtifacts()) {
		t.Fatalf("artifacts changed:\n got %+v\nwant %+v", gotArtifacts, sampleArtifacts())
	}
}

func TestArtifactStoreScoresPerModel(t *testing.T) {
	base := t.TempDir()
	store, err := NewArtifactStore(base)
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	ctx := context.Background()
	id := "s-1"
	four := 4
	scores := []domain.ScoreRecord{{Culture: "Japan", Score: &four, Reasoning: "gate"}, {Culture: "Peru", Reasoning: "none"}}

	if err := store.SaveScores(ctx, id, "qwen_vl", scores); err != nil {
		t.Fatalf("SaveScores() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, sessionsDir, id, "scores_qwen_vl.json")); err != nil {
		t.Fatalf("expected scores blob on disk: %v", err)
	}
	got, err := store.LoadScores(ctx, id, "qwen_vl")
	if err != nil {
		t.Fatalf("LoadScores() error = %v", err)
	}
	if !reflect.DeepEqual(got, scores) {
		t.Fatalf("unexpected scores: %+v", got)
	}
	if _, err := store.LoadScores(ctx, id, "llama_vl"); !domain.IsKind(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for other model, got %v", err)
	}
}

func TestArtifactStoreMissingManifestIsSessionNotFound(t *testing.T) {
	base := t.TempDir()
	store, err := NewArtifactStore(base)
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	// blobs without a manifest are an unfinished save
	if err := os.MkdirAll(filepath.Join(base, sessionsDir, "partial"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(base, sessionsDir, "partial", retrievalBlob), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	for _, id := range []string{"partial", "never-existed"} {
		if _, _, err := store.LoadSession(context.Background(), id); !domain.IsKind(err, domain.ErrSessionNotFound) {
			t.Fatalf("LoadSession(%q) expected session not found, got %v", id, err)
		}
	}
}

func TestArtifactStoreDeleteSession(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	ctx := context.Background()
	session := domain.Session{ID: "s-2", Fingerprint: "fp"}
	if err := store.SaveSession(ctx, session, sampleArtifacts()); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	if err := store.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if _, _, err := store.LoadSession(ctx, session.ID); !domain.IsKind(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected deleted session to be gone, got %v", err)
	}
	if err := store.DeleteSession(ctx, "missing"); err != nil {
		t.Fatalf("DeleteSession() on missing session error = %v", err)
	}
}

func TestArtifactStoreRejectsTraversal(t *testing.T) {
	store, err := NewArtifactStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	for _, id := range []string{"../escape", "a/b", "..", ""} {
		if err := store.DeleteSession(context.Background(), id); !domain.IsKind(err, domain.ErrInvalidInput) {
			t.Fatalf("DeleteSession(%q) expected invalid input, got %v", id, err)
		}
	}
	if err := store.SaveScores(context.Background(), "ok", "../model", nil); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid model name, got %v", err)
	}
}
