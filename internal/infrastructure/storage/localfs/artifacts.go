package localfs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

const (
	sessionsDir = "sessions"

	manifestBlob       = "manifest.json"
	retrievalBlob      = "retrieval.json"
	disambiguationBlob = "disambiguation.json"
	enrichmentBlob     = "enrichment.json"
	scoresBlobPrefix   = "scores_"
)

// ArtifactStore writes one directory per session. The manifest is written last
// and read first, so a session without a manifest does not exist.
type ArtifactStore struct {
	root string
}

func NewArtifactStore(basePath string) (*ArtifactStore, error) {
	if basePath == "" {
		basePath = "./data/artifacts"
	}
	root := filepath.Join(basePath, sessionsDir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &ArtifactStore{root: root}, nil
}

type manifest struct {
	Session domain.Session `json:"session"`
	Blobs   []string       `json:"blobs"`
}

func (s *ArtifactStore) SaveSession(ctx context.Context, session domain.Session, artifacts domain.UpstreamArtifacts) error {
	dir, err := s.sessionDir(session.ID)
	if err != nil {
		return err
	}

	blobs := []struct {
		name  string
		value any
	}{
		{retrievalBlob, artifacts.Retrieval},
		{disambiguationBlob, artifacts.Senses},
		{enrichmentBlob, artifacts.Pages},
	}
	names := make([]string, 0, len(blobs))
	for _, blob := range blobs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeJSON(filepath.Join(dir, blob.name), blob.value); err != nil {
			return fmt.Errorf("save %s: %w", blob.name, err)
		}
		names = append(names, blob.name)
	}

	if err := writeJSON(filepath.Join(dir, manifestBlob), manifest{Session: session, Blobs: names}); err != nil {
		return fmt.Errorf("save %s: %w", manifestBlob, err)
	}
	slog.Debug("session_artifacts_saved", "session_id", session.ID, "dir", dir)
	return nil
}

func (s *ArtifactStore) LoadSession(_ context.Context, sessionID string) (domain.Session, domain.UpstreamArtifacts, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return domain.Session{}, domain.UpstreamArtifacts{}, domain.WrapError(domain.ErrSessionNotFound, "load session", err)
	}

	var m manifest
	if err := readJSON(filepath.Join(dir, manifestBlob), &m); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.Session{}, domain.UpstreamArtifacts{}, domain.WrapError(domain.ErrSessionNotFound, "load session", fmt.Errorf("session %s", sessionID))
		}
		return domain.Session{}, domain.UpstreamArtifacts{}, fmt.Errorf("read manifest: %w", err)
	}

	var artifacts domain.UpstreamArtifacts
	targets := map[string]any{
		retrievalBlob:      &artifacts.Retrieval,
		disambiguationBlob: &artifacts.Senses,
		enrichmentBlob:     &artifacts.Pages,
	}
	for name, target := range targets {
		if err := readJSON(filepath.Join(dir, name), target); err != nil {
			return domain.Session{}, domain.UpstreamArtifacts{}, fmt.Errorf("read %s: %w", name, err)
		}
	}
	return m.Session, artifacts, nil
}

func (s *ArtifactStore) SaveScores(_ context.Context, sessionID, model string, scores []domain.ScoreRecord) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := validateName(model); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "scores blob", err)
	}
	name := scoresBlobPrefix + model + ".json"
	if err := writeJSON(filepath.Join(dir, name), scores); err != nil {
		return fmt.Errorf("save %s: %w", name, err)
	}
	return nil
}

// LoadScores returns the last persisted verdicts of model for a session.
func (s *ArtifactStore) LoadScores(_ context.Context, sessionID, model string) ([]domain.ScoreRecord, error) {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return nil, err
	}
	var scores []domain.ScoreRecord
	if err := readJSON(filepath.Join(dir, scoresBlobPrefix+model+".json"), &scores); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrNotFound, "load scores", fmt.Errorf("session %s model %s", sessionID, model))
		}
		return nil, fmt.Errorf("read scores: %w", err)
	}
	return scores, nil
}

func (s *ArtifactStore) DeleteSession(_ context.Context, sessionID string) error {
	dir, err := s.sessionDir(sessionID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove session dir: %w", err)
	}
	return nil
}

func (s *ArtifactStore) sessionDir(sessionID string) (string, error) {
	if err := validateName(sessionID); err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "session id", err)
	}
	return filepath.Join(s.root, sessionID), nil
}

func writeJSON(path string, value any) error {
	return writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(value)
	})
}

func readJSON(path string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
