package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

var pngImage = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01")

func otherPNG(suffix string) []byte {
	return append(append([]byte{}, pngImage...), suffix...)
}

type retrieverFake struct {
	result domain.RetrievalResult
	err    error
	byLen  map[int]error
	calls  atomic.Int32
}

func (f *retrieverFake) Retrieve(_ context.Context, image []byte, _ int) (domain.RetrievalResult, error) {
	f.calls.Add(1)
	if err, ok := f.byLen[len(image)]; ok {
		return domain.RetrievalResult{}, err
	}
	if f.err != nil {
		return domain.RetrievalResult{}, f.err
	}
	return f.result, nil
}

type embeddingsFake struct {
	vectors map[string][]float32
	err     error
	calls   atomic.Int32

	mu      sync.Mutex
	batches [][]string
}

func (f *embeddingsFake) SenseEmbeddings(_ context.Context, ids []string) (map[string][]float32, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), ids...))
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string][]float32, len(ids))
	for _, id := range ids {
		if v, ok := f.vectors[id]; ok {
			out[id] = v
		}
	}
	return out, nil
}

type catalogFake struct {
	refs  map[string][]domain.PageRef
	calls atomic.Int32
}

func (f *catalogFake) SensesForEntities(context.Context, []string) (map[string][]string, error) {
	return nil, nil
}

func (f *catalogFake) PageRefs(_ context.Context, senseID string) ([]domain.PageRef, error) {
	f.calls.Add(1)
	refs, ok := f.refs[senseID]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "page refs", errors.New(senseID))
	}
	return refs, nil
}

type contentFake struct {
	pages  map[string]domain.Page
	links  map[string]string
	delays map[string]time.Duration
	onPage func()
	calls  atomic.Int32
}

func (f *contentFake) Page(ctx context.Context, title string) (domain.Page, error) {
	f.calls.Add(1)
	if f.onPage != nil {
		f.onPage()
	}
	if d := f.delays[title]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return domain.Page{}, ctx.Err()
		}
	}
	page, ok := f.pages[title]
	if !ok {
		return domain.Page{}, domain.WrapError(domain.ErrNotFound, "page", errors.New(title))
	}
	return page, nil
}

func (f *contentFake) EnglishTitle(_ context.Context, language, title string) (string, error) {
	f.calls.Add(1)
	en, ok := f.links[language+"|"+title]
	if !ok {
		return "", domain.WrapError(domain.ErrNotFound, "langlinks", errors.New(title))
	}
	return en, nil
}

type judgeFake struct {
	reply   string
	err     error
	onJudge func()
	calls   atomic.Int32
	mu      sync.Mutex
	inputs  []domain.JudgmentInput
}

func (f *judgeFake) Judge(_ context.Context, in domain.JudgmentInput) (string, error) {
	f.calls.Add(1)
	if f.onJudge != nil {
		f.onJudge()
	}
	f.mu.Lock()
	f.inputs = append(f.inputs, in)
	f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type cacheFake struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
}

func newCacheFake() *cacheFake {
	return &cacheFake{entries: make(map[string]domain.CacheEntry)}
}

func (f *cacheFake) Get(id string) (domain.CacheEntry, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[id]
	return e, ok
}

func (f *cacheFake) Put(entry domain.CacheEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.Session.ID] = entry
}

func (f *cacheFake) Delete(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

type storedSession struct {
	session   domain.Session
	artifacts domain.UpstreamArtifacts
}

type storeFake struct {
	mu            sync.Mutex
	sessions      map[string]storedSession
	scores        map[string][]domain.ScoreRecord
	deleted       []string
	deleteCtxErrs []error
	saveErr       error
	saveScoresErr error
	loadCalls     int
}

func newStoreFake() *storeFake {
	return &storeFake{
		sessions: make(map[string]storedSession),
		scores:   make(map[string][]domain.ScoreRecord),
	}
}

func (f *storeFake) SaveSession(_ context.Context, s domain.Session, a domain.UpstreamArtifacts) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[s.ID] = storedSession{session: s, artifacts: a}
	return nil
}

func (f *storeFake) LoadSession(_ context.Context, id string) (domain.Session, domain.UpstreamArtifacts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	s, ok := f.sessions[id]
	if !ok {
		return domain.Session{}, domain.UpstreamArtifacts{}, domain.WrapError(domain.ErrSessionNotFound, "load session", errors.New(id))
	}
	return s.session, s.artifacts, nil
}

func (f *storeFake) SaveScores(_ context.Context, id, model string, scores []domain.ScoreRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveScoresErr != nil {
		return f.saveScoresErr
	}
	f.scores[id+"/"+model] = scores
	return nil
}

func (f *storeFake) DeleteSession(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	f.deleteCtxErrs = append(f.deleteCtxErrs, ctx.Err())
	delete(f.sessions, id)
	return nil
}

type observerFake struct {
	mu       sync.Mutex
	outcomes []string
	stages   map[string]int
	failed   map[string]int
	pages    []int
}

func newObserverFake() *observerFake {
	return &observerFake{stages: make(map[string]int), failed: make(map[string]int)}
}

func (f *observerFake) ObserveStage(stage string, _ time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stages[stage]++
	if err != nil {
		f.failed[stage]++
	}
}

func (f *observerFake) ObserveCacheLookup(outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func (f *observerFake) ObserveScores(string, []domain.ScoreRecord) {}

func (f *observerFake) ObservePages(count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = append(f.pages, count)
}

func longText(prefix string) string {
	return prefix + " is described at length in the encyclopedia article."
}

func englishPage(title string) domain.Page {
	return domain.Page{Title: title, Text: longText(title)}
}

type encoderFake struct {
	vector []float32
	err    error
}

func (f *encoderFake) EncodeImage(context.Context, []byte) ([]float32, error) {
	return f.vector, f.err
}

type indexFake struct {
	neighbors []domain.Neighbor
	gotK      int
}

func (f *indexFake) Search(_ context.Context, _ []float32, k int) ([]domain.Neighbor, error) {
	f.gotK = k
	return append([]domain.Neighbor(nil), f.neighbors...), nil
}

type entityCatalogFake struct {
	catalogFake
	senses map[string][]string
	gotIDs []string
}

func (f *entityCatalogFake) SensesForEntities(_ context.Context, ids []string) (map[string][]string, error) {
	f.gotIDs = ids
	return f.senses, nil
}
