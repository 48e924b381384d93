package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/core/ports"
)

const (
	defaultFetchWorkers = 16
	defaultMaxPages     = 20
)

// ResolutionStrategy turns one page reference into a usable page. Strategies
// are tried in order; within a strategy, references are tried in catalog order.
type ResolutionStrategy struct {
	Name    string
	Applies func(ref domain.PageRef) bool
	Resolve func(ctx context.Context, ref domain.PageRef) (domain.Page, bool)
}

// DefaultResolutionStrategies fetches English references directly and falls
// back to translating non-English references through cross-language links.
func DefaultResolutionStrategies(source ports.ContentSource) []ResolutionStrategy {
	return []ResolutionStrategy{
		{
			Name:    "english_direct",
			Applies: domain.PageRef.IsEnglish,
			Resolve: func(ctx context.Context, ref domain.PageRef) (domain.Page, bool) {
				return fetchUsablePage(ctx, source, ref.Title)
			},
		},
		{
			Name: "translate_to_english",
			Applies: func(ref domain.PageRef) bool {
				return !ref.IsEnglish()
			},
			Resolve: func(ctx context.Context, ref domain.PageRef) (domain.Page, bool) {
				title, err := source.EnglishTitle(ctx, strings.ToLower(ref.Language), ref.Title)
				if err != nil {
					logContentError(ctx, "langlinks", ref.Title, err)
					return domain.Page{}, false
				}
				if strings.TrimSpace(title) == "" {
					return domain.Page{}, false
				}
				return fetchUsablePage(ctx, source, title)
			},
		},
	}
}

func fetchUsablePage(ctx context.Context, source ports.ContentSource, title string) (domain.Page, bool) {
	page, err := source.Page(ctx, title)
	if err != nil {
		logContentError(ctx, "page", title, err)
		return domain.Page{}, false
	}
	if !page.HasUsableText() {
		return domain.Page{}, false
	}
	return page, true
}

func logContentError(ctx context.Context, call, title string, err error) {
	if ctx.Err() != nil || domain.IsKind(err, domain.ErrNotFound) {
		return
	}
	slog.Warn("enrichment_content_error", "call", call, "title", title, "error", err)
}

// EnrichmentFetcher resolves ranked senses into encyclopedia pages.
type EnrichmentFetcher struct {
	catalog    ports.SenseCatalog
	strategies []ResolutionStrategy
	workers    int
}

func NewEnrichmentFetcher(catalog ports.SenseCatalog, strategies []ResolutionStrategy, workers int) *EnrichmentFetcher {
	if workers <= 0 {
		workers = defaultFetchWorkers
	}
	return &EnrichmentFetcher{
		catalog:    catalog,
		strategies: strategies,
		workers:    workers,
	}
}

// Fetch returns at most maxPages pages in the rank order of ranked. Fetches
// run concurrently; dispatch stops once the completed prefix of ranks holds
// maxPages successes.
func (f *EnrichmentFetcher) Fetch(ctx context.Context, ranked []domain.SenseCandidate, maxPages int) ([]domain.EnrichmentPage, error) {
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if len(ranked) == 0 {
		return nil, nil
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		results   = make([]*domain.EnrichmentPage, len(ranked))
		done      = make([]bool, len(ranked))
		frontier  int
		successes int
		capped    bool
	)

	complete := func(i int, page *domain.EnrichmentPage) {
		mu.Lock()
		defer mu.Unlock()
		results[i] = page
		done[i] = true
		for frontier < len(done) && done[frontier] {
			if results[frontier] != nil {
				successes++
			}
			frontier++
		}
		if successes >= maxPages && !capped {
			capped = true
			cancel()
		}
	}
	isCapped := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return capped
	}

	var g errgroup.Group
	g.SetLimit(f.workers)
	for i, candidate := range ranked {
		if isCapped() || fetchCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			page, ok := f.resolveSense(fetchCtx, candidate)
			if !ok {
				complete(i, nil)
				return nil
			}
			complete(i, &page)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.EnrichmentPage, 0, min(maxPages, len(ranked)))
	for _, page := range results {
		if page == nil {
			continue
		}
		out = append(out, *page)
		if len(out) == maxPages {
			break
		}
	}
	return out, nil
}

func (f *EnrichmentFetcher) resolveSense(ctx context.Context, candidate domain.SenseCandidate) (domain.EnrichmentPage, bool) {
	refs, err := f.catalog.PageRefs(ctx, candidate.SenseID)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("enrichment_skip", "sense_id", candidate.SenseID, "error", err)
		}
		return domain.EnrichmentPage{}, false
	}

	for _, strategy := range f.strategies {
		for _, ref := range refs {
			if ctx.Err() != nil {
				return domain.EnrichmentPage{}, false
			}
			if !strategy.Applies(ref) {
				continue
			}
			page, ok := strategy.Resolve(ctx, ref)
			if !ok {
				continue
			}
			slog.Debug("enrichment_resolved",
				"sense_id", candidate.SenseID,
				"strategy", strategy.Name,
				"title", page.Title,
			)
			return domain.EnrichmentPage{
				Page:       page,
				Language:   strings.ToUpper(ref.Language),
				SenseID:    candidate.SenseID,
				SenseScore: candidate.Score,
			}, true
		}
	}
	return domain.EnrichmentPage{}, false
}
