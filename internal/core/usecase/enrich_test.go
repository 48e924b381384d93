package usecase

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

func ranked(ids ...string) []domain.SenseCandidate {
	out := make([]domain.SenseCandidate, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.SenseCandidate{SenseID: id, Score: 1 - float64(i)*0.1})
	}
	return out
}

func titles(pages []domain.EnrichmentPage) []string {
	out := make([]string, 0, len(pages))
	for _, p := range pages {
		out = append(out, p.Title)
	}
	return out
}

func TestFetchPreservesRankOrderRegardlessOfCompletion(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{
		"s1": {{Title: "Torii", Language: "EN"}},
		"s2": {{Title: "Pagoda", Language: "EN"}},
		"s3": {{Title: "Shrine", Language: "EN"}},
	}}
	content := &contentFake{
		pages: map[string]domain.Page{
			"Torii":  englishPage("Torii"),
			"Pagoda": englishPage("Pagoda"),
			"Shrine": englishPage("Shrine"),
		},
		delays: map[string]time.Duration{
			"Torii":  60 * time.Millisecond,
			"Shrine": 20 * time.Millisecond,
		},
	}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 4)

	pages, err := f.Fetch(context.Background(), ranked("s1", "s2", "s3"), 10)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if got, want := titles(pages), []string{"Torii", "Pagoda", "Shrine"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if pages[0].SenseID != "s1" || pages[0].Language != "EN" || pages[0].SenseScore != 1 {
		t.Fatalf("unexpected first page metadata: %+v", pages[0])
	}
}

func TestFetchCapsAtMaxPagesKeepingTopRanks(t *testing.T) {
	refs := map[string][]domain.PageRef{}
	pages := map[string]domain.Page{}
	delays := map[string]time.Duration{}
	for i, id := range []string{"s1", "s2", "s3", "s4", "s5"} {
		title := "Page " + id
		refs[id] = []domain.PageRef{{Title: title, Language: "EN"}}
		pages[title] = englishPage(title)
		// lower ranks finish first
		delays[title] = time.Duration(5-i) * 10 * time.Millisecond
	}
	f := NewEnrichmentFetcher(&catalogFake{refs: refs}, DefaultResolutionStrategies(&contentFake{pages: pages, delays: delays}), 16)

	got, err := f.Fetch(context.Background(), ranked("s1", "s2", "s3", "s4", "s5"), 2)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := []string{"Page s1", "Page s2"}; !reflect.DeepEqual(titles(got), want) {
		t.Fatalf("expected %v, got %v", want, titles(got))
	}
}

func TestFetchStopsDispatchOnceCapReached(t *testing.T) {
	refs := map[string][]domain.PageRef{}
	pages := map[string]domain.Page{}
	ids := []string{"s1", "s2", "s3", "s4", "s5", "s6"}
	for _, id := range ids {
		title := "Page " + id
		refs[id] = []domain.PageRef{{Title: title, Language: "EN"}}
		pages[title] = englishPage(title)
	}
	catalog := &catalogFake{refs: refs}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(&contentFake{pages: pages}), 1)

	got, err := f.Fetch(context.Background(), ranked(ids...), 2)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 pages, got %d", len(got))
	}
	if calls := catalog.calls.Load(); calls >= int32(len(ids)) {
		t.Fatalf("expected dispatch to stop early, catalog calls=%d", calls)
	}
}

func TestFetchTranslatesNonEnglishReference(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{
		"s1": {{Title: "着物", Language: "JA"}},
	}}
	content := &contentFake{
		pages: map[string]domain.Page{"Kimono": englishPage("Kimono")},
		links: map[string]string{"ja|着物": "Kimono"},
	}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 0)

	got, err := f.Fetch(context.Background(), ranked("s1"), 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Kimono" || got[0].Language != "JA" {
		t.Fatalf("unexpected pages: %+v", got)
	}
}

func TestFetchPrefersEnglishReferenceOverTranslation(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{
		"s1": {
			{Title: "Hanbok (ko)", Language: "KO"},
			{Title: "Hanbok", Language: "EN"},
		},
	}}
	content := &contentFake{
		pages: map[string]domain.Page{
			"Hanbok":            englishPage("Hanbok"),
			"Korean dress page": englishPage("Korean dress page"),
		},
		links: map[string]string{"ko|Hanbok (ko)": "Korean dress page"},
	}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 0)

	got, err := f.Fetch(context.Background(), ranked("s1"), 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].Title != "Hanbok" {
		t.Fatalf("expected direct English page, got %+v", got)
	}
}

func TestFetchDiscardsStubPages(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{
		"s1": {{Title: "Stub", Language: "EN"}},
		"s2": {{Title: "Full", Language: "EN"}},
	}}
	content := &contentFake{pages: map[string]domain.Page{
		"Stub": {Title: "Stub", Text: "0123456789"},
		"Full": englishPage("Full"),
	}}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 0)

	got, err := f.Fetch(context.Background(), ranked("s1", "s2"), 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if want := []string{"Full"}; !reflect.DeepEqual(titles(got), want) {
		t.Fatalf("expected %v, got %v", want, titles(got))
	}
}

func TestFetchSkipsSensesWithoutReferences(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{
		"s2": {{Title: "Only", Language: "EN"}},
	}}
	content := &contentFake{pages: map[string]domain.Page{"Only": englishPage("Only")}}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 0)

	got, err := f.Fetch(context.Background(), ranked("s1", "s2", "s3"), 5)
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if len(got) != 1 || got[0].SenseID != "s2" {
		t.Fatalf("unexpected pages: %+v", got)
	}
}

func TestFetchReturnsContextError(t *testing.T) {
	catalog := &catalogFake{refs: map[string][]domain.PageRef{"s1": {{Title: "Slow", Language: "EN"}}}}
	content := &contentFake{
		pages:  map[string]domain.Page{"Slow": englishPage("Slow")},
		delays: map[string]time.Duration{"Slow": time.Second},
	}
	f := NewEnrichmentFetcher(catalog, DefaultResolutionStrategies(content), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := f.Fetch(ctx, ranked("s1"), 5); err == nil {
		t.Fatalf("expected context error")
	}
}
