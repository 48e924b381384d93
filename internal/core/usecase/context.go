package usecase

import (
	"strings"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
)

const (
	defaultSingleContextChars = 20000
	defaultMultiContextChars  = 4000
	defaultMultiContextPages  = 5
)

// ContextConfig bounds how much page text reaches the judgment model.
type ContextConfig struct {
	SingleChars int
	MultiChars  int
	MultiPages  int
}

func (c ContextConfig) normalize() ContextConfig {
	out := c
	if out.SingleChars <= 0 {
		out.SingleChars = defaultSingleContextChars
	}
	if out.MultiChars <= 0 {
		out.MultiChars = defaultMultiContextChars
	}
	if out.MultiPages <= 0 {
		out.MultiPages = defaultMultiContextPages
	}
	return out
}

// buildJudgmentContext assembles the context text and the entity names, the
// latter in descending relevance. pages must not be empty.
func buildJudgmentContext(mode domain.ContextMode, pages []domain.EnrichmentPage, cfg ContextConfig) (string, []string) {
	if mode != domain.ContextMulti {
		top := pages[0]
		return truncateRunes(top.Text, cfg.SingleChars), []string{top.Title}
	}

	n := min(cfg.MultiPages, len(pages))
	names := make([]string, 0, n)
	var b strings.Builder
	for _, page := range pages[:n] {
		names = append(names, page.Title)
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(page.Title)
		b.WriteString("\n")
		b.WriteString(truncateRunes(page.Text, cfg.MultiChars))
	}
	return b.String(), names
}
