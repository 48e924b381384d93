package domain

import "strings"

// MinPageTextLength is the text length a fetched page must exceed before it is
// accepted as enrichment context.
const MinPageTextLength = 10

const LanguageEnglish = "EN"

// PageRef points at an encyclopedia page in a given language.
type PageRef struct {
	Title    string `json:"title"`
	Language string `json:"language"`
}

func (r PageRef) IsEnglish() bool {
	return strings.EqualFold(r.Language, LanguageEnglish)
}

// Page is the raw content-source response for a title.
type Page struct {
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	PageID     int64    `json:"page_id"`
	Text       string   `json:"text"`
	Categories []string `json:"categories"`
	Sections   []string `json:"sections"`
}

// EnrichmentPage is a page accepted as context for one ranked sense.
type EnrichmentPage struct {
	Page
	Language   string  `json:"language"`
	SenseID    string  `json:"sense_id"`
	SenseScore float64 `json:"sense_score"`
}

func (p Page) HasUsableText() bool {
	return len(p.Text) > MinPageTextLength
}

// PageURL builds the English encyclopedia URL shown to users.
func PageURL(title string) string {
	return "https://en.wikipedia.org/wiki/" + strings.ReplaceAll(title, " ", "_")
}
