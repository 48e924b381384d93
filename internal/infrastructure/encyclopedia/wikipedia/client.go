package wikipedia

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
)

const (
	serviceName     = "wikipedia"
	englishLanguage = "en"

	DefaultURLTemplate = "https://%s.wikipedia.org/w/api.php"
	DefaultUserAgent   = "culture-relevance/1.0 (image cultural relevance scoring)"
)

var headingPattern = regexp.MustCompile(`^(=+)\s*(.*?)\s*=+$`)

type Config struct {
	// URLTemplate holds one %s for the language code.
	URLTemplate       string
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
}

// Client reads plain-text extracts and cross-language links from the
// MediaWiki action API. All calls share one rate limiter.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	if cfg.URLTemplate == "" {
		cfg.URLTemplate = DefaultURLTemplate
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, cfg.Burst),
		executor:   executor,
	}
}

type queryResponse struct {
	Query struct {
		Pages []struct {
			PageID     int64  `json:"pageid"`
			Title      string `json:"title"`
			Missing    bool   `json:"missing"`
			Invalid    bool   `json:"invalid"`
			Extract    string `json:"extract"`
			Categories []struct {
				Title string `json:"title"`
			} `json:"categories"`
			LangLinks []struct {
				Lang  string `json:"lang"`
				Title string `json:"title"`
			} `json:"langlinks"`
		} `json:"pages"`
	} `json:"query"`
}

// Page fetches the English article for title, following redirects.
func (c *Client) Page(ctx context.Context, title string) (domain.Page, error) {
	params := url.Values{
		"action":          {"query"},
		"format":          {"json"},
		"formatversion":   {"2"},
		"redirects":       {"1"},
		"prop":            {"extracts|categories"},
		"explaintext":     {"1"},
		"exsectionformat": {"wiki"},
		"cllimit":         {"max"},
		"clshow":          {"!hidden"},
		"titles":          {title},
	}
	resp, err := c.query(ctx, englishLanguage, params, "page")
	if err != nil {
		return domain.Page{}, err
	}
	if len(resp.Query.Pages) == 0 {
		return domain.Page{}, notFound("page", title)
	}
	p := resp.Query.Pages[0]
	if p.Missing || p.Invalid {
		return domain.Page{}, notFound("page", title)
	}

	text, sections := splitSections(p.Extract)
	categories := make([]string, 0, len(p.Categories))
	for _, cat := range p.Categories {
		categories = append(categories, strings.TrimPrefix(cat.Title, "Category:"))
	}
	return domain.Page{
		Title:      p.Title,
		Summary:    summaryOf(p.Extract),
		PageID:     p.PageID,
		Text:       text,
		Categories: categories,
		Sections:   sections,
	}, nil
}

// EnglishTitle resolves the English counterpart of title in language.
func (c *Client) EnglishTitle(ctx context.Context, language, title string) (string, error) {
	language = strings.ToLower(strings.TrimSpace(language))
	if language == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "langlinks", fmt.Errorf("language is empty"))
	}
	if language == englishLanguage {
		return title, nil
	}
	params := url.Values{
		"action":        {"query"},
		"format":        {"json"},
		"formatversion": {"2"},
		"redirects":     {"1"},
		"prop":          {"langlinks"},
		"lllang":        {englishLanguage},
		"titles":        {title},
	}
	resp, err := c.query(ctx, language, params, "langlinks")
	if err != nil {
		return "", err
	}
	for _, p := range resp.Query.Pages {
		for _, link := range p.LangLinks {
			if link.Lang == englishLanguage && strings.TrimSpace(link.Title) != "" {
				return link.Title, nil
			}
		}
	}
	return "", notFound("langlinks", language+":"+title)
}

func (c *Client) query(ctx context.Context, language string, params url.Values, operation string) (queryResponse, error) {
	endpoint := fmt.Sprintf(c.cfg.URLTemplate, url.PathEscape(language)) + "?" + params.Encode()

	resp, err := resilience.Call(ctx, c.executor, "wikipedia."+operation, func(callCtx context.Context) (queryResponse, error) {
		if err := c.limiter.Wait(callCtx); err != nil {
			return queryResponse{}, err
		}
		return c.get(callCtx, endpoint, operation)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return queryResponse{}, resilience.WrapTemporary("wikipedia "+operation, err, nil)
	}
	return resp, nil
}

func (c *Client) get(ctx context.Context, endpoint, operation string) (queryResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return queryResponse{}, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return queryResponse{}, fmt.Errorf("wikipedia %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return queryResponse{}, resilience.NewStatusError(serviceName, operation, resp)
	}
	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return queryResponse{}, fmt.Errorf("decode %s response: %w", operation, err)
	}
	return out, nil
}

func notFound(operation, title string) error {
	return domain.WrapError(domain.ErrNotFound, "wikipedia "+operation, fmt.Errorf("title %q", title))
}

// splitSections turns "== Heading ==" lines of a wiki-format extract into plain
// heading lines and collects the heading titles in order.
func splitSections(extract string) (string, []string) {
	lines := strings.Split(extract, "\n")
	sections := make([]string, 0)
	for i, line := range lines {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || len(m[1]) < 2 {
			continue
		}
		lines[i] = m[2]
		if m[2] != "" {
			sections = append(sections, m[2])
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n")), sections
}

// summaryOf returns the lead section of an extract.
func summaryOf(extract string) string {
	lead := extract
	for _, line := range strings.Split(extract, "\n") {
		if headingPattern.MatchString(strings.TrimSpace(line)) {
			lead = extract[:strings.Index(extract, line)]
			break
		}
	}
	return strings.TrimSpace(lead)
}
