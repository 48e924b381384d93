package ollama

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 180 * time.Second},
		executor:   executor,
	}
}

// Judge asks a vision model for a relevance verdict. The reply is returned
// verbatim; parsing is the caller's job.
type Judge struct {
	client *Client
}

func NewJudge(client *Client) *Judge {
	return &Judge{client: client}
}

func (j *Judge) Judge(ctx context.Context, in domain.JudgmentInput) (string, error) {
	if strings.TrimSpace(in.Model) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "judge", fmt.Errorf("model tag is empty"))
	}
	reqBody := map[string]any{
		"model":  in.Model,
		"system": systemPrompt,
		"prompt": buildJudgmentPrompt(in),
		"stream": false,
		"format": "json",
		"options": map[string]any{
			"temperature": 0,
		},
	}
	if len(in.Image) > 0 {
		reqBody["images"] = []string{base64.StdEncoding.EncodeToString(in.Image)}
	}
	return j.client.generate(ctx, reqBody)
}

// InstalledModels lists the model tags the backend can serve.
func (c *Client) InstalledModels(ctx context.Context) ([]string, error) {
	var out struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := c.roundTrip(ctx, http.MethodGet, "/api/tags", nil, &out, "tags"); err != nil {
		return nil, resilience.WrapTemporary("ollama tags", err, classifyOllamaError)
	}
	names := make([]string, 0, len(out.Models))
	for _, m := range out.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// MissingModels returns the tags of want that the backend does not serve. A
// tag without ":" matches any installed variant of it.
func (c *Client) MissingModels(ctx context.Context, want []string) ([]string, error) {
	installed, err := c.InstalledModels(ctx)
	if err != nil {
		return nil, err
	}
	have := make(map[string]struct{}, len(installed)*2)
	for _, name := range installed {
		have[name] = struct{}{}
		if base, _, ok := strings.Cut(name, ":"); ok {
			have[base] = struct{}{}
		}
	}
	var missing []string
	for _, tag := range want {
		if _, ok := have[tag]; !ok {
			missing = append(missing, tag)
		}
	}
	return missing, nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	type generateResponse struct {
		Response string `json:"response"`
	}
	resp, err := resilience.Call(ctx, c.executor, "ollama.generate", func(callCtx context.Context) (generateResponse, error) {
		var out generateResponse
		err := c.roundTrip(callCtx, http.MethodPost, "/api/generate", reqBody, &out, "generate")
		return out, err
	}, classifyOllamaError)
	if err != nil {
		return "", wrapOllamaError("ollama generate", err)
	}
	return strings.TrimSpace(resp.Response), nil
}
