package encoder

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
)

const serviceName = "encoder"

// Client calls the visual embedding service:
// POST /embed {"image": "<base64>"} -> {"embedding": [...]}.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type embedRequest struct {
	Image string `json:"image"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (c *Client) EncodeImage(ctx context.Context, image []byte) ([]float32, error) {
	if len(image) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "encode image", fmt.Errorf("image is empty"))
	}
	payload := embedRequest{Image: base64.StdEncoding.EncodeToString(image)}

	resp, err := resilience.Call(ctx, c.executor, "encoder.embed", func(callCtx context.Context) (embedResponse, error) {
		return c.embed(callCtx, payload)
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("encode image", err, nil)
	}
	if len(resp.Embedding) == 0 {
		return nil, fmt.Errorf("encoder returned empty embedding")
	}
	return resp.Embedding, nil
}

func (c *Client) embed(ctx context.Context, payload embedRequest) (embedResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return embedResponse{}, fmt.Errorf("marshal embed request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return embedResponse{}, fmt.Errorf("create embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return embedResponse{}, fmt.Errorf("encoder embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return embedResponse{}, resilience.NewStatusError(serviceName, "embed", resp)
	}
	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return embedResponse{}, fmt.Errorf("decode embed response: %w", err)
	}
	return out, nil
}
