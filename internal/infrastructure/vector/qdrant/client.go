package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/culture-relevance/internal/core/domain"
	"github.com/kirillkom/culture-relevance/internal/infrastructure/resilience"
)

const serviceName = "qdrant"

// pointNamespace derives stable point ids from entity image keys.
var pointNamespace = uuid.MustParse("6f1c0f0e-9a53-4f0e-8c52-3f2f6e1b7d10")

// Client searches catalog entity images by visual embedding.
type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		executor:   executor,
	}
}

// EntityImage is one catalog image point.
type EntityImage struct {
	EntityID  string    `json:"entity_id"`
	SourceURL string    `json:"source_url"`
	Vector    []float32 `json:"vector"`
}

func (c *Client) IndexEntities(ctx context.Context, images []EntityImage) error {
	if len(images) == 0 {
		return nil
	}
	size := len(images[0].Vector)
	if err := c.ensureCollection(ctx, size); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(images))
	for _, img := range images {
		if len(img.Vector) != size {
			return domain.WrapError(domain.ErrInvalidInput, "index entities", fmt.Errorf("entity %s vector size %d", img.EntityID, len(img.Vector)))
		}
		points = append(points, point{
			ID:     uuid.NewSHA1(pointNamespace, []byte(img.EntityID+"|"+img.SourceURL)).String(),
			Vector: img.Vector,
			Payload: map[string]any{
				"entity_id":  img.EntityID,
				"source_url": img.SourceURL,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	_, err := resilience.Call(ctx, c.executor, "qdrant.upsert", func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, c.doJSON(callCtx, http.MethodPut, path, map[string]any{"points": points}, nil, "upsert")
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant upsert", err, nil)
}

// Search returns the k nearest entity images. Distance is 1 - cosine
// similarity, so lower is closer.
func (c *Client) Search(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	if len(vector) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "qdrant search", fmt.Errorf("empty query vector"))
	}
	if k <= 0 {
		return nil, nil
	}

	type searchResponse struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)

	resp, err := resilience.Call(ctx, c.executor, "qdrant.search", func(callCtx context.Context) (searchResponse, error) {
		var out searchResponse
		err := c.doJSON(callCtx, http.MethodPost, path, reqBody, &out, "search")
		return out, err
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("qdrant search", err, nil)
	}

	out := make([]domain.Neighbor, 0, len(resp.Result))
	for _, r := range resp.Result {
		entityID := getStringPayload(r.Payload, "entity_id")
		if entityID == "" {
			continue
		}
		out = append(out, domain.Neighbor{
			EntityID:  entityID,
			Distance:  1 - r.Score,
			SourceURL: getStringPayload(r.Payload, "source_url"),
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.doJSON(ctx, http.MethodPut, "/collections/"+c.collection, reqBody, nil, "ensure collection")
	if err != nil {
		// 409 when the collection already exists
		var statusErr *resilience.StatusError
		if !isStatus(err, &statusErr, http.StatusConflict) {
			return err
		}
	}
	c.markCollectionEnsured(vectorSize)
	return nil
}

func (c *Client) markCollectionEnsured(vectorSize int) {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return resilience.NewStatusError(serviceName, operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func isStatus(err error, target **resilience.StatusError, code int) bool {
	return errors.As(err, target) && (*target).StatusCode == code
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
