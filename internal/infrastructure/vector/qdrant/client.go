package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/resilience"
)

// chunkNamespace seeds deterministic point IDs so re-indexing a title overwrites its point.
var chunkNamespace = uuid.MustParse("6f1d8a2e-3c4b-5d6e-8f70-91a2b3c4d5e6")

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
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type chunkPayload struct {
	Title          string   `json:"chunk_title"`
	Text           string   `json:"chunk_text"`
	Description    string   `json:"description"`
	PeopleInvolved []string `json:"people_involved"`
}

// PointID returns the stable point ID for a chunk title.
func PointID(title string) string {
	return uuid.NewSHA1(chunkNamespace, []byte(title)).String()
}

func (c *Client) Upsert(ctx context.Context, chunk domain.Chunk, vector []float32) error {
	if len(vector) == 0 {
		return domain.WrapError(domain.ErrInvalidInput, "qdrant upsert", fmt.Errorf("empty vector for %q", chunk.Title))
	}
	if err := c.ensureCollection(ctx, len(vector)); err != nil {
		return err
	}

	type point struct {
		ID      string       `json:"id"`
		Vector  []float32    `json:"vector"`
		Payload chunkPayload `json:"payload"`
	}
	people := chunk.PeopleInvolved
	if people == nil {
		people = []string{}
	}
	reqBody := map[string]any{"points": []point{{
		ID:     PointID(chunk.Title),
		Vector: vector,
		Payload: chunkPayload{
			Title:          chunk.Title,
			Text:           chunk.Text,
			Description:    chunk.Description,
			PeopleInvolved: people,
		},
	}}}

	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err := c.executor.Execute(ctx, "qdrant.upsert", func(ctx context.Context) error {
		resp, err := c.doJSON(ctx, http.MethodPut, url, reqBody, "upsert")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return resilience.NewStatusError("qdrant", "upsert", resp)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapUpstreamError("qdrant upsert", err)
}

// Search returns an empty result when the collection does not exist yet.
func (c *Client) Search(ctx context.Context, queryVector []float32, limit int) ([]domain.RetrievalResult, error) {
	if limit <= 0 {
		limit = 10
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64      `json:"score"`
			Payload chunkPayload `json:"payload"`
		} `json:"result"`
	}

	url := fmt.Sprintf("%s/collections/%s/points/search", c.baseURL, c.collection)
	missing := false
	err := c.executor.Execute(ctx, "qdrant.search", func(ctx context.Context) error {
		resp, err := c.doJSON(ctx, http.MethodPost, url, reqBody, "search")
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			missing = true
			return nil
		}
		if resp.StatusCode >= 300 {
			return resilience.NewStatusError("qdrant", "search", resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("decode search response: %w", err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapUpstreamError("qdrant search", err)
	}
	if missing {
		slog.Warn("qdrant_collection_missing", "collection", c.collection)
		return []domain.RetrievalResult{}, nil
	}

	out := make([]domain.RetrievalResult, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.RetrievalResult{
			Chunk: domain.Chunk{
				Title:          r.Payload.Title,
				Text:           r.Payload.Text,
				Description:    r.Payload.Description,
				PeopleInvolved: r.Payload.PeopleInvolved,
			},
			Score:  r.Score,
			Source: domain.SourceSemantic,
		})
	}
	return out, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, operation string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	return resp, nil
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

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	resp, err := c.doJSON(ctx, http.MethodPut, url, reqBody, "ensure collection")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	// 200/201 for create, 409 if already exists (depends on version/config).
	if resp.StatusCode == http.StatusConflict {
		c.markCollectionEnsured(vectorSize)
		return nil
	}
	if resp.StatusCode >= 300 {
		return resilience.WrapUpstreamError("qdrant ensure collection", resilience.NewStatusError("qdrant", "ensure collection", resp))
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
