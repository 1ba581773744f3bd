package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/llm"
	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/resilience"
)

// models is the subset of *genai.Models used here.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type Config struct {
	APIKey      string
	GenModel    string
	EmbedModel  string
	Temperature float64
	EmbedDims   int32
}

type Client struct {
	models   models
	cfg      Config
	executor *resilience.Executor
}

func New(ctx context.Context, cfg Config, executor *resilience.Executor) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: GOOGLE_API_KEY is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newWithModels(client.Models, cfg, executor), nil
}

func newWithModels(m models, cfg Config, executor *resilience.Executor) *Client {
	if cfg.GenModel == "" {
		cfg.GenModel = "gemini-2.5-flash"
	}
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = "gemini-embedding-001"
	}
	return &Client{models: m, cfg: cfg, executor: executor}
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) GenerateText(ctx context.Context, prompt string) (string, error) {
	return g.client.generate(ctx, prompt, "")
}

func (g *Generator) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	raw, err := g.client.generate(ctx, prompt, "application/json")
	return strings.TrimSpace(raw), err
}

func (c *Client) generate(ctx context.Context, prompt, mimeType string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(c.cfg.Temperature)),
	}
	if mimeType != "" {
		config.ResponseMIMEType = mimeType
	}
	contents := []*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)}

	text, err := resilience.Call(ctx, c.executor, "gemini.generate", func(ctx context.Context) (string, error) {
		resp, err := c.models.GenerateContent(ctx, c.cfg.GenModel, contents, config)
		if err != nil {
			return "", err
		}
		return responseText(resp)
	}, classifyGeminiError)
	if err != nil {
		return "", wrapGeminiError("gemini generate", err)
	}
	return text, nil
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

const (
	taskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	taskRetrievalQuery    = "RETRIEVAL_QUERY"
)

// Embed embeds corpus documents. EmbedQuery uses the query task type.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.embed(ctx, texts, taskRetrievalDocument)
}

func (e *Embedder) embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}
	config := &genai.EmbedContentConfig{TaskType: taskType}
	if e.client.cfg.EmbedDims > 0 {
		dims := e.client.cfg.EmbedDims
		config.OutputDimensionality = &dims
	}

	vectors, err := resilience.Call(ctx, e.client.executor, "gemini.embed", func(ctx context.Context) ([][]float32, error) {
		result, err := e.client.models.EmbedContent(ctx, e.client.cfg.EmbedModel, contents, config)
		if err != nil {
			return nil, err
		}
		if result == nil || len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("gemini embed: expected %d vectors", len(texts))
		}
		out := make([][]float32, len(result.Embeddings))
		for i, emb := range result.Embeddings {
			out[i] = emb.Values
		}
		return out, nil
	}, classifyGeminiError)
	if err != nil {
		return nil, wrapGeminiError("gemini embed", err)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{text}, taskRetrievalQuery)
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}

type Summarizer struct {
	generator *Generator
}

func NewSummarizer(client *Client) *Summarizer {
	return &Summarizer{generator: NewGenerator(client)}
}

func (s *Summarizer) Summarize(ctx context.Context, text string) (domain.ChunkSummary, error) {
	raw, err := s.generator.GenerateJSON(ctx, llm.BuildSummaryPrompt(text))
	if err != nil {
		return domain.ChunkSummary{}, err
	}
	return llm.ParseSummary(raw)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("gemini returned no candidates")
	}
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				b.WriteString(part.Text)
			}
		}
	}
	if b.Len() == 0 {
		return "", errors.New("gemini returned empty content")
	}
	return b.String(), nil
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return resilience.ClassifyHTTPError(&resilience.StatusError{
			Service:    "gemini",
			StatusCode: apiErr.Code,
			Status:     http.StatusText(apiErr.Code),
			Body:       apiErr.Message,
		})
	}
	return resilience.ClassifyHTTPError(err)
}

func wrapGeminiError(operation string, err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		statusErr := &resilience.StatusError{
			Service:    "gemini",
			Operation:  operation,
			StatusCode: apiErr.Code,
			Status:     http.StatusText(apiErr.Code),
			Body:       apiErr.Message,
		}
		return resilience.WrapUpstreamError(operation, fmt.Errorf("%w: %w", statusErr, err))
	}
	return resilience.WrapUpstreamError(operation, err)
}
