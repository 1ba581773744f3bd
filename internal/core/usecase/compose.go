package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// ResponseComposer produces the persona answer from the query and formatted excerpts.
type ResponseComposer struct {
	renderer  ports.PromptRenderer
	generator ports.TextGenerator
	timeout   time.Duration
}

func NewResponseComposer(renderer ports.PromptRenderer, generator ports.TextGenerator, timeout time.Duration) *ResponseComposer {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ResponseComposer{
		renderer:  renderer,
		generator: generator,
		timeout:   timeout,
	}
}

// Compose returns the model text untouched.
func (c *ResponseComposer) Compose(ctx context.Context, query, excerpts string) (string, error) {
	prompt, err := c.renderer.Render(query, excerpts)
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "render persona prompt", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	text, err := c.generator.GenerateText(genCtx, prompt)
	if err != nil {
		if domain.IsKind(err, domain.ErrUpstreamTimeout) || domain.IsKind(err, domain.ErrTemporary) {
			return "", err
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", domain.WrapError(domain.ErrUpstreamTimeout, "generate response", err)
		}
		return "", fmt.Errorf("generate response: %w", err)
	}
	return text, nil
}
