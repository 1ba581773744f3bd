package cache

import (
	"context"

	"golang.org/x/sync/singleflight"

	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
)

// CoalescingEmbedder shares one in-flight EmbedQuery call between concurrent
// callers asking for the same text.
type CoalescingEmbedder struct {
	next  ports.Embedder
	group singleflight.Group
}

func NewCoalescingEmbedder(next ports.Embedder) *CoalescingEmbedder {
	return &CoalescingEmbedder{next: next}
}

func (e *CoalescingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return e.next.Embed(ctx, texts)
}

func (e *CoalescingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err, _ := e.group.Do(text, func() (interface{}, error) {
		return e.next.EmbedQuery(context.WithoutCancel(ctx), text)
	})
	if err != nil {
		return nil, err
	}
	vector := v.([]float32)
	out := make([]float32, len(vector))
	copy(out, vector)
	return out, nil
}
