package tracing

import (
	"context"
	"strings"
	"testing"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{ServiceName: "api"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown returned %v", err)
	}
}

func TestSamplerBounds(t *testing.T) {
	if got := sampler(0).Description(); got != "AlwaysOffSampler" {
		t.Fatalf("ratio 0: got %q", got)
	}
	if got := sampler(1).Description(); !strings.Contains(got, "AlwaysOnSampler") {
		t.Fatalf("ratio 1: got %q", got)
	}
	if got := sampler(0.25).Description(); !strings.Contains(got, "TraceIDRatioBased{0.25}") {
		t.Fatalf("ratio 0.25: got %q", got)
	}
}
