package nats

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
)

func TestEventRoundTripKeepsTitle(t *testing.T) {
	title := `WEDNESDAY, JULY 8, 1942 "the call-up"`
	payload, err := encodeEvent(title, time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("encodeEvent() error = %v", err)
	}
	got, err := decodeEvent(payload)
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if got.Title != title {
		t.Fatalf("expected %q, got %q", title, got.Title)
	}
	if !got.RequestedAt.Equal(time.Date(2026, 10, 14, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected requested_at preserved, got %s", got.RequestedAt)
	}
}

func TestDecodeEventAcceptsBareTitle(t *testing.T) {
	got, err := decodeEvent([]byte(" Foreword \n"))
	if err != nil || got.Title != "Foreword" {
		t.Fatalf("expected bare title, got %q (%v)", got.Title, err)
	}
	if !got.RequestedAt.IsZero() {
		t.Fatalf("bare title must not carry a timestamp")
	}
}

func TestDecodeEventRejectsInvalidPayloads(t *testing.T) {
	for _, raw := range []string{"", "   ", `{"title": ""}`, `{"title":`} {
		if _, err := decodeEvent([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
	if _, err := encodeEvent(" ", time.Now()); err == nil {
		t.Fatalf("expected error for blank title")
	}
}

func TestWrapTemporaryIfNeededForConnectionErrors(t *testing.T) {
	err := wrapTemporaryIfNeeded(fmt.Errorf("nats publish: %w", nats.ErrConnectionClosed))
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected temporary error, got %v", err)
	}
	plain := errors.New("bad subject")
	if got := wrapTemporaryIfNeeded(plain); got != plain {
		t.Fatalf("expected non-retryable error untouched, got %v", got)
	}
	if classifyNATSError(context.Canceled).RecordFailure {
		t.Fatalf("expected cancellation not recorded")
	}
}
