package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/diary-persona-chat/internal/infrastructure/resilience"
)

const workerQueueGroup = "indexers"

type Queue struct {
	conn     *nats.Conn
	subject  string
	executor *resilience.Executor
	onLag    func(time.Duration)
}

func New(url, subject string) (*Queue, error) {
	return NewWithOptions(url, subject, Options{})
}

type Options struct {
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	ResilienceExecutor   *resilience.Executor

	// QueueLagObserver receives the delay between publish and delivery.
	QueueLagObserver func(time.Duration)
}

func NewWithOptions(url, subject string, options Options) (*Queue, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}

	conn, err := nats.Connect(
		url,
		nats.Name("diary-persona-chat"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("nats_disconnected", "error", fmt.Sprint(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Queue{
		conn:     conn,
		subject:  subject,
		executor: options.ResilienceExecutor,
		onLag:    options.QueueLagObserver,
	}, nil
}

func (q *Queue) Close() {
	if q.conn != nil {
		q.conn.Close()
	}
}

// chunkIndexEvent is the wire form of an indexing request.
type chunkIndexEvent struct {
	Title       string    `json:"title"`
	RequestedAt time.Time `json:"requested_at"`
}

func encodeEvent(title string, now time.Time) ([]byte, error) {
	if strings.TrimSpace(title) == "" {
		return nil, errors.New("chunk title is empty")
	}
	return json.Marshal(chunkIndexEvent{Title: title, RequestedAt: now.UTC()})
}

// decodeEvent also accepts a bare title payload, which carries no timestamp.
func decodeEvent(data []byte) (chunkIndexEvent, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return chunkIndexEvent{}, errors.New("empty event payload")
	}
	if !strings.HasPrefix(trimmed, "{") {
		return chunkIndexEvent{Title: trimmed}, nil
	}
	var event chunkIndexEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return chunkIndexEvent{}, fmt.Errorf("decode chunk index event: %w", err)
	}
	if strings.TrimSpace(event.Title) == "" {
		return chunkIndexEvent{}, errors.New("chunk index event has no title")
	}
	return event, nil
}

func (q *Queue) PublishChunkIndexRequested(ctx context.Context, title string) error {
	payload, err := encodeEvent(title, time.Now())
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := q.conn.Publish(q.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if q.executor != nil {
		err = q.executor.Execute(ctx, "nats.publish", call, classifyNATSError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return wrapTemporaryIfNeeded(err)
	}
	return nil
}

// Flush waits until published events reach the server.
func (q *Queue) Flush(timeout time.Duration) error {
	if err := q.conn.FlushTimeout(timeout); err != nil {
		return wrapTemporaryIfNeeded(fmt.Errorf("nats flush: %w", err))
	}
	return nil
}

func (q *Queue) SubscribeChunkIndexRequested(ctx context.Context, handler func(context.Context, string) error) error {
	sub, err := q.conn.QueueSubscribe(q.subject, workerQueueGroup, func(msg *nats.Msg) {
		if errors.Is(ctx.Err(), context.Canceled) {
			return
		}

		event, err := decodeEvent(msg.Data)
		if err != nil {
			slog.Warn("chunk_index_event_invalid", "error", err.Error())
			return
		}
		if q.onLag != nil && !event.RequestedAt.IsZero() {
			q.onLag(time.Since(event.RequestedAt))
		}
		title := event.Title

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, title); err != nil {
			slog.Error("chunk_index_failed", "title", title, "error", err.Error())
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := q.conn.Flush(); err != nil {
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := q.conn.FlushTimeout(5 * time.Second); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}
