package bootstrap

import (
	"context"
	"io"
	"log/slog"

	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/observability/logging"
	"github.com/kirillkom/diary-persona-chat/internal/observability/tracing"
)

// SetupObservability installs the default JSON logger and the tracer
// provider. The returned function flushes pending spans.
func SetupObservability(ctx context.Context, cfg config.Config, service string, logOut io.Writer) (func(context.Context) error, error) {
	slog.SetDefault(logging.NewJSONLoggerTo(logOut, service, cfg.LogLevel))
	return tracing.Setup(ctx, tracing.Config{
		ServiceName: service,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
}
