package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/diary-persona-chat/internal/config"
	"github.com/kirillkom/diary-persona-chat/internal/core/domain"
	"github.com/kirillkom/diary-persona-chat/internal/core/ports"
	"github.com/kirillkom/diary-persona-chat/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

// CorpusSizer reports how many chunks are searchable.
type CorpusSizer interface {
	Size() int
}

type Router struct {
	chat      ports.ChatService
	corpus    CorpusSizer
	metrics   *metrics.HTTPServerMetrics
	validator *requestValidator

	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueTimeout   time.Duration
}

func NewRouter(
	cfg config.Config,
	chat ports.ChatService,
	corpus CorpusSizer,
	httpMetrics *metrics.HTTPServerMetrics,
) (*Router, error) {
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		chat:           chat,
		corpus:         corpus,
		metrics:        httpMetrics,
		validator:      validator,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		queueTimeout:   cfg.APIQueueTimeout,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	var onReject rejectHook
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}

	chat := http.Handler(http.HandlerFunc(rt.chatReply))
	chat = backpressureMiddleware(chat, rt.maxInFlight, rt.queueTimeout, onReject)
	chat = rateLimitMiddleware(chat, rt.rateLimitRPS, rt.rateLimitBurst, onReject)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /readyz", rt.readyz)
	mux.Handle("POST /api/chat", chat)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = rt.validator.middleware(mux)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler)
	return requestIDMiddleware(handler)
}

type chatRequest struct {
	Queries string `json:"queries"`
	Query   string `json:"query"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) readyz(w http.ResponseWriter, _ *http.Request) {
	size := 0
	if rt.corpus != nil {
		size = rt.corpus.Size()
	}
	if size == 0 {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: domain.ErrCorpusEmpty.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "chunks": size})
}

func (rt *Router) chatReply(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid json"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "query is required"})
		return
	}

	answer, err := rt.chat.Reply(r.Context(), domain.ConversationContext{
		PriorQuestions: domain.ParseHistory(req.Queries),
		Current:        req.Query,
	})
	if err != nil {
		rt.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: answer.Response})
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "internal server error"
	}
	if r.Context().Err() != nil {
		slog.Info("chat_request_canceled", "request_id", requestIDFromContext(r.Context()))
	} else {
		slog.Error("chat_request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"status", status,
			"error", err,
		)
	}
	writeJSON(w, status, errorResponse{Error: message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
