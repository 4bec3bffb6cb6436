package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/policy-radar/internal/core/domain"
	"github.com/kirillkom/policy-radar/internal/core/ports"
	"github.com/kirillkom/policy-radar/internal/observability/metrics"
)

const maxRequestBodyBytes = 1 << 20

// RebuildTrigger hands a full rebuild off to a worker.
type RebuildTrigger interface {
	PublishRebuildRequest(ctx context.Context, reason string) error
}

type Options struct {
	AdminAPIKey    string
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueTimeout   time.Duration
	Metrics        *metrics.HTTPServerMetrics
}

type Router struct {
	query   ports.QueryService
	index   ports.IndexManager
	trigger RebuildTrigger
	opts    Options
}

// NewRouter builds the API router. trigger may be nil, in which case
// rebuild requests are rejected.
func NewRouter(opts Options, query ports.QueryService, index ports.IndexManager, trigger RebuildTrigger) *Router {
	if opts.QueueTimeout <= 0 {
		opts.QueueTimeout = 2 * time.Second
	}
	return &Router{query: query, index: index, trigger: trigger, opts: opts}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/index/stats", rt.indexStats)
	mux.HandleFunc("/v1/index/reload", adminAuth(rt.opts.AdminAPIKey, rt.reloadIndex))
	mux.HandleFunc("/v1/index/rebuild", adminAuth(rt.opts.AdminAPIKey, rt.rebuildIndex))
	mux.HandleFunc("/v1/topics", rt.topics)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/rag/query", rt.queryRAG)
	if rt.opts.Metrics != nil {
		mux.Handle("/metrics", rt.opts.Metrics.Handler())
	}

	var handler http.Handler = mux
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueTimeout)
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst)
	if rt.opts.Metrics != nil {
		handler = rt.opts.Metrics.Middleware(handler)
	}
	return requestLogMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	status := rt.index.Status()
	health := "ok"
	if status.State != domain.StateReady {
		health = "degraded"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":              health,
		"state":               status.State,
		"vector_store_loaded": status.IndexLoaded,
	})
}

func (rt *Router) indexStats(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, rt.index.Status())
}

func (rt *Router) topics(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"topics": rt.index.Topics()})
}

func (rt *Router) reloadIndex(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	err := rt.index.Reload(r.Context())
	status := rt.index.Status()
	if rt.opts.Metrics != nil {
		chunks := 0
		if status.Stats != nil {
			chunks = status.Stats.ChunkCount
		}
		rt.opts.Metrics.RecordReload(chunks, err)
	}
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (rt *Router) rebuildIndex(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	if rt.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "rebuild trigger is not configured")
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	// The body is optional.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := rt.trigger.PublishRebuildRequest(r.Context(), strings.TrimSpace(req.Reason)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

type searchRequest struct {
	Query   string `json:"query"`
	K       int    `json:"k"`
	Source  string `json:"source"`
	DocType string `json:"doc_type"`
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req searchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	results, err := rt.query.Search(r.Context(), req.Query, req.K, domain.SearchFilter{
		Source:  req.Source,
		DocType: req.DocType,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type queryRequest struct {
	Question string `json:"question"`
	K        int    `json:"k"`
	Source   string `json:"source"`
	DocType  string `json:"doc_type"`
}

func (rt *Router) queryRAG(w http.ResponseWriter, r *http.Request) {
	if !allowMethod(w, r, http.MethodPost) {
		return
	}
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := rt.query.Query(r.Context(), req.Question, req.K, domain.SearchFilter{
		Source:  req.Source,
		DocType: req.DocType,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method == method {
		return true
	}
	w.Header().Set("Allow", method)
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	if err := decoder.Decode(out); err != nil {
		return err
	}
	return nil
}

func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		loggerFrom(r.Context()).Error("request_failed", "status", status, "error", err)
	}
	writeError(w, status, err.Error())
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
