package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/felo/eml-reply/internal/config"
	"github.com/felo/eml-reply/internal/db"
	"github.com/felo/eml-reply/internal/reply"
	"github.com/felo/eml-reply/internal/scanner"
)

// Handlers holds all HTTP handlers and their dependencies
type Handlers struct {
	db      *db.DB
	cfg     *config.Config
	parser  *reply.Parser
	logger  *logrus.Logger
	scanner *scanner.Scanner

	// parsers caches one reply parser per requested locale
	parsers sync.Map

	scan *ScanProgress

	// ctx outlives requests so background scans survive the POST that started them
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Handlers instance. rp is the configured default parser.
func New(database *db.DB, cfg *config.Config, rp *reply.Parser, logger *logrus.Logger) *Handlers {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handlers{
		db:      database,
		cfg:     cfg,
		parser:  rp,
		logger:  logger,
		scanner: scanner.NewScanner(cfg.EmailsPath),
		scan:    newScanProgress(),
		ctx:     ctx,
		cancel:  cancel,
	}
	h.parsers.Store(rp.Locale(), rp)
	return h
}

// Shutdown cancels a running scan and waits for it to stop
func (h *Handlers) Shutdown() {
	h.cancel()
	h.wg.Wait()
}

// Router builds the HTTP routes
func (h *Handlers) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5, "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/parse", h.Parse)

		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
		r.Post("/messages/{id}/reparse", h.Reparse)
		r.Delete("/messages/{id}", h.DeleteMessage)

		r.Get("/search", h.Search)
		r.Get("/senders", h.Senders)

		r.Post("/scan", h.Scan)
		r.Get("/scan", h.GetScan)
		r.Get("/scan/progress", h.ScanProgressSSE)

		r.Get("/stats", h.Stats)
	})

	return r
}

func (h *Handlers) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		h.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("Request handled")
	})
}

// parserFor returns the reply parser for a locale code; empty selects the
// default. Per-locale parsers carry the configured banners and patterns.
func (h *Handlers) parserFor(code string) (*reply.Parser, error) {
	if code == "" {
		return h.parser, nil
	}

	locale, _ := reply.LookupLocale(code)
	if p, ok := h.parsers.Load(locale); ok {
		return p.(*reply.Parser), nil
	}

	p, err := h.cfg.ReplyParserFor(string(locale))
	if err != nil {
		return nil, err
	}
	actual, _ := h.parsers.LoadOrStore(locale, p)
	return actual.(*reply.Parser), nil
}

// errorResponse is the body of every non-2xx JSON response
type errorResponse struct {
	Error string `json:"error"`
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, errorResponse{Error: msg})
}

// serverError logs err and answers with a generic message
func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	h.logger.WithError(err).WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"request_id": middleware.GetReqID(r.Context()),
	}).Error(msg)
	h.writeError(w, http.StatusInternalServerError, msg)
}

// intParam reads a non-negative integer query parameter, clamped to max when max > 0
func intParam(r *http.Request, name string, def, max int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}
