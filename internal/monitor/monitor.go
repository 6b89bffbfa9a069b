// Package monitor serves the JSON monitoring and query surface.
package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/feedharvest/internal/ingest"
	"github.com/deusflow/feedharvest/internal/logger"
	"github.com/deusflow/feedharvest/internal/news"
	"github.com/deusflow/feedharvest/internal/scheduler"
	"github.com/deusflow/feedharvest/internal/storage"
)

const topCategories = 10

// Scheduler is the part of scheduler.Scheduler the monitor needs.
type Scheduler interface {
	TriggerRefresh(ctx context.Context) (ingest.Result, error)
	Stats() scheduler.Stats
}

// Reader is the read side of storage.Gateway.
type Reader interface {
	GetArticles(ctx context.Context, f storage.Filter) (storage.Page, error)
	SourcesStats(ctx context.Context) ([]storage.SourceStat, error)
	CategoriesStats(ctx context.Context) ([]storage.CategoryStat, error)
	Count(ctx context.Context) (int64, error)
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Server exposes health, stats, refresh and article queries over HTTP.
type Server struct {
	sched  Scheduler
	reader Reader
	driver string
	now    func() time.Time
}

func NewServer(sched Scheduler, reader Reader, driver string) *Server {
	return &Server{sched: sched, reader: reader, driver: driver, now: time.Now}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.health)
	mux.HandleFunc("GET /stats", s.stats)
	mux.HandleFunc("POST /refresh", s.refresh)
	mux.HandleFunc("GET /articles", s.articles)
	mux.HandleFunc("GET /sources", s.sources)
	mux.HandleFunc("GET /categories", s.categories)
	return logRequest(mux)
}

// ListenAndServe runs the server on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Monitoring server listening", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.sched.Stats()
	total, err := s.reader.Count(r.Context())
	status := "healthy"
	if err != nil {
		logger.Error("Error counting articles", "error", err)
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"status":    status,
		"storage":   s.driver,
		"timestamp": s.now().UTC(),
		"uptime":    st.UptimeSeconds,
		"scheduler": map[string]any{
			"isRunning":     st.IsRunning,
			"lastRun":       st.LastRun,
			"totalRuns":     st.TotalRuns,
			"totalArticles": total,
		},
	}})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st := s.sched.Stats()

	total, err := s.reader.Count(ctx)
	if err != nil {
		logger.Error("Error counting articles", "error", err)
	}
	srcs := s.sourceStats(ctx)
	cats := s.categoryStats(ctx)
	if len(cats) > topCategories {
		cats = cats[:topCategories]
	}

	activeSince := s.now().Add(-24 * time.Hour)
	active := 0
	for _, src := range srcs {
		if src.LatestArticle.After(activeSince) {
			active++
		}
	}

	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"scheduler":     st,
		"totalArticles": total,
		"sources":       map[string]int{"total": len(srcs), "active": active},
		"categories":    map[string]any{"total": len(cats), "top": cats},
	}})
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.sched.TriggerRefresh(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		writeJSON(w, http.StatusConflict, envelope{Error: "RSS fetch already in progress"})
	case err != nil && !errors.Is(err, ingest.ErrAllFeedsFailed):
		writeJSON(w, http.StatusInternalServerError, envelope{Error: err.Error()})
	default:
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
			"message": "RSS feeds refreshed",
			"result":  res,
		}})
	}
}

func (s *Server) articles(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
		return
	}

	page, err := s.reader.GetArticles(r.Context(), f)
	if err != nil {
		logger.Error("Error fetching articles", "error", err)
		f = f.Normalized()
		page = storage.Page{Pagination: storage.Pagination{Page: f.Page, Limit: f.Limit}}
	}
	if page.Articles == nil {
		page.Articles = []news.Article{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: page})
}

func (s *Server) sources(w http.ResponseWriter, r *http.Request) {
	srcs := s.sourceStats(r.Context())
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"sources": srcs,
		"total":   len(srcs),
	}})
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	cats := s.categoryStats(r.Context())
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"categories": cats,
		"total":      len(cats),
	}})
}

func (s *Server) sourceStats(ctx context.Context) []storage.SourceStat {
	srcs, err := s.reader.SourcesStats(ctx)
	if err != nil {
		logger.Error("Error fetching sources stats", "error", err)
	}
	if srcs == nil {
		srcs = []storage.SourceStat{}
	}
	return srcs
}

func (s *Server) categoryStats(ctx context.Context) []storage.CategoryStat {
	cats, err := s.reader.CategoriesStats(ctx)
	if err != nil {
		logger.Error("Error fetching categories stats", "error", err)
	}
	if cats == nil {
		cats = []storage.CategoryStat{}
	}
	return cats
}

func parseFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		Source:   strings.TrimSpace(q.Get("source")),
		Category: strings.TrimSpace(q.Get("category")),
		Author:   strings.TrimSpace(q.Get("author")),
		Search:   strings.TrimSpace(q.Get("search")),
	}

	var err error
	if f.Page, err = intParam(q.Get("page")); err != nil {
		return f, errors.New("invalid page")
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, errors.New("invalid limit")
	}
	if f.StartDate, err = dateParam(q.Get("startDate"), false); err != nil {
		return f, errors.New("invalid startDate")
	}
	if f.EndDate, err = dateParam(q.Get("endDate"), true); err != nil {
		return f, errors.New("invalid endDate")
	}
	if v := q.Get("includeDuplicates"); v != "" {
		if f.IncludeDuplicates, err = strconv.ParseBool(v); err != nil {
			return f, errors.New("invalid includeDuplicates")
		}
	}
	return f, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// dateParam accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func dateParam(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
