package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const maxPageSize = 1000

// Server serves the episode index and summaries as JSON.
type Server struct {
	cache  *DBCache
	logger *slog.Logger
}

// NewServer serves the batches in root, rescanning at most every
// refreshRate.
func NewServer(root string, refreshRate time.Duration, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cache:  NewDBCache(root, refreshRate, logger),
		logger: logger,
	}
}

// RegisterRoutes sets up all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/episodes", s.handleEpisodes)
	mux.HandleFunc("/api/episodes/", s.handleEpisode)
}

func (s *Server) Close() error { return s.cache.Close() }

type EpisodesResponse struct {
	Total    int64            `json:"total"`
	Episodes []EpisodeSummary `json:"episodes"`
}

// db checks the method and acquires a connection for the request. The
// caller must release it when ok is true.
func (s *Server) db(w http.ResponseWriter, r *http.Request) (db *sql.DB, release func(), ok bool) {
	withCORS(w)
	if r.Method == http.MethodOptions {
		return nil, nil, false
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return nil, nil, false
	}
	db, release, err := s.cache.Acquire()
	if err != nil {
		s.logger.Error("open transitions db failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, nil, false
	}
	return db, release, true
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	db, release, ok := s.db(w, r)
	if !ok {
		return
	}
	defer release()
	sum, err := QuerySummary(r.Context(), db)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if sum == nil {
		sum = []SourceSummary{}
	}
	writeJSON(w, sum)
}

func (s *Server) handleEpisodes(w http.ResponseWriter, r *http.Request) {
	db, release, ok := s.db(w, r)
	if !ok {
		return
	}
	defer release()
	limit := parseIntQuery(r, "limit", 100)
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset := parseIntQuery(r, "offset", 0)
	sortKey := strings.TrimSpace(r.URL.Query().Get("sort"))
	sortDir := strings.TrimSpace(r.URL.Query().Get("dir"))

	episodes, total, err := QueryEpisodes(r.Context(), db, limit, offset, sortKey, sortDir)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, EpisodesResponse{Total: total, Episodes: episodes})
}

func (s *Server) handleEpisode(w http.ResponseWriter, r *http.Request) {
	db, release, ok := s.db(w, r)
	if !ok {
		return
	}
	defer release()
	// /api/episodes/{id}
	rest := strings.TrimPrefix(r.URL.Path, "/api/episodes/")
	if rest == "" || strings.Contains(rest, "/") {
		http.NotFound(w, r)
		return
	}
	id, err := url.PathUnescape(rest)
	if err != nil {
		http.Error(w, "bad episode id", http.StatusBadRequest)
		return
	}
	steps, err := QueryEpisode(r.Context(), db, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, steps)
}

func withCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	_ = enc.Encode(v)
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
