// Package report answers questions about stored transitions with DuckDB
// queries over the Parquet batches.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
)

// DBCache holds a DuckDB connection with a transitions view over every
// batch in root. The view is rebuilt once refreshRate has passed so new
// flushes show up.
//
// Handles are reference counted: a refresh retires the old connection and
// it is closed only after the last Acquire holding it is released.
type DBCache struct {
	root        string
	refreshRate time.Duration
	logger      *slog.Logger

	mu          sync.Mutex
	cur         *dbHandle
	lastRefresh time.Time
}

type dbHandle struct {
	db      *sql.DB
	refs    int
	retired bool
}

func NewDBCache(root string, refreshRate time.Duration, logger *slog.Logger) *DBCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &DBCache{root: root, refreshRate: refreshRate, logger: logger}
}

// Acquire returns the current connection, refreshing it if it is stale.
// The connection stays open until release is called, even across a
// refresh. release is safe to call more than once.
func (c *DBCache) Acquire() (db *sql.DB, release func(), err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur == nil || time.Since(c.lastRefresh) >= c.refreshRate {
		if err := c.refreshLocked(); err != nil {
			return nil, nil, err
		}
	}
	h := c.cur
	h.refs++

	var once sync.Once
	release = func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			h.refs--
			c.closeIfUnusedLocked(h)
		})
	}
	return h.db, release, nil
}

// Refresh rebuilds the view now.
func (c *DBCache) Refresh() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked()
}

func (c *DBCache) refreshLocked() error {
	start := time.Now()

	db, err := openDuckDB(c.root)
	if err != nil {
		return err
	}
	c.retireLocked()
	c.cur = &dbHandle{db: db}
	c.lastRefresh = time.Now()

	c.logger.Debug("transitions view refreshed", "root", c.root, "took", time.Since(start))
	return nil
}

func (c *DBCache) retireLocked() {
	if c.cur == nil {
		return
	}
	c.cur.retired = true
	c.closeIfUnusedLocked(c.cur)
	c.cur = nil
}

func (c *DBCache) closeIfUnusedLocked(h *dbHandle) {
	if !h.retired || h.refs > 0 || h.db == nil {
		return
	}
	if err := h.db.Close(); err != nil {
		c.logger.Warn("close transitions db failed", "error", err)
	}
	h.db = nil
}

// Close retires the current connection. Handles still held stay usable
// until they are released.
func (c *DBCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retireLocked()
	return nil
}

const emptyView = `CREATE OR REPLACE VIEW transitions AS
	SELECT * FROM (
		SELECT
			NULL::VARCHAR AS episode_id,
			NULL::INTEGER AS step,
			NULL::INTEGER AS width,
			NULL::INTEGER AS height,
			NULL::INTEGER[] AS state,
			NULL::INTEGER AS action,
			NULL::BOOLEAN AS explored,
			NULL::INTEGER AS reward,
			NULL::INTEGER[] AS next_state,
			NULL::BOOLEAN AS done,
			NULL::INTEGER AS score,
			NULL::INTEGER AS length,
			NULL::INTEGER AS head_x,
			NULL::INTEGER AS head_y,
			NULL::INTEGER AS food_x,
			NULL::INTEGER AS food_y,
			NULL::VARCHAR AS source,
			NULL::VARCHAR AS filename
	) WHERE 1=0`

// openDuckDB creates an in-memory database with a transitions view over the
// finished batches in root. Files still being written live in root/tmp and
// are not matched.
func openDuckDB(root string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, err
	}
	// Basic pragmas; ignore errors for compatibility across versions.
	_, _ = db.Exec("PRAGMA threads=4")

	glob := filepath.Join(root, "*.parquet")
	matches, err := filepath.Glob(glob)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("glob %s: %w", glob, err)
	}

	query := emptyView
	if len(matches) > 0 {
		query = `CREATE OR REPLACE VIEW transitions AS
			SELECT * FROM read_parquet('` + escapeSQLString(glob) + `', filename=true, union_by_name=true)`
	}
	if _, err := db.Exec(query); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create transitions view: %w", err)
	}
	return db, nil
}

func escapeSQLString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// SourceSummary aggregates every episode recorded by one agent kind.
type SourceSummary struct {
	Source       string  `json:"source"`
	Episodes     int64   `json:"episodes"`
	Steps        int64   `json:"steps"`
	AvgScore     float64 `json:"avg_score"`
	MaxScore     int64   `json:"max_score"`
	AvgSteps     float64 `json:"avg_steps"`
	ExploredRate float64 `json:"explored_rate"`
	Collisions   int64   `json:"collisions"`
}

func QuerySummary(ctx context.Context, db *sql.DB) ([]SourceSummary, error) {
	rows, err := db.QueryContext(ctx, `WITH episodes AS (
		SELECT
			episode_id,
			MIN(source)::VARCHAR AS source,
			COUNT(*)::BIGINT AS steps,
			MAX(score)::BIGINT AS score,
			SUM(CASE WHEN explored THEN 1 ELSE 0 END)::BIGINT AS explored,
			MAX(CASE WHEN done AND reward < 0 THEN 1 ELSE 0 END)::BIGINT AS collided
		FROM transitions
		GROUP BY episode_id
	)
	SELECT
		source,
		COUNT(*)::BIGINT,
		SUM(steps)::BIGINT,
		AVG(score)::DOUBLE,
		MAX(score)::BIGINT,
		AVG(steps)::DOUBLE,
		(SUM(explored)::DOUBLE / SUM(steps)::DOUBLE)::DOUBLE,
		SUM(collided)::BIGINT
	FROM episodes
	GROUP BY source
	ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceSummary
	for rows.Next() {
		var s SourceSummary
		if err := rows.Scan(&s.Source, &s.Episodes, &s.Steps, &s.AvgScore, &s.MaxScore, &s.AvgSteps, &s.ExploredRate, &s.Collisions); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EpisodeSummary is one row of the episode index.
type EpisodeSummary struct {
	EpisodeID string `json:"episode_id"`
	Steps     int64  `json:"steps"`
	Score     int64  `json:"score"`
	Length    int64  `json:"length"`
	Reward    int64  `json:"reward"`
	Width     int64  `json:"width"`
	Height    int64  `json:"height"`
	Source    string `json:"source"`
	File      string `json:"file"`
}

func normalizeSort(sortKey string, sortDir string) (string, string) {
	sk := strings.ToLower(strings.TrimSpace(sortKey))
	sd := strings.ToLower(strings.TrimSpace(sortDir))
	if sd != "asc" && sd != "desc" {
		sd = "desc"
	}
	// Map user-facing keys to column aliases. Must be safe (no user input concatenated).
	switch sk {
	case "id", "episode", "episode_id":
		sk = "episode_id"
	case "steps", "turns":
		sk = "steps"
	case "length":
		sk = "length"
	case "reward":
		sk = "reward"
	case "source":
		sk = "source"
	case "file", "filename":
		sk = "file"
	default:
		sk = "score"
	}
	return sk, sd
}

// QueryEpisodes returns one page of episodes and the total episode count.
func QueryEpisodes(ctx context.Context, db *sql.DB, limit, offset int, sortKey, sortDir string) ([]EpisodeSummary, int64, error) {
	var total int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(DISTINCT episode_id) FROM transitions`).Scan(&total); err != nil {
		return nil, 0, err
	}

	sk, sd := normalizeSort(sortKey, sortDir)
	query := `SELECT
			episode_id,
			COUNT(*)::BIGINT AS steps,
			MAX(score)::BIGINT AS score,
			MAX(length)::BIGINT AS length,
			SUM(reward)::BIGINT AS reward,
			MIN(width)::BIGINT AS width,
			MIN(height)::BIGINT AS height,
			MIN(source)::VARCHAR AS source,
			MIN(filename)::VARCHAR AS file
		FROM transitions
		GROUP BY episode_id
		ORDER BY ` + sk + ` ` + sd + `, episode_id ASC
		LIMIT ? OFFSET ?`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := make([]EpisodeSummary, 0, limit)
	for rows.Next() {
		var e EpisodeSummary
		if err := rows.Scan(&e.EpisodeID, &e.Steps, &e.Score, &e.Length, &e.Reward, &e.Width, &e.Height, &e.Source, &e.File); err != nil {
			return nil, 0, err
		}
		e.File = filepath.Base(e.File)
		out = append(out, e)
	}
	return out, total, rows.Err()
}

// Step is one stored transition as served to clients.
type Step struct {
	Step      int32   `json:"step"`
	State     []int32 `json:"state"`
	Action    int32   `json:"action"`
	Explored  bool    `json:"explored"`
	Reward    int32   `json:"reward"`
	NextState []int32 `json:"next_state"`
	Done      bool    `json:"done"`
	Score     int32   `json:"score"`
	Length    int32   `json:"length"`
	HeadX     int32   `json:"head_x"`
	HeadY     int32   `json:"head_y"`
	FoodX     int32   `json:"food_x"`
	FoodY     int32   `json:"food_y"`
}

// QueryEpisode returns an episode's steps in order, or sql.ErrNoRows.
func QueryEpisode(ctx context.Context, db *sql.DB, episodeID string) ([]Step, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT step::INTEGER, state, action::INTEGER, explored, reward::INTEGER, next_state, done,
			score::INTEGER, length::INTEGER, head_x::INTEGER, head_y::INTEGER, food_x::INTEGER, food_y::INTEGER
		 FROM transitions
		 WHERE episode_id = ?
		 ORDER BY step ASC`, episodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := make([]Step, 0, 256)
	for rows.Next() {
		var s Step
		var stateAny, nextAny any
		if err := rows.Scan(&s.Step, &stateAny, &s.Action, &s.Explored, &s.Reward, &nextAny, &s.Done,
			&s.Score, &s.Length, &s.HeadX, &s.HeadY, &s.FoodX, &s.FoodY); err != nil {
			return nil, err
		}
		s.State = asInt32Slice(stateAny)
		s.NextState = asInt32Slice(nextAny)
		steps = append(steps, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, sql.ErrNoRows
	}
	return steps, nil
}

func asInt32Slice(v any) []int32 {
	switch t := v.(type) {
	case nil:
		return nil
	case []int32:
		return t
	case []any:
		out := make([]int32, 0, len(t))
		for _, x := range t {
			switch n := x.(type) {
			case int32:
				out = append(out, n)
			case int64:
				out = append(out, int32(n))
			case int:
				out = append(out, int32(n))
			case int16:
				out = append(out, int32(n))
			case int8:
				out = append(out, int32(n))
			}
		}
		return out
	default:
		return nil
	}
}
