package report

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brensch/gridsnake/store"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func episode(id, source string, n int, explored bool) []store.TransitionRow {
	rows := make([]store.TransitionRow, n)
	for i := range rows {
		rows[i] = store.TransitionRow{
			EpisodeID: id,
			Step:      int32(i),
			Width:     100,
			Height:    50,
			State:     []int32{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 0},
			NextState: []int32{1, 0, 0, 1, 0, 0, 0, 1, 0, 1, 0},
			Explored:  explored,
			Score:     int32(i / 2),
			Length:    int32(3 + i/2),
			HeadX:     int32(55 + 5*i),
			HeadY:     25,
			Source:    source,
		}
	}
	rows[n-1].Done = true
	rows[n-1].Reward = -10
	return rows
}

func newTestServer(t *testing.T, dir string) *httptest.Server {
	t.Helper()
	s := NewServer(dir, time.Hour, quietLogger)
	t.Cleanup(func() { _ = s.Close() })
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return resp.StatusCode
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
	return resp.StatusCode
}

func TestServer_Queries(t *testing.T) {
	dir := t.TempDir()
	rows := append(episode("a", "greedy", 5, false), episode("b", "policy", 2, true)...)
	if _, err := store.WriteBatchParquetAtomic(dir, rows); err != nil {
		t.Fatalf("write: %v", err)
	}
	ts := newTestServer(t, dir)

	var sum []SourceSummary
	if code := getJSON(t, ts.URL+"/api/summary", &sum); code != http.StatusOK {
		t.Fatalf("summary status=%d", code)
	}
	if len(sum) != 2 || sum[0].Source != "greedy" || sum[1].Source != "policy" {
		t.Fatalf("summary=%+v", sum)
	}
	g := sum[0]
	if g.Episodes != 1 || g.Steps != 5 || g.MaxScore != 2 || g.Collisions != 1 || g.ExploredRate != 0 {
		t.Fatalf("greedy summary=%+v", g)
	}
	if p := sum[1]; p.ExploredRate != 1 || p.Steps != 2 {
		t.Fatalf("policy summary=%+v", p)
	}

	var eps EpisodesResponse
	if code := getJSON(t, ts.URL+"/api/episodes?sort=steps&dir=asc", &eps); code != http.StatusOK {
		t.Fatalf("episodes status=%d", code)
	}
	if eps.Total != 2 || len(eps.Episodes) != 2 {
		t.Fatalf("episodes=%+v", eps)
	}
	if eps.Episodes[0].EpisodeID != "b" || eps.Episodes[1].EpisodeID != "a" {
		t.Fatalf("order=%s,%s", eps.Episodes[0].EpisodeID, eps.Episodes[1].EpisodeID)
	}
	if a := eps.Episodes[1]; a.Steps != 5 || a.Reward != -10 || a.Length != 5 || a.Width != 100 {
		t.Fatalf("episode a=%+v", a)
	}

	var page EpisodesResponse
	getJSON(t, ts.URL+"/api/episodes?limit=1&offset=1&sort=steps&dir=asc", &page)
	if page.Total != 2 || len(page.Episodes) != 1 || page.Episodes[0].EpisodeID != "a" {
		t.Fatalf("page=%+v", page)
	}

	var steps []Step
	if code := getJSON(t, ts.URL+"/api/episodes/a", &steps); code != http.StatusOK {
		t.Fatalf("episode status=%d", code)
	}
	if len(steps) != 5 || !steps[4].Done || steps[2].HeadX != 65 {
		t.Fatalf("steps=%+v", steps)
	}
	if len(steps[0].State) != 11 || steps[0].State[3] != 1 || steps[0].NextState[0] != 1 {
		t.Fatalf("state=%v next=%v", steps[0].State, steps[0].NextState)
	}

	if code := getJSON(t, ts.URL+"/api/episodes/missing", &steps); code != http.StatusNotFound {
		t.Fatalf("missing episode status=%d", code)
	}
}

func TestServer_EmptyDir(t *testing.T) {
	ts := newTestServer(t, t.TempDir())

	var sum []SourceSummary
	if code := getJSON(t, ts.URL+"/api/summary", &sum); code != http.StatusOK || len(sum) != 0 {
		t.Fatalf("status=%d summary=%+v", code, sum)
	}
	var eps EpisodesResponse
	if code := getJSON(t, ts.URL+"/api/episodes", &eps); code != http.StatusOK || eps.Total != 0 {
		t.Fatalf("status=%d episodes=%+v", code, eps)
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, t.TempDir())
	resp, err := http.Post(ts.URL+"/api/summary", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestDBCache_Refresh(t *testing.T) {
	dir := t.TempDir()
	c := NewDBCache(dir, time.Hour, quietLogger)
	defer c.Close()

	db, release, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_, total, err := QueryEpisodes(t.Context(), db, 10, 0, "", "")
	if err != nil || total != 0 {
		t.Fatalf("total=%d err=%v", total, err)
	}
	release()

	if _, err := store.WriteBatchParquetAtomic(dir, episode("c", "greedy", 3, false)); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Cached until refreshed.
	db, release, err = c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, total, _ := QueryEpisodes(t.Context(), db, 10, 0, "", ""); total != 0 {
		t.Fatalf("stale view saw %d episodes", total)
	}
	release()

	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	db, release, err = c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()
	eps, total, err := QueryEpisodes(t.Context(), db, 10, 0, "", "")
	if err != nil || total != 1 || eps[0].EpisodeID != "c" || eps[0].Score != 1 {
		t.Fatalf("eps=%+v total=%d err=%v", eps, total, err)
	}
}

func TestDBCache_HandleSurvivesRefresh(t *testing.T) {
	dir := t.TempDir()
	if _, err := store.WriteBatchParquetAtomic(dir, episode("a", "greedy", 2, false)); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := NewDBCache(dir, time.Hour, quietLogger)
	defer c.Close()

	old, releaseOld, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// A refresh while a request still holds the old handle.
	if err := c.Refresh(); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	sum, err := QuerySummary(t.Context(), old)
	if err != nil {
		t.Fatalf("query on held handle after refresh: %v", err)
	}
	if len(sum) != 1 || sum[0].Episodes != 1 {
		t.Fatalf("summary=%+v", sum)
	}

	cur, releaseCur, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer releaseCur()
	if cur == old {
		t.Fatalf("refresh did not replace the connection")
	}

	releaseOld()
	releaseOld()
	if err := old.PingContext(t.Context()); err == nil {
		t.Fatalf("retired handle still open after release")
	}
	if _, err := QuerySummary(t.Context(), cur); err != nil {
		t.Fatalf("query on current handle: %v", err)
	}
}

func TestDBCache_CloseWaitsForHolders(t *testing.T) {
	c := NewDBCache(t.TempDir(), time.Hour, quietLogger)
	db, release, err := c.Acquire()
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := db.PingContext(t.Context()); err != nil {
		t.Fatalf("held handle closed early: %v", err)
	}
	release()
	if err := db.PingContext(t.Context()); err == nil {
		t.Fatalf("handle still open after last release")
	}
}

func TestNormalizeSort(t *testing.T) {
	cases := []struct{ key, dir, wantKey, wantDir string }{
		{"", "", "score", "desc"},
		{"turns", "ASC", "steps", "asc"},
		{"id", "sideways", "episode_id", "desc"},
		{"x; DROP TABLE", "asc", "score", "asc"},
	}
	for _, c := range cases {
		k, d := normalizeSort(c.key, c.dir)
		if k != c.wantKey || d != c.wantDir {
			t.Errorf("normalizeSort(%q,%q)=%q,%q want %q,%q", c.key, c.dir, k, d, c.wantKey, c.wantDir)
		}
	}
}
