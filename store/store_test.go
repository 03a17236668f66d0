package store

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleRows(episode string, n int) []TransitionRow {
	rows := make([]TransitionRow, n)
	for i := range rows {
		rows[i] = TransitionRow{
			EpisodeID: episode,
			Step:      int32(i),
			Width:     100,
			Height:    50,
			State:     []int32{0, 0, 0, 1, 0, 0, 0, 1, 0, 1, 0},
			Action:    int32(i % 3),
			NextState: []int32{0, 0, 1, 1, 0, 0, 0, 1, 0, 1, 0},
			Done:      i == n-1,
			Length:    3,
			HeadX:     int32(55 + 5*i),
			HeadY:     25,
			Source:    "test",
		}
	}
	rows[n-1].Reward = -10
	return rows
}

func TestWriteBatchParquetAtomic_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := sampleRows("ep-1", 5)

	path, err := WriteBatchParquetAtomic(dir, in)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if filepath.Dir(path) != dir {
		t.Fatalf("path %s not in %s", path, dir)
	}
	tmp, _ := os.ReadDir(filepath.Join(dir, "tmp"))
	if len(tmp) != 0 {
		t.Fatalf("tmp dir not empty: %v", tmp)
	}

	out, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("rows=%d want=%d", len(out), len(in))
	}
	last := out[len(out)-1]
	if !last.Done || last.Reward != -10 || last.EpisodeID != "ep-1" || last.HeadX != 75 {
		t.Fatalf("last row=%+v", last)
	}
	if len(out[0].State) != 11 || out[0].State[3] != 1 || out[0].NextState[2] != 1 {
		t.Fatalf("state=%v next=%v", out[0].State, out[0].NextState)
	}
}

func TestBatchWriter_Finalize(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := w.WriteEpisode("a", sampleRows("a", 3)); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := w.WriteEpisode("b", sampleRows("b", 4)); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if w.BufferedRows() != 7 || w.BufferedEpisodes() != 2 {
		t.Fatalf("buffered rows=%d episodes=%d", w.BufferedRows(), w.BufferedEpisodes())
	}

	path, rows, episodes, err := w.Finalize()
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if rows != 7 || len(episodes) != 2 || episodes[0] != "a" || episodes[1] != "b" {
		t.Fatalf("rows=%d episodes=%v", rows, episodes)
	}
	if _, err := os.Stat(w.TmpPath()); !os.IsNotExist(err) {
		t.Fatalf("tmp file still present: %v", err)
	}

	got, err := ReadTransitions(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 7 || got[3].EpisodeID != "b" {
		t.Fatalf("read %d rows, row 3=%+v", len(got), got[3])
	}

	if err := w.WriteEpisode("c", sampleRows("c", 1)); err != ErrWriterClosed {
		t.Fatalf("write after finalize: %v", err)
	}
	if p, _, _, err := w.Finalize(); p != "" || err != nil {
		t.Fatalf("second finalize: %q %v", p, err)
	}
}

func TestBatchWriter_EmptyFinalizeRemovesTmp(t *testing.T) {
	dir := t.TempDir()
	w, err := NewBatchWriter(dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path, rows, _, err := w.Finalize()
	if err != nil || path != "" || rows != 0 {
		t.Fatalf("finalize=%q %d %v", path, rows, err)
	}
	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if !e.IsDir() {
			t.Fatalf("unexpected file %s", e.Name())
		}
	}
}

func TestEpisodeLedger_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "episodes.log")
	l, err := OpenEpisodeLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := l.Record("batch_1.parquet", []string{"a", "b", "", "a"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Record("batch_2.parquet", []string{"b", "c"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if l.Count() != 3 {
		t.Fatalf("count=%d want 3", l.Count())
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := l.Record("batch_3.parquet", []string{"d"}); err == nil {
		t.Fatalf("record after close succeeded")
	}

	// Simulate a torn trailing write.
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open raw: %v", err)
	}
	_, _ = f.WriteString("partial")
	_ = f.Close()

	l, err = OpenEpisodeLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()

	if l.Count() != 3 || l.Has("partial") {
		t.Fatalf("count=%d after reopen", l.Count())
	}
	if file, ok := l.Lookup("b"); !ok || file != "batch_1.parquet" {
		t.Fatalf("lookup b=%q,%v want batch_1.parquet", file, ok)
	}
	if !l.Has("c") || l.Has("d") {
		t.Fatalf("has c=%v d=%v", l.Has("c"), l.Has("d"))
	}
}

func TestEpisodeLedger_TornLineAfterTab(t *testing.T) {
	path := filepath.Join(t.TempDir(), "episodes.log")
	if err := os.WriteFile(path, []byte("a\tbatch_1.parquet\nx\tbatch_2.parq"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	l, err := OpenEpisodeLedger(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if l.Has("x") || !l.Has("a") {
		t.Fatalf("torn entry accepted: has x=%v a=%v", l.Has("x"), l.Has("a"))
	}
	if err := l.Record("batch_3.parquet", []string{"y"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	l, err = OpenEpisodeLedger(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer l.Close()
	if file, ok := l.Lookup("y"); !ok || file != "batch_3.parquet" {
		t.Fatalf("lookup y=%q,%v want batch_3.parquet", file, ok)
	}
	if l.Has("x") || l.Count() != 2 {
		t.Fatalf("count=%d has x=%v", l.Count(), l.Has("x"))
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if want := "a\tbatch_1.parquet\ny\tbatch_3.parquet\n"; string(raw) != want {
		t.Fatalf("ledger file=%q want %q", raw, want)
	}
}
