package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

var ErrWriterClosed = errors.New("batch writer is closed")

// BatchWriter streams rows into a single Parquet file under outDir/tmp and
// moves it into outDir on Finalize.
type BatchWriter struct {
	outDir  string
	tmpPath string
	outPath string

	file   *os.File
	writer *parquet.GenericWriter[TransitionRow]

	episodes []string
	rows     int
}

func NewBatchWriter(outDir string) (*BatchWriter, error) {
	if outDir == "" {
		return nil, errors.New("outDir is required")
	}

	absOut, err := filepath.Abs(outDir)
	if err != nil {
		absOut = outDir
	}
	tmpDir := filepath.Join(absOut, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	tmpPath := filepath.Join(tmpDir, name)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open tmp parquet: %w", err)
	}

	w := parquet.NewGenericWriter[TransitionRow](
		f,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
	)
	w.SetKeyValueMetadata("schema", SchemaVersion)

	return &BatchWriter{
		outDir:  absOut,
		tmpPath: tmpPath,
		outPath: filepath.Join(absOut, name),
		file:    f,
		writer:  w,
	}, nil
}

func (b *BatchWriter) TmpPath() string       { return b.tmpPath }
func (b *BatchWriter) OutPath() string       { return b.outPath }
func (b *BatchWriter) BufferedRows() int     { return b.rows }
func (b *BatchWriter) BufferedEpisodes() int { return len(b.episodes) }

// WriteEpisode appends all rows of one finished episode.
func (b *BatchWriter) WriteEpisode(episodeID string, rows []TransitionRow) error {
	if b.writer == nil || b.file == nil {
		return ErrWriterClosed
	}
	if len(rows) > 0 {
		if _, err := b.writer.Write(rows); err != nil {
			return fmt.Errorf("write episode %s: %w", episodeID, err)
		}
		b.rows += len(rows)
	}
	b.episodes = append(b.episodes, episodeID)
	return nil
}

// Finalize closes the Parquet writer and moves the file from tmp/ into
// outDir. When nothing was written the tmp file is removed and outPath is
// empty. The returned episode IDs are those contained in the file.
func (b *BatchWriter) Finalize() (outPath string, rows int, episodes []string, err error) {
	if b.writer == nil && b.file == nil {
		return "", 0, nil, nil
	}

	rows = b.rows
	episodes = b.episodes
	outPath = b.outPath

	var closeErr error
	if b.writer != nil {
		closeErr = b.writer.Close()
		b.writer = nil
	}
	var fileErr error
	if b.file != nil {
		_ = b.file.Sync()
		fileErr = b.file.Close()
		b.file = nil
	}
	if closeErr != nil {
		return "", 0, nil, fmt.Errorf("close parquet writer: %w", closeErr)
	}
	if fileErr != nil {
		return "", 0, nil, fmt.Errorf("close parquet file: %w", fileErr)
	}

	if rows == 0 {
		_ = os.Remove(b.tmpPath)
		return "", 0, nil, nil
	}
	if err := os.Rename(b.tmpPath, b.outPath); err != nil {
		return "", 0, nil, fmt.Errorf("rename parquet: %w", err)
	}
	return outPath, rows, episodes, nil
}
