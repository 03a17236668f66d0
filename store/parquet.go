// Package store persists self-play transitions as Parquet for an offline
// Q-learning trainer.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress/zstd"
)

// SchemaVersion is written to every file's key/value metadata.
const SchemaVersion = "transition_row_v1"

// TransitionRow is one (state, action, reward, next state) sample.
//
// State and NextState are the 11 binary features in the order produced by
// agent.Extract. Action is 0=straight, 1=right turn, 2=left turn. Reward is
// the reward earned by this step alone (+50 food, -10 collision, 0
// otherwise). Done marks the final step of an episode; NextState is still
// filled in but a trainer must not bootstrap from it.
type TransitionRow struct {
	EpisodeID string  `parquet:"episode_id,dict"`
	Step      int32   `parquet:"step"`
	Width     int32   `parquet:"width"`
	Height    int32   `parquet:"height"`
	State     []int32 `parquet:"state"`
	Action    int32   `parquet:"action"`
	Explored  bool    `parquet:"explored"`
	Reward    int32   `parquet:"reward"`
	NextState []int32 `parquet:"next_state"`
	Done      bool    `parquet:"done"`
	Score     int32   `parquet:"score"`
	Length    int32   `parquet:"length"`
	HeadX     int32   `parquet:"head_x"`
	HeadY     int32   `parquet:"head_y"`
	FoodX     int32   `parquet:"food_x"`
	FoodY     int32   `parquet:"food_y"`
	Source    string  `parquet:"source,dict"`
}

func batchName() string {
	return fmt.Sprintf("batch_%d.parquet", time.Now().UnixNano())
}

// WriteBatchParquetAtomic writes rows into outDir/tmp and then renames the
// file into outDir, so readers never observe a partial file.
func WriteBatchParquetAtomic(outDir string, rows []TransitionRow) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	tmpDir := filepath.Join(outDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("create tmp dir: %w", err)
	}

	name := batchName()
	finalPath := filepath.Join(outDir, name)
	tmpPath := filepath.Join(tmpDir, name+".tmp")
	_ = os.Remove(tmpPath)

	if err := parquet.WriteFile(tmpPath, rows,
		parquet.Compression(&zstd.Codec{Level: zstd.SpeedBetterCompression}),
		parquet.KeyValueMetadata("schema", SchemaVersion),
	); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("write parquet: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("rename parquet: %w", err)
	}

	return finalPath, nil
}

// ReadTransitions loads every row of a file written by this package.
func ReadTransitions(path string) ([]TransitionRow, error) {
	rows, err := parquet.ReadFile[TransitionRow](path)
	if err != nil {
		return nil, fmt.Errorf("read parquet %s: %w", path, err)
	}
	return rows, nil
}
