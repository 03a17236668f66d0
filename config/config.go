// Package config loads process settings from flags whose defaults come from
// SNAKE_* environment variables.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brensch/gridsnake/game"
	"github.com/brensch/gridsnake/logging"
)

var ErrInvalidSettings = errors.New("invalid settings")

// Agent kinds.
const (
	AgentHuman  = "human"
	AgentGreedy = "greedy"
	AgentPolicy = "policy"
)

type Settings struct {
	Game game.Config

	Agent        string
	ModelPath    string
	UseCUDA      bool
	OnnxSessions int
	ExploreGames int
	Seed         int64

	// StallFactor ends a game after StallFactor*len(snake) ticks. Zero
	// disables it.
	StallFactor int
	Episodes    int
	Workers     int
	Realtime    bool

	OutDir        string
	LedgerPath    string
	FlushEpisodes int
	FlushEvery    time.Duration

	Listen string
	// Watch is a spectator websocket URL to follow instead of playing.
	Watch    string
	LogLevel string
	LogFile  string
}

// Defaults are the settings used when neither a flag nor an environment
// variable is given.
var Defaults = Settings{
	Game:          game.DefaultConfig,
	Agent:         AgentHuman,
	OnnxSessions:  1,
	ExploreGames:  80,
	Workers:       1,
	OutDir:        "data",
	LedgerPath:    "data/episodes.log",
	FlushEpisodes: 100,
	FlushEvery:    time.Minute,
	LogLevel:      "info",
}

// Load registers every setting on a new flag set named name, parses args and
// validates the result. base supplies per-binary defaults, which SNAKE_*
// environment variables and then flags override.
func Load(name string, args []string, base Settings) (Settings, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	s := Register(fs, base)
	if err := fs.Parse(args); err != nil {
		return Settings{}, err
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return *s, nil
}

// Register binds all settings to fs.
func Register(fs *flag.FlagSet, base Settings) *Settings {
	s := &Settings{}

	fs.IntVar(&s.Game.Width, "width", getEnvIntOrDefault("SNAKE_WIDTH", base.Game.Width), "Board width in pixels")
	fs.IntVar(&s.Game.Height, "height", getEnvIntOrDefault("SNAKE_HEIGHT", base.Game.Height), "Board height in pixels")
	fs.IntVar(&s.Game.OuterBlockSize, "block", getEnvIntOrDefault("SNAKE_BLOCK", base.Game.OuterBlockSize), "Cell size in pixels")
	fs.IntVar(&s.Game.InnerBlockSize, "inner-block", getEnvIntOrDefault("SNAKE_INNER_BLOCK", base.Game.InnerBlockSize), "Rendered inner square size in pixels")
	fs.IntVar(&s.Game.StartLength, "start-length", getEnvIntOrDefault("SNAKE_START_LENGTH", base.Game.StartLength), "Body cells behind the head at start")
	fs.IntVar(&s.Game.TickRate, "tick-rate", getEnvIntOrDefault("SNAKE_TICK_RATE", base.Game.TickRate), "Ticks per second")

	fs.StringVar(&s.Agent, "agent", getEnvOrDefault("SNAKE_AGENT", base.Agent), "Controller: human, greedy or policy")
	fs.StringVar(&s.ModelPath, "model", getEnvOrDefault("SNAKE_MODEL", base.ModelPath), "ONNX Q-network for the policy agent")
	fs.BoolVar(&s.UseCUDA, "cuda", getEnvBoolOrDefault("SNAKE_CUDA", base.UseCUDA), "Use the CUDA execution provider if available")
	fs.IntVar(&s.OnnxSessions, "onnx-sessions", getEnvIntOrDefault("SNAKE_ONNX_SESSIONS", base.OnnxSessions), "Parallel ONNX sessions")
	fs.IntVar(&s.ExploreGames, "explore-games", getEnvIntOrDefault("SNAKE_EXPLORE_GAMES", base.ExploreGames), "Episodes over which random exploration decays to zero")
	fs.Int64Var(&s.Seed, "seed", getEnvInt64OrDefault("SNAKE_SEED", base.Seed), "RNG seed; 0 picks one from the clock")

	fs.IntVar(&s.StallFactor, "stall-factor", getEnvIntOrDefault("SNAKE_STALL_FACTOR", base.StallFactor), "End a game after stall-factor*length ticks (0 disables)")
	fs.IntVar(&s.Episodes, "episodes", getEnvIntOrDefault("SNAKE_EPISODES", base.Episodes), "Episodes to play (0 runs until interrupted)")
	fs.IntVar(&s.Workers, "workers", getEnvIntOrDefault("SNAKE_WORKERS", base.Workers), "Concurrent self-play workers")
	fs.BoolVar(&s.Realtime, "realtime", getEnvBoolOrDefault("SNAKE_REALTIME", base.Realtime), "Throttle self-play to tick-rate")

	fs.StringVar(&s.OutDir, "out-dir", getEnvOrDefault("SNAKE_OUT_DIR", base.OutDir), "Directory for transition .parquet files")
	fs.StringVar(&s.LedgerPath, "ledger", getEnvOrDefault("SNAKE_LEDGER", base.LedgerPath), "Append-only log of flushed episode IDs")
	fs.IntVar(&s.FlushEpisodes, "flush-episodes", getEnvIntOrDefault("SNAKE_FLUSH_EPISODES", base.FlushEpisodes), "Flush when buffered episodes reaches this count")
	fs.DurationVar(&s.FlushEvery, "flush-every", getEnvDurationOrDefault("SNAKE_FLUSH_EVERY", base.FlushEvery), "Flush at this interval regardless of buffered count")

	fs.StringVar(&s.Listen, "listen", getEnvOrDefault("SNAKE_LISTEN", base.Listen), "Address for the spectator websocket (empty disables)")
	fs.StringVar(&s.Watch, "watch", getEnvOrDefault("SNAKE_WATCH", base.Watch), "Follow the game streamed at this ws:// URL")
	fs.StringVar(&s.LogLevel, "log-level", getEnvOrDefault("SNAKE_LOG_LEVEL", base.LogLevel), "debug, info, warn or error")
	fs.StringVar(&s.LogFile, "log-file", getEnvOrDefault("SNAKE_LOG_FILE", base.LogFile), "Write logs to this file instead of stderr")

	return s
}

// Validate checks the settings for internal consistency.
func (s Settings) Validate() error {
	if err := s.Game.Validate(); err != nil {
		return err
	}
	switch s.Agent {
	case AgentHuman, AgentGreedy:
	case AgentPolicy:
		if s.ModelPath == "" {
			return fmt.Errorf("%w: agent %q requires -model", ErrInvalidSettings, s.Agent)
		}
	default:
		return fmt.Errorf("%w: unknown agent %q", ErrInvalidSettings, s.Agent)
	}
	switch {
	case s.StallFactor < 0:
		return fmt.Errorf("%w: stall factor %d is negative", ErrInvalidSettings, s.StallFactor)
	case s.Episodes < 0:
		return fmt.Errorf("%w: episodes %d is negative", ErrInvalidSettings, s.Episodes)
	case s.Workers <= 0:
		return fmt.Errorf("%w: workers %d must be positive", ErrInvalidSettings, s.Workers)
	case s.FlushEpisodes <= 0:
		return fmt.Errorf("%w: flush episodes %d must be positive", ErrInvalidSettings, s.FlushEpisodes)
	case s.ExploreGames < 0:
		return fmt.Errorf("%w: explore games %d is negative", ErrInvalidSettings, s.ExploreGames)
	}
	if _, err := logging.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	return nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64OrDefault(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}
