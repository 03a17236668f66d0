package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brensch/gridsnake/agent"
	"github.com/brensch/gridsnake/config"
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/inference"
	"github.com/brensch/gridsnake/logging"
	"github.com/brensch/gridsnake/report"
	"github.com/brensch/gridsnake/selfplay"
	"github.com/brensch/gridsnake/stream"
)

func main() {
	base := config.Defaults
	base.Agent = config.AgentGreedy
	base.StallFactor = 100

	s, err := config.Load("selfplay", os.Args[1:], base)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid settings: %v", err)
	}
	if s.Agent == config.AgentHuman {
		log.Fatalf("Self-play needs an agent, not %q", s.Agent)
	}

	logger, closer, err := logging.Setup(s.LogLevel, s.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	seed := s.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	factory, err := engine.NewFactory(s.Game, engine.FactoryOptions{
		Rand:        rand.New(rand.NewSource(seed)),
		StallFactor: s.StallFactor,
		Logger:      logger,
	})
	if err != nil {
		log.Fatalf("Invalid game config: %v", err)
	}

	newChooser := func(int) agent.Chooser { return agent.NewGreedy() }
	var pool *inference.OnnxPool
	if s.Agent == config.AgentPolicy {
		pool, err = inference.NewOnnxClientPool(s.ModelPath, s.OnnxSessions, inference.OnnxClientConfig{
			UseCUDA: s.UseCUDA,
			Logger:  logger,
		})
		if err != nil {
			log.Fatalf("Failed to load model: %v", err)
		}
		defer pool.Close()
		newChooser = func(worker int) agent.Chooser {
			return agent.NewPolicy(pool, agent.PolicyOptions{
				Rand:         rand.New(rand.NewSource(seed + int64(worker) + 1)),
				ExploreGames: s.ExploreGames,
				Logger:       logger.With("worker", worker),
			})
		}
	}

	var hub *stream.Hub
	var presenter engine.Presenter
	if s.Listen != "" {
		hub = stream.NewHub(logger)
		presenter = hub
	}

	tickRate := 0
	if s.Realtime {
		tickRate = s.Game.TickRate
	}
	runner, err := selfplay.NewRunner(factory, newChooser, selfplay.Config{
		Workers:       s.Workers,
		Episodes:      s.Episodes,
		FlushEpisodes: s.FlushEpisodes,
		FlushEvery:    s.FlushEvery,
		OutDir:        s.OutDir,
		LedgerPath:    s.LedgerPath,
		Source:        s.Agent,
		TickRate:      tickRate,
	}, selfplay.RunnerOptions{Presenter: presenter, Logger: logger})
	if err != nil {
		log.Fatalf("Failed to create runner: %v", err)
	}

	g, ctx := errgroup.WithContext(sigCtx)
	runDone := make(chan struct{})

	g.Go(func() error {
		defer close(runDone)
		return runner.Run(ctx)
	})

	if hub != nil {
		api := report.NewServer(s.OutDir, 30*time.Second, logger)
		defer api.Close()
		mux := http.NewServeMux()
		mux.Handle("/ws", hub)
		api.RegisterRoutes(mux)
		srv := &http.Server{Addr: s.Listen, Handler: mux}

		g.Go(func() error {
			logger.Info("spectator stream listening", "addr", s.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-ctx.Done():
			case <-runDone:
			}
			_ = hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if pool != nil {
		g.Go(func() error {
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-runDone:
					return nil
				case <-ticker.C:
					st := pool.Stats()
					logger.Info("inference stats",
						"batches", st.TotalBatches,
						"items", st.TotalItems,
						"avg_batch", st.AvgBatchSize,
						"avg_run_ms", st.AvgRunMs,
					)
				}
			}
		})
	}

	if err := g.Wait(); err != nil {
		log.Fatalf("Self-play failed: %v", err)
	}
	st := runner.Stats()
	logger.Info("shutdown complete", "episodes", st.Episodes, "files", st.Files, "best_score", st.BestScore)
}
