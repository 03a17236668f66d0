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

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gridsnake/agent"
	"github.com/brensch/gridsnake/config"
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/inference"
	"github.com/brensch/gridsnake/logging"
	"github.com/brensch/gridsnake/stream"
	"github.com/brensch/gridsnake/tui"
)

func main() {
	base := config.Defaults
	// The terminal belongs to the UI, so logs go to a file by default.
	base.LogFile = "snake.log"

	s, err := config.Load("snake", os.Args[1:], base)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Invalid settings: %v", err)
	}

	logger, closer, err := logging.Setup(s.LogLevel, s.LogFile)
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer closer.Close()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if s.Watch != "" {
		watch(ctx, s.Watch, logger)
		return
	}

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

	var (
		controller engine.Controller
		human      *agent.Human
	)
	switch s.Agent {
	case config.AgentHuman:
		human = agent.NewHuman()
		controller = human
	case config.AgentGreedy:
		controller = agent.NewGreedy()
	case config.AgentPolicy:
		client, err := inference.NewOnnxClientWithConfig(s.ModelPath, inference.OnnxClientConfig{
			BatchSize: 1,
			UseCUDA:   s.UseCUDA,
			Logger:    logger,
		})
		if err != nil {
			log.Fatalf("Failed to load model: %v", err)
		}
		defer client.Close()
		controller = agent.NewPolicy(client, agent.PolicyOptions{
			Rand:         rand.New(rand.NewSource(seed + 1)),
			ExploreGames: s.ExploreGames,
			Logger:       logger,
		})
	}

	var presenter engine.Presenter
	if s.Listen != "" {
		hub := stream.NewHub(logger)
		defer hub.Close()
		srv := serve(s.Listen, hub, logger)
		defer srv.Close()
		presenter = hub
	}

	m, err := tui.NewGame(factory, controller, tui.Options{
		Human:     human,
		Presenter: presenter,
		Logger:    logger,
	})
	if err != nil {
		log.Fatalf("Failed to start game: %v", err)
	}
	logger.Info("starting game", "agent", s.Agent, "seed", seed, "width", s.Game.Width, "height", s.Game.Height)

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Fatal(err)
	}
}

func serve(addr string, hub *stream.Hub, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("spectator stream listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("spectator stream stopped", "error", err)
		}
	}()
	return srv
}

func watch(ctx context.Context, url string, logger *slog.Logger) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	frames := make(chan engine.Frame, 16)
	errs := make(chan error, 1)
	go func() {
		defer close(frames)
		errs <- stream.Follow(ctx, url, stream.FollowConfig{}, func(ev stream.GameEvent) error {
			if ev.Type != stream.TypeFrame {
				return nil
			}
			f, err := stream.DecodeFrame(ev)
			if err != nil {
				return err
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})
	}()

	logger.Info("watching remote game", "url", url)
	p := tea.NewProgram(tui.NewWatcher(frames), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		log.Fatal(err)
	}
	cancel()
	if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("stream ended", "error", err)
	}
}
