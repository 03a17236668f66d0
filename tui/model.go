// Package tui is the terminal front end: a bubbletea program that either
// plays a local game or follows a remote one.
package tui

import (
	"fmt"
	"log/slog"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/brensch/gridsnake/agent"
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
)

// TickMsg advances a local game by one step.
type TickMsg time.Time

// FrameMsg carries a frame from a followed game.
type FrameMsg engine.Frame

// StreamClosedMsg reports that the followed game's frame channel closed.
type StreamClosedMsg struct{ Err error }

// Options configure a Model. Human may be nil when an agent drives.
type Options struct {
	Human     *agent.Human
	Presenter engine.Presenter
	Logger    *slog.Logger
	// Interval overrides the config's tick interval.
	Interval time.Duration
}

// Model is the bubbletea model. Local games are built with NewGame, remote
// ones with NewWatcher.
type Model struct {
	factory    *engine.Factory
	session    *engine.Session
	controller engine.Controller
	human      *agent.Human
	presenter  engine.Presenter
	logger     *slog.Logger
	interval   time.Duration

	frames <-chan engine.Frame
	closed bool

	frame  engine.Frame
	paused bool
	games  int
	best   int
	err    error
}

// NewGame starts the first session from f. When opts.Human is set it
// receives the arrow keys; controller may be the same value.
func NewGame(f *engine.Factory, controller engine.Controller, opts Options) (Model, error) {
	s, err := f.NewSession()
	if err != nil {
		return Model{}, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = f.Config().TickInterval()
	}
	m := Model{
		factory:    f,
		session:    s,
		controller: controller,
		human:      opts.Human,
		presenter:  opts.Presenter,
		logger:     logger,
		interval:   interval,
		games:      1,
	}
	m.frame = s.Frame()
	return m, nil
}

// NewWatcher renders frames received on frames until it is closed.
func NewWatcher(frames <-chan engine.Frame) Model {
	return Model{frames: frames, logger: slog.Default()}
}

func (m Model) tickCmd() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func waitForFrame(frames <-chan engine.Frame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-frames
		if !ok {
			return StreamClosedMsg{}
		}
		return FrameMsg(f)
	}
}

func (m Model) Init() tea.Cmd {
	if m.frames != nil {
		return waitForFrame(m.frames)
	}
	return m.tickCmd()
}

var keyDirections = map[string]game.Direction{
	"up": game.Up, "w": game.Up, "k": game.Up,
	"down": game.Down, "s": game.Down, "j": game.Down,
	"left": game.Left, "a": game.Left, "h": game.Left,
	"right": game.Right, "d": game.Right, "l": game.Right,
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case TickMsg:
		if m.session == nil {
			return m, nil
		}
		if !m.paused && !m.session.IsGameOver() {
			m.step()
		}
		return m, m.tickCmd()

	case FrameMsg:
		m.frame = engine.Frame(msg)
		if m.frame.Score > m.best {
			m.best = m.frame.Score
		}
		return m, waitForFrame(m.frames)

	case StreamClosedMsg:
		m.closed = true
		m.err = msg.Err
		return m, nil
	}
	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	}
	if m.session == nil {
		return m, nil
	}

	over := m.session.IsGameOver()
	switch key {
	case "n":
		if over {
			return m, tea.Quit
		}
	case "r", "y":
		if over || key == "r" {
			m.restart()
		}
	case "p", " ":
		if !over {
			m.paused = !m.paused
		}
	default:
		if d, ok := keyDirections[key]; ok && m.human != nil && !over {
			m.human.Press(d)
		}
	}
	return m, nil
}

func (m *Model) step() {
	if err := engine.Step(m.session, m.controller); err != nil {
		m.err = err
		m.logger.Error("tick failed", "session", m.session.ID(), "error", err)
	}
	m.frame = m.session.Frame()
	if m.frame.Score > m.best {
		m.best = m.frame.Score
	}
	if m.presenter != nil {
		if err := m.presenter.Present(m.frame); err != nil {
			m.logger.Warn("present frame failed", "error", err)
		}
	}
}

type episodeEnder interface{ EndEpisode() }

func (m *Model) restart() {
	if e, ok := m.controller.(episodeEnder); ok {
		e.EndEpisode()
	}
	s, err := m.factory.NewSession()
	if err != nil {
		m.err = err
		m.logger.Error("restart failed", "error", err)
		return
	}
	if m.human != nil {
		m.human.Reset()
	}
	m.logger.Info("new game", "session", s.ID(), "previous_score", m.session.Score())
	m.session = s
	m.frame = s.Frame()
	m.paused = false
	m.err = nil
	m.games++
}

// Session is the local session being played, nil for a watcher.
func (m Model) Session() *engine.Session { return m.session }

// Frame is the last frame rendered.
func (m Model) Frame() engine.Frame { return m.frame }

func (m Model) Paused() bool { return m.paused }

func (m Model) View() string {
	out := Render(m.frame)
	if m.frames != nil {
		out += fmt.Sprintf("Watching. Best: %d\n", m.best)
		if m.closed {
			if m.err != nil {
				out += fmt.Sprintf("Stream ended: %v\n", m.err)
			} else {
				out += "Stream ended.\n"
			}
		}
		return out + help("q: quit")
	}

	out += fmt.Sprintf("Game %d  Best: %d\n", m.games, m.best)
	if m.err != nil {
		out += fmt.Sprintf("Error: %v\n", m.err)
	}
	switch {
	case m.session.IsGameOver():
		out += "Wanna play again? (y/n)\n"
	case m.paused:
		out += "Paused.\n"
	}
	if m.human != nil {
		return out + help("arrows/wasd: steer • p: pause • r: restart • q: quit")
	}
	return out + help("p: pause • r: restart • q: quit")
}
