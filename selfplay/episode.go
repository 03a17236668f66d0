// Package selfplay runs agent-driven games and turns them into training
// transitions.
package selfplay

import (
	"context"
	"fmt"

	"github.com/brensch/gridsnake/agent"
	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/events"
	"github.com/brensch/gridsnake/game"
	"github.com/brensch/gridsnake/store"
)

// Episode is one finished game and its transitions.
type Episode struct {
	ID          string
	Rows        []store.TransitionRow
	Score       int
	Reward      int
	Steps       int
	Termination engine.Termination
}

// PlayOptions configure PlayEpisode. The zero value plays unthrottled.
type PlayOptions struct {
	// Source is stored on every row, e.g. the agent kind.
	Source    string
	TickRate  int
	Presenter engine.Presenter
}

type explorer interface{ Explored() bool }

// PlayEpisode plays one game from f with c choosing every action and
// returns its transitions. Each row's reward is what that tick alone
// earned. A cancelled ctx returns the partial episode and ctx.Err().
func PlayEpisode(ctx context.Context, f *engine.Factory, c agent.Chooser, opts PlayOptions) (Episode, error) {
	s, err := f.NewSession()
	if err != nil {
		return Episode{}, err
	}
	pay := &events.Remuneration{}
	s.Publisher().AddSubscriber(events.NewRewardSubscriber(pay))

	cfg := s.Config()
	ep := Episode{ID: s.ID()}

	var (
		state    agent.Features
		action   agent.Action
		explored bool
		reward   int
	)
	ctrl := engine.ControllerFunc(func(v engine.View) (game.Direction, bool) {
		action = c.Choose(v, state)
		explored = false
		if e, ok := c.(explorer); ok {
			explored = e.Explored()
		}
		return action.Apply(v.Direction()), true
	})

	err = engine.Run(ctx, s, ctrl, engine.RunOptions{
		TickRate:  opts.TickRate,
		Presenter: opts.Presenter,
		BeforeTick: func(s *engine.Session) {
			state = agent.Extract(s)
			reward = pay.Reward
		},
		AfterTick: func(s *engine.Session) {
			head := s.SnakeCells()[0]
			food := s.FoodPosition()
			ep.Rows = append(ep.Rows, store.TransitionRow{
				EpisodeID: ep.ID,
				Step:      int32(len(ep.Rows)),
				Width:     int32(cfg.Width),
				Height:    int32(cfg.Height),
				State:     state.Ints(),
				Action:    int32(action),
				Explored:  explored,
				Reward:    int32(pay.Reward - reward),
				NextState: agent.Extract(s).Ints(),
				Done:      s.IsGameOver(),
				Score:     int32(s.Score()),
				Length:    int32(s.SnakeLen()),
				HeadX:     int32(head.X),
				HeadY:     int32(head.Y),
				FoodX:     int32(food.X),
				FoodY:     int32(food.Y),
				Source:    opts.Source,
			})
		},
	})

	ep.Score = s.Score()
	ep.Reward = pay.Reward
	ep.Steps = s.Iterations()
	ep.Termination = s.Termination()
	if err != nil {
		return ep, fmt.Errorf("episode %s: %w", ep.ID, err)
	}
	return ep, nil
}
