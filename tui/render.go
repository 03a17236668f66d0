package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/brensch/gridsnake/engine"
	"github.com/brensch/gridsnake/game"
)

var (
	boardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	headStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#5FD75F")).Bold(true)
	bodyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AF00"))
	foodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	overStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// Cell glyphs, two columns wide so cells look roughly square.
const (
	glyphHead  = "██"
	glyphBody  = "▓▓"
	glyphThin  = "▒▒"
	glyphFood  = "<>"
	glyphEmpty = " ·"
)

// Render draws f as a bordered grid followed by a status line.
func Render(f engine.Frame) string {
	if f.OuterBlockSize <= 0 || f.Width < f.OuterBlockSize || f.Height < f.OuterBlockSize {
		return "waiting for game...\n"
	}
	cfg := game.Config{Width: f.Width, Height: f.Height, OuterBlockSize: f.OuterBlockSize}
	cols, rows := cfg.Columns(), cfg.Rows()

	const (
		empty = iota
		food
		body
		head
	)
	grid := make([][]uint8, rows)
	for y := range grid {
		grid[y] = make([]uint8, cols)
	}
	put := func(p game.Point, v uint8) {
		x, y := p.X/f.OuterBlockSize, p.Y/f.OuterBlockSize
		if p.X < 0 || p.Y < 0 || x >= cols || y >= rows {
			return
		}
		if grid[y][x] < v {
			grid[y][x] = v
		}
	}
	put(f.Food, food)
	for i, p := range f.Snake {
		if i == 0 {
			put(p, head)
		} else {
			put(p, body)
		}
	}

	// A smaller inner block reads as a thinner body segment.
	bodyGlyph := glyphBody
	if f.InnerBlockSize > 0 && f.InnerBlockSize*2 <= f.OuterBlockSize {
		bodyGlyph = glyphThin
	}

	var sb strings.Builder
	for y, row := range grid {
		for _, v := range row {
			switch v {
			case head:
				sb.WriteString(headStyle.Render(glyphHead))
			case body:
				sb.WriteString(bodyStyle.Render(bodyGlyph))
			case food:
				sb.WriteString(foodStyle.Render(glyphFood))
			default:
				sb.WriteString(emptyStyle.Render(glyphEmpty))
			}
		}
		if y < rows-1 {
			sb.WriteByte('\n')
		}
	}

	status := fmt.Sprintf("Score: %d  Length: %d  Heading: %s  Tick: %d",
		f.Score, len(f.Snake), f.Direction, f.Tick)

	out := boardStyle.Render(sb.String()) + "\n" + statusStyle.Render(status) + "\n"
	if f.GameOver {
		reason := f.Termination
		if reason == "" {
			reason = "over"
		}
		out += overStyle.Render(fmt.Sprintf("Game over (%s). Final score %d.", reason, f.Score)) + "\n"
	}
	return out
}

func help(s string) string {
	return helpStyle.Render(s) + "\n"
}
