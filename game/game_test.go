package game

import (
	"math/rand"
	"strings"
	"testing"
)

var testConfig = Config{
	Width:          100,
	Height:         50,
	OuterBlockSize: 5,
	InnerBlockSize: 3,
	StartLength:    2,
	TickRate:       2,
}

// dumpSnake is a test helper to visualize a snake on the block grid.
func dumpSnake(cfg Config, s *Snake, food *Point) string {
	cols, rows := cfg.Columns(), cfg.Rows()
	grid := make([][]byte, rows)
	for y := range grid {
		grid[y] = []byte(strings.Repeat(".", cols))
	}
	put := func(p Point, c byte) {
		x, y := p.X/cfg.OuterBlockSize, p.Y/cfg.OuterBlockSize
		if p.X >= 0 && p.Y >= 0 && x < cols && y < rows {
			grid[y][x] = c
		}
	}
	if food != nil {
		put(*food, '*')
	}
	for _, p := range s.Body {
		put(p, 's')
	}
	put(s.Head, 'S')

	var sb strings.Builder
	for _, row := range grid {
		sb.Write(row)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func assertCells(t *testing.T, got, want []Point) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("cells len=%d want=%d (got %v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("cells[%d]=%v want=%v (got %v)", i, got[i], want[i], got)
		}
	}
}

func TestNewSnake_CentredTrailingLeft(t *testing.T) {
	s := NewSnake(testConfig)
	t.Logf("initial:\n%s", dumpSnake(testConfig, s, nil))

	assertCells(t, s.Cells(), []Point{{50, 25}, {45, 25}, {40, 25}})
	if s.Len() != 3 {
		t.Fatalf("len=%d want=3", s.Len())
	}
	if s.BlockSize != 5 {
		t.Fatalf("block size=%d want=5", s.BlockSize)
	}
}

func TestSnakeHandler_MoveKeepsLength(t *testing.T) {
	h := NewSnakeHandler(NewSnake(testConfig))

	h.Move(Right)
	assertCells(t, h.Cells(), []Point{{55, 25}, {50, 25}, {45, 25}})

	h.Move(Up)
	assertCells(t, h.Cells(), []Point{{55, 20}, {55, 25}, {50, 25}})

	h.Move(Left)
	h.Move(Down)
	if h.Len() != 3 {
		t.Fatalf("len=%d want=3", h.Len())
	}
}

func TestSnakeHandler_ExtendRestoresDroppedTail(t *testing.T) {
	h := NewSnakeHandler(NewSnake(testConfig))
	h.Move(Right)
	h.Extend()

	assertCells(t, h.Cells(), []Point{{55, 25}, {50, 25}, {45, 25}, {40, 25}})
	if h.BitesItself() {
		t.Fatalf("growth must not place the head inside the body")
	}

	// A second Extend without an intervening Move duplicates the tail.
	h.Extend()
	if h.Len() != 5 {
		t.Fatalf("len=%d want=5", h.Len())
	}
}

func TestSnakeHandler_ExtendBeforeMove(t *testing.T) {
	h := NewSnakeHandler(NewSnake(testConfig))
	h.Extend()
	assertCells(t, h.Cells(), []Point{{50, 25}, {45, 25}, {40, 25}, {40, 25}})
}

func TestSnakeHandler_RelativeActionPath(t *testing.T) {
	// Straight, right turn, straight, left turn, straight from heading Right.
	h := NewSnakeHandler(NewSnake(testConfig))
	for _, d := range []Direction{Right, Down, Down, Right, Right} {
		h.Move(d)
	}
	t.Logf("after path:\n%s", dumpSnake(testConfig, h.Snake(), nil))
	assertCells(t, h.Cells(), []Point{{65, 35}, {60, 35}, {55, 35}})
}

func TestSnakeHandler_BitesItself(t *testing.T) {
	s := &Snake{
		Head:      Point{10, 10},
		Body:      []Point{{15, 10}, {15, 15}, {10, 15}, {5, 15}},
		BlockSize: 5,
	}
	h := NewSnakeHandler(s)
	if h.BitesItself() {
		t.Fatalf("unexpected bite before moving")
	}
	h.Move(Down)
	if !h.BitesItself() {
		t.Fatalf("expected head %v to bite body %v", h.Head(), s.Body)
	}
}

func TestSnakeHandler_Contains(t *testing.T) {
	h := NewSnakeHandler(NewSnake(testConfig))
	for _, p := range []Point{{50, 25}, {45, 25}, {40, 25}} {
		if !h.Contains(p) {
			t.Fatalf("expected snake to contain %v", p)
		}
	}
	if h.Contains(Point{35, 25}) {
		t.Fatalf("snake should not contain (35,25)")
	}
}

func TestSnakeHandler_SnakeIsCopy(t *testing.T) {
	h := NewSnakeHandler(NewSnake(testConfig))
	cp := h.Snake()
	cp.Body[0] = Point{0, 0}
	if h.Cells()[1] != (Point{45, 25}) {
		t.Fatalf("mutating the copy changed the handler's snake")
	}
}

func TestFoodHandler_AlignedAndInBounds(t *testing.T) {
	cfgs := []Config{
		testConfig,
		DefaultConfig,
		{Width: 103, Height: 52, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 2, TickRate: 1},
		{Width: 5, Height: 5, OuterBlockSize: 5, InnerBlockSize: 5, StartLength: 1, TickRate: 1},
	}
	rng := rand.New(rand.NewSource(1))
	for _, cfg := range cfgs {
		food := NewFood(cfg)
		h := NewFoodHandler(food, cfg, rng)
		for i := 0; i < 2000; i++ {
			h.MoveToRandomPosition()
			p := h.Position()
			if p.X%cfg.OuterBlockSize != 0 || p.Y%cfg.OuterBlockSize != 0 {
				t.Fatalf("%dx%d: food %v not block aligned", cfg.Width, cfg.Height, p)
			}
			if p.X < 0 || p.X > cfg.Width-cfg.OuterBlockSize || p.Y < 0 || p.Y > cfg.Height-cfg.OuterBlockSize {
				t.Fatalf("%dx%d: food %v outside board", cfg.Width, cfg.Height, p)
			}
		}
	}
}

func TestFoodHandler_ReachesEveryCell(t *testing.T) {
	cfg := Config{Width: 20, Height: 10, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 1, TickRate: 1}
	h := NewFoodHandler(NewFood(cfg), cfg, rand.New(rand.NewSource(7)))
	seen := make(map[Point]bool)
	for i := 0; i < 1000; i++ {
		h.MoveToRandomPosition()
		seen[h.Position()] = true
	}
	if len(seen) != cfg.Cells() {
		t.Fatalf("visited %d cells, want %d", len(seen), cfg.Cells())
	}
}

func TestDirection_OppositeAndDelta(t *testing.T) {
	for _, d := range Directions {
		if d.Opposite().Opposite() != d {
			t.Fatalf("%v: opposite is not an involution", d)
		}
		dx, dy := d.Delta(5)
		ox, oy := d.Opposite().Delta(5)
		if dx+ox != 0 || dy+oy != 0 {
			t.Fatalf("%v: delta (%d,%d) does not cancel opposite (%d,%d)", d, dx, dy, ox, oy)
		}
	}
	if _, dy := Up.Delta(5); dy != -5 {
		t.Fatalf("up must decrease y, got dy=%d", dy)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := testConfig.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}
	if err := DefaultConfig.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}

	bad := []Config{
		{Width: 0, Height: 50, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 2, TickRate: 2},
		{Width: 100, Height: 50, OuterBlockSize: 5, InnerBlockSize: 6, StartLength: 2, TickRate: 2},
		{Width: 100, Height: 50, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 0, TickRate: 2},
		{Width: 100, Height: 50, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 2, TickRate: 0},
		{Width: 4, Height: 50, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 2, TickRate: 2},
		{Width: 100, Height: 50, OuterBlockSize: 5, InnerBlockSize: 3, StartLength: 11, TickRate: 2},
	}
	for i, cfg := range bad {
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("case %d: expected error for %+v", i, cfg)
		}
		if !strings.Contains(err.Error(), ErrInvalidConfig.Error()) {
			t.Fatalf("case %d: error %q does not wrap ErrInvalidConfig", i, err)
		}
	}
}

func TestConfig_GridHelpers(t *testing.T) {
	if c := testConfig.Center(); c != (Point{50, 25}) {
		t.Fatalf("center=%v want=(50,25)", c)
	}
	if testConfig.Columns() != 20 || testConfig.Rows() != 10 {
		t.Fatalf("grid=%dx%d want=20x10", testConfig.Columns(), testConfig.Rows())
	}
	if testConfig.TickInterval().Milliseconds() != 500 {
		t.Fatalf("tick interval=%v want=500ms", testConfig.TickInterval())
	}
}
