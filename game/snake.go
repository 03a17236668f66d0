package game

// Snake is the snake's geometry. Head is the leading cell; Body holds the
// trailing cells, nearest-to-head first.
type Snake struct {
	Head      Point
	Body      []Point
	BlockSize int
}

// Cells returns head followed by body as a fresh slice.
func (s *Snake) Cells() []Point {
	out := make([]Point, 0, len(s.Body)+1)
	out = append(out, s.Head)
	return append(out, s.Body...)
}

// Len is the number of cells including the head.
func (s *Snake) Len() int {
	return len(s.Body) + 1
}

// Clone performs a deep copy of the snake.
func (s *Snake) Clone() *Snake {
	if s == nil {
		return nil
	}
	out := &Snake{Head: s.Head, BlockSize: s.BlockSize}
	if len(s.Body) > 0 {
		out.Body = make([]Point, len(s.Body))
		copy(out.Body, s.Body)
	}
	return out
}

// NewSnake places the head at the board centre with StartLength body cells
// trailing to the left.
func NewSnake(cfg Config) *Snake {
	head := cfg.Center()
	body := make([]Point, cfg.StartLength)
	for i := range body {
		body[i] = Point{X: head.X - (i+1)*cfg.OuterBlockSize, Y: head.Y}
	}
	return &Snake{Head: head, Body: body, BlockSize: cfg.OuterBlockSize}
}

// SnakeHandler owns and mutates a single Snake. Handlers are never shared
// between sessions.
type SnakeHandler struct {
	snake *Snake

	// dropped is the tail cell removed by the most recent Move, kept so
	// that Extend can undo the truncation.
	dropped    Point
	hasDropped bool
}

func NewSnakeHandler(snake *Snake) *SnakeHandler {
	return &SnakeHandler{snake: snake}
}

func (h *SnakeHandler) Head() Point { return h.snake.Head }
func (h *SnakeHandler) Len() int    { return h.snake.Len() }

// Cells returns the snake cells, head first.
func (h *SnakeHandler) Cells() []Point { return h.snake.Cells() }

// Snake returns a copy of the owned snake.
func (h *SnakeHandler) Snake() *Snake { return h.snake.Clone() }

// NextHead is the head position one step along d, without moving.
func (h *SnakeHandler) NextHead(d Direction) Point {
	dx, dy := d.Delta(h.snake.BlockSize)
	return h.snake.Head.Add(dx, dy)
}

// Move translates the snake one block along d: the old head is pushed onto
// the front of the body and the last body cell is dropped. Length is
// unchanged.
func (h *SnakeHandler) Move(d Direction) {
	s := h.snake
	newHead := h.NextHead(d)

	s.Body = append(s.Body, Point{})
	copy(s.Body[1:], s.Body[:len(s.Body)-1])
	s.Body[0] = s.Head
	s.Head = newHead

	last := len(s.Body) - 1
	h.dropped = s.Body[last]
	h.hasDropped = true
	s.Body = s.Body[:last]
}

// Extend grows the snake by one cell by restoring the tail dropped by the
// last Move, which is the same as that move not truncating. Before any move
// the current tail is duplicated.
func (h *SnakeHandler) Extend() {
	s := h.snake
	switch {
	case h.hasDropped:
		s.Body = append(s.Body, h.dropped)
		h.hasDropped = false
	case len(s.Body) > 0:
		s.Body = append(s.Body, s.Body[len(s.Body)-1])
	default:
		s.Body = append(s.Body, s.Head)
	}
}

// BitesItself reports whether the head occupies a body cell.
func (h *SnakeHandler) BitesItself() bool {
	for _, p := range h.snake.Body {
		if p == h.snake.Head {
			return true
		}
	}
	return false
}

// Contains reports whether p is any snake cell, head included.
func (h *SnakeHandler) Contains(p Point) bool {
	if h.snake.Head == p {
		return true
	}
	for _, b := range h.snake.Body {
		if b == p {
			return true
		}
	}
	return false
}
