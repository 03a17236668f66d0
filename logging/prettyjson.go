// Package logging provides the slog handler and logger setup shared by the
// binaries.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyJSONHandler is a slog.Handler that writes one JSON object per
// record. By default objects are indented for reading in a terminal; with
// Compact set each object is a single line.
//
// It is not optimized for throughput.
type PrettyJSONHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool
	compact   bool

	attrs  []groupedAttrs
	groups []string
}

// groupedAttrs is one WithAttrs batch and the groups open when it was added.
type groupedAttrs struct {
	groups []string
	attrs  []slog.Attr
}

// Options extends slog.HandlerOptions with the output layout.
type Options struct {
	Level     slog.Leveler
	AddSource bool
	Compact   bool
}

func NewPrettyJSONHandler(w io.Writer, opts Options) *PrettyJSONHandler {
	var level slog.Leveler = slog.LevelInfo
	if opts.Level != nil {
		level = opts.Level
	}
	return &PrettyJSONHandler{
		w:         w,
		mu:        &sync.Mutex{},
		level:     level,
		addSource: opts.AddSource,
		compact:   opts.Compact,
	}
}

func (h *PrettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	payload := make(map[string]any, 6)

	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}
	payload["time"] = when.Format(time.RFC3339Nano)
	payload["level"] = r.Level.String()
	payload["msg"] = r.Message

	if h.addSource {
		payload["source"] = sourceFromPC(r.PC)
	}

	for _, batch := range h.attrs {
		for _, a := range batch.attrs {
			addAttr(payload, batch.groups, a)
		}
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(payload, h.groups, a)
		return true
	})

	var b []byte
	var err error
	if h.compact {
		b, err = json.Marshal(payload)
	} else {
		b, err = json.MarshalIndent(payload, "", "  ")
	}
	if err != nil {
		// Never drop a record because one attribute failed to encode.
		b = []byte("{\"time\":" + strconv.Quote(payload["time"].(string)) +
			",\"level\":" + strconv.Quote(payload["level"].(string)) +
			",\"msg\":" + strconv.Quote(r.Message) +
			",\"log_error\":" + strconv.Quote(err.Error()) + "}")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	batch := groupedAttrs{
		groups: append([]string(nil), h.groups...),
		attrs:  append([]slog.Attr(nil), attrs...),
	}
	clone.attrs = append(append([]groupedAttrs(nil), h.attrs...), batch)
	return &clone
}

func (h *PrettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func addAttr(root map[string]any, groups []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}

	dst := root
	for _, g := range groups {
		m, ok := dst[g].(map[string]any)
		if !ok {
			m = map[string]any{}
			dst[g] = m
		}
		dst = m
	}
	addAttrToMap(dst, attr)
}

func addAttrToMap(dst map[string]any, attr slog.Attr) {
	v := attr.Value.Resolve()

	if v.Kind() == slog.KindGroup {
		group := v.Group()
		target := dst
		// Inline groups with an empty key, as slog.JSONHandler does.
		if attr.Key != "" {
			target = map[string]any{}
			dst[attr.Key] = target
		}
		for _, ga := range group {
			if ga.Key != "" || ga.Value.Kind() == slog.KindGroup {
				addAttrToMap(target, ga)
			}
		}
		return
	}
	if attr.Key == "" {
		return
	}
	dst[attr.Key] = valueToAny(v)
}

func valueToAny(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return x.Error()
		case fmt.Stringer:
			return x.String()
		default:
			return x
		}
	default:
		return v.String()
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	f, _ := frames.Next()
	if f.File == "" {
		return ""
	}
	return filepath.Base(f.File) + ":" + strconv.Itoa(f.Line)
}

// ParseLevel accepts debug, info, warn/warning and error, case-insensitively.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// Setup builds a logger at level. An empty path logs indented JSON to
// stderr; otherwise compact JSON is appended to the file at path, which the
// returned closer releases.
func Setup(level, path string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		h := NewPrettyJSONHandler(os.Stderr, Options{Level: lvl})
		return slog.New(h), nopCloser{}, nil
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	h := NewPrettyJSONHandler(f, Options{Level: lvl, Compact: true, AddSource: lvl <= slog.LevelDebug})
	return slog.New(h), f, nil
}
