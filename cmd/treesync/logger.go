// ABOUTME: Logger setup for the CLI: JSON or colorized text
// ABOUTME: Text lines lead with the emitting component, then the message and attrs

package main

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/treesync/internal/config"
)

func setupLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{out: w, mu: &sync.Mutex{}, level: level})
}

type levelTag struct {
	label string
	color *color.Color
}

var levelTags = map[slog.Level]levelTag{
	slog.LevelDebug: {"DBG", color.New(color.FgMagenta)},
	slog.LevelInfo:  {"INF", color.New(color.FgCyan)},
	slog.LevelWarn:  {"WRN", color.New(color.FgYellow)},
	slog.LevelError: {"ERR", color.New(color.FgRed, color.Bold)},
}

var (
	dim          = color.New(color.FgHiBlack)
	componentTag = color.New(color.FgBlue)
)

// colorHandler writes one colorized line per record. Handlers derived with
// WithAttrs or WithGroup share the writer and its lock.
type colorHandler struct {
	out   io.Writer
	mu    *sync.Mutex
	level slog.Level

	component string
	attrs     []slog.Attr // already qualified with their group prefix
	prefix    string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	dim.Fprint(&buf, r.Time.Format("15:04:05"), " ")
	if tag, ok := levelTags[r.Level]; ok {
		tag.color.Fprint(&buf, tag.label+" ")
	} else {
		buf.WriteString("??? ")
	}
	if h.component != "" {
		componentTag.Fprintf(&buf, "[%s] ", h.component)
	}
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

// writeAttr flattens group values into dotted keys.
func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, ga := range v.Group() {
			writeAttr(buf, prefix+a.Key+".", ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dim.Fprint(buf, " ", prefix, a.Key, "=")
	buf.WriteString(v.String())
}

func (h *colorHandler) clone() *colorHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	return &c
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		if a.Key == "component" && h.prefix == "" {
			c.component = a.Value.String()
			continue
		}
		a.Key = h.prefix + a.Key
		c.attrs = append(c.attrs, a)
	}
	return c
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.prefix = h.prefix + name + "."
	return c
}
