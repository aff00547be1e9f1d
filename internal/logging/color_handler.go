// Package logging настраивает slog для бота.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"golang.org/x/term"
)

// ColorHandler пишет JSON-записи и подкрашивает их по уровню, если вывод
// идёт в терминал.
type ColorHandler struct {
	slog.Handler
	out       io.Writer
	isColored bool
}

func NewColorHandler(out io.Writer, opts *slog.HandlerOptions) *ColorHandler {
	isColored := false
	if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		isColored = true
	}
	return &ColorHandler{
		Handler:   slog.NewJSONHandler(out, opts),
		out:       out,
		isColored: isColored,
	}
}

func (h *ColorHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.isColored {
		if c := levelColor(r.Level); c != "" {
			fmt.Fprint(h.out, c)
			defer fmt.Fprint(h.out, "\033[0m")
		}
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs keeps the colouring for loggers derived with log.With.
func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorHandler{Handler: h.Handler.WithAttrs(attrs), out: h.out, isColored: h.isColored}
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	return &ColorHandler{Handler: h.Handler.WithGroup(name), out: h.out, isColored: h.isColored}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // красный
	case l >= slog.LevelWarn:
		return "\033[33m" // жёлтый
	case l < slog.LevelInfo:
		return "\033[34m" // синий
	}
	return ""
}

// ParseLevel понимает debug, info, warn и error. Пустая или неизвестная
// строка даёт info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// New создаёт логгер приложения с именем сервиса в каждой записи.
func New(out io.Writer, level slog.Level) *slog.Logger {
	return slog.New(NewColorHandler(out, &slog.HandlerOptions{Level: level})).With("service", "energybot")
}
