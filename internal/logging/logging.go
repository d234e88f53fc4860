package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"skymatch/internal/config"
	"skymatch/pkg/skymatch"
)

// New returns a slog.Logger writing to w with the provided level string
// (info, debug, warn, error). format may be "json", "text" or "traditional".
func New(w io.Writer, level string, format string) *slog.Logger {
	lvl := parseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "traditional":
		handler = NewTraditionalHandler(w, lvl)
	default:
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// Setup configures global logging on stderr, teeing to a dated file in
// LogDir when file output is enabled.
func Setup(cfg config.LoggingConfig) (*slog.Logger, error) {
	writers := []io.Writer{os.Stderr}

	if cfg.FileOutput {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		logFile := filepath.Join(cfg.LogDir, fmt.Sprintf("skymatch-%s.log", time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		writers = append(writers, file)
	}

	logger := New(io.MultiWriter(writers...), cfg.Level, cfg.Format)
	slog.SetDefault(logger)

	logger.Debug("logging initialized",
		"level", cfg.Level,
		"format", cfg.Format,
		"file_output", cfg.FileOutput,
		"backend", skymatch.Backend(),
	)
	return logger, nil
}

// TraditionalHandler implements slog.Handler with "[LEVEL] message [k=v]"
// lines on a standard library logger.
type TraditionalHandler struct {
	logger *log.Logger
	level  slog.Level
	attrs  []slog.Attr
}

// NewTraditionalHandler writes timestamped lines to w.
func NewTraditionalHandler(w io.Writer, level slog.Level) *TraditionalHandler {
	return &TraditionalHandler{logger: log.New(w, "", log.LstdFlags), level: level}
}

func (h *TraditionalHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *TraditionalHandler) Handle(ctx context.Context, r slog.Record) error {
	msg := r.Message
	attrs := make([]string, 0, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, fmt.Sprintf("%s=%v", a.Key, a.Value))
		return true
	})

	if len(attrs) > 0 {
		msg = fmt.Sprintf("%s [%s]", msg, strings.Join(attrs, " "))
	}
	h.logger.Printf("[%s] %s", strings.ToUpper(r.Level.String()), msg)
	return nil
}

func (h *TraditionalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &TraditionalHandler{logger: h.logger, level: h.level, attrs: merged}
}

// WithGroup is not supported; group names are dropped.
func (h *TraditionalHandler) WithGroup(name string) slog.Handler {
	return h
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LogIdentificationStart logs the beginning of one identification.
func LogIdentificationStart(logger *slog.Logger, id, source string, size int) {
	logger.Info("identification started",
		"id", id,
		"source", source,
		"size", humanize.Bytes(uint64(size)),
	)
}

// LogIdentificationComplete logs the outcome of one identification.
func LogIdentificationComplete(logger *slog.Logger, id string, res *skymatch.Identification) {
	attrs := []any{
		"id", id,
		"points", len(res.Extraction.Points),
		"extract_ms", res.ExtractDuration.Milliseconds(),
		"match_ms", res.MatchDuration.Milliseconds(),
	}
	if res.Result != nil {
		attrs = append(attrs,
			"state", res.Result.State.String(),
			"winner", res.Result.Winner,
			"voting_triangles", len(res.Result.VotingTriangles),
			"triangles", len(res.Result.Triangles),
		)
	}
	logger.Info("identification completed", attrs...)
}

// LogIdentificationError logs a failed identification.
func LogIdentificationError(logger *slog.Logger, id string, duration time.Duration, err error) {
	logger.Error("identification failed",
		"id", id,
		"duration_ms", duration.Milliseconds(),
		"error", err.Error(),
	)
}
