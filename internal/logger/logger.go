package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings, following lumberjack semantics.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Config describes the application log: level, format and an optional
// rotating file that receives a copy of every record.
type Config struct {
	Level  string     `mapstructure:"level"`  // debug, info, warn, error
	Format string     `mapstructure:"format"` // text or json
	Color  bool       `mapstructure:"color"`  // colorize levels in text output
	File   FileConfig `mapstructure:"file"`
}

// FileConfig is a rotating log file.
type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// OutputConfig says where a child's stdout and stderr end up.
// If StdoutPath/StderrPath are empty and Dir is set, files are
// Dir/<name>.stdout.log and Dir/<name>.stderr.log.
type OutputConfig struct {
	Dir        string `mapstructure:"dir"`
	StdoutPath string `mapstructure:"stdout"`
	StderrPath string `mapstructure:"stderr"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// New builds the application logger writing to w and, when configured, to a
// rotating file. The returned closer releases the file.
func New(cfg Config, w io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	var closer io.Closer = nopCloser{}
	if cfg.File.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o750); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		fw := cfg.File.writer(cfg.File.Path)
		w = io.MultiWriter(w, fw)
		closer = fw
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		h = slog.NewJSONHandler(w, opts)
	case "", "text":
		if cfg.Color && cfg.File.Path == "" {
			opts.ReplaceAttr = colorLevel
		}
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return slog.New(h), closer, nil
}

// ParseLevel maps a config string onto a slog level; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// colorLevel wraps the level attribute in ANSI colors.
func colorLevel(groups []string, a slog.Attr) slog.Attr {
	if len(groups) > 0 || a.Key != slog.LevelKey {
		return a
	}
	lvl, ok := a.Value.Any().(slog.Level)
	if !ok {
		return a
	}
	var code string
	switch {
	case lvl >= slog.LevelError:
		code = "\033[31m" // red
	case lvl >= slog.LevelWarn:
		code = "\033[33m" // yellow
	case lvl >= slog.LevelInfo:
		code = "\033[32m" // green
	default:
		code = "\033[36m" // cyan
	}
	return slog.String(a.Key, code+lvl.String()+"\033[0m")
}

// Writers returns rotating writers for a child's stdout and stderr.
// Either may be nil when nothing is configured for that stream.
func (c OutputConfig) Writers(name string) (io.WriteCloser, io.WriteCloser, error) {
	stdout := c.StdoutPath
	stderr := c.StderrPath
	if stdout == "" && c.Dir != "" {
		stdout = filepath.Join(c.Dir, fmt.Sprintf("%s.stdout.log", name))
	}
	if stderr == "" && c.Dir != "" {
		stderr = filepath.Join(c.Dir, fmt.Sprintf("%s.stderr.log", name))
	}
	if c.Dir != "" {
		if err := os.MkdirAll(c.Dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	fc := FileConfig{MaxSizeMB: c.MaxSizeMB, MaxBackups: c.MaxBackups, MaxAgeDays: c.MaxAgeDays, Compress: c.Compress}
	var outW, errW io.WriteCloser
	if stdout != "" {
		outW = fc.writer(stdout)
	}
	if stderr != "" {
		errW = fc.writer(stderr)
	}
	return outW, errW, nil
}

func (f FileConfig) writer(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(f.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(f.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(f.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   f.Compress,
	}
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
