package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Category int

const (
	Application Category = iota
	Discord
	Backend
	Bus
	Error
)

func (c Category) String() string {
	switch c {
	case Application:
		return "application"
	case Discord:
		return "discord_events"
	case Backend:
		return "backend"
	case Bus:
		return "bus"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

var categories = []Category{Application, Discord, Backend, Bus, Error}

// Options controls where log files are written and how much is logged.
// An empty Dir disables file output.
type Options struct {
	Dir        string
	Level      slog.Level
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Console    io.Writer
}

// Logger holds one slog.Logger per category plus the rotating files behind them.
type Logger struct {
	loggers map[Category]*slog.Logger
	files   []*lumberjack.Logger
}

var (
	mu           sync.RWMutex
	GlobalLogger *Logger
)

// SetupLogger installs the category loggers. Calling it again replaces the
// previous set and closes its files.
func SetupLogger(opts Options) error {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.MaxSizeMB <= 0 {
		opts.MaxSizeMB = 25
	}
	if opts.MaxBackups <= 0 {
		opts.MaxBackups = 5
	}
	if opts.MaxAgeDays <= 0 {
		opts.MaxAgeDays = 14
	}

	l := &Logger{loggers: make(map[Category]*slog.Logger, len(categories))}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return fmt.Errorf("create log dir: %w", err)
		}
	}

	for _, c := range categories {
		var w io.Writer = opts.Console
		if opts.Dir != "" {
			f := &lumberjack.Logger{
				Filename:   filepath.Join(opts.Dir, c.String()+".log"),
				MaxSize:    opts.MaxSizeMB,
				MaxBackups: opts.MaxBackups,
				MaxAge:     opts.MaxAgeDays,
				Compress:   true,
			}
			l.files = append(l.files, f)
			w = io.MultiWriter(opts.Console, f)
		}
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: opts.Level})
		l.loggers[c] = slog.New(h).With("category", c.String())
	}

	mu.Lock()
	prev := GlobalLogger
	GlobalLogger = l
	mu.Unlock()

	slog.SetDefault(l.loggers[Application])
	if prev != nil {
		prev.Sync()
	}
	return nil
}

// Sync closes the rotating files. Safe on a nil receiver.
func (l *Logger) Sync() {
	if l == nil {
		return
	}
	for _, f := range l.files {
		_ = f.Close()
	}
}

// ParseLevel maps debug/info/warn/error to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func get(c Category) *slog.Logger {
	mu.RLock()
	l := GlobalLogger
	mu.RUnlock()
	if l == nil {
		return slog.Default()
	}
	if lg, ok := l.loggers[c]; ok {
		return lg
	}
	return slog.Default()
}

func ApplicationLogger() *slog.Logger { return get(Application) }
func DiscordLogger() *slog.Logger     { return get(Discord) }
func BackendLogger() *slog.Logger     { return get(Backend) }
func BusLogger() *slog.Logger         { return get(Bus) }
func ErrorLoggerRaw() *slog.Logger    { return get(Error) }
