// Package logging implements the graph Logger dependency on slog, optionally
// publishing every entry to NATS for live streaming to editors.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/c360/visualscript/graph"
)

// Level represents the severity level of a log entry
type Level string

const (
	// LevelVerbose represents verbose, debug-level logs
	LevelVerbose Level = "VERBOSE"
	// LevelInfo represents informational logs
	LevelInfo Level = "INFO"
	// LevelWarn represents warning logs
	LevelWarn Level = "WARN"
	// LevelError represents error logs
	LevelError Level = "ERROR"
)

// Entry is a structured log record emitted by graph nodes and the engine
type Entry struct {
	Timestamp string `json:"timestamp"` // RFC3339 format
	Level     Level  `json:"level"`
	Graph     string `json:"graph"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

// Publisher sends raw messages to a subject
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// Logger writes graph log entries to slog and, when a publisher is set, to
// subject logs.<graph>.<source>
type Logger struct {
	graphName string
	logger    *slog.Logger
	publisher Publisher
	limiter   *rate.Limiter

	pending atomic.Int64 // dropped since the last reported drop
	dropped atomic.Int64

	// OnLog fires for every entry after it was written
	OnLog graph.Emitter[Entry]
}

// Option configures a Logger
type Option func(*Logger)

// WithPublisher publishes entries through p. A nil *nats.Conn disables publishing.
func WithPublisher(p Publisher) Option {
	return func(l *Logger) {
		if nc, ok := p.(*nats.Conn); ok && nc == nil {
			return
		}
		l.publisher = p
	}
}

// WithPublishRate caps publication at perSecond entries with bursts of burst.
// Entries over the cap are still written to slog but not published.
func WithPublishRate(perSecond float64, burst int) Option {
	return func(l *Logger) {
		if perSecond > 0 {
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithGraphName sets the graph name used in entries and subjects
func WithGraphName(name string) Option {
	return func(l *Logger) { l.graphName = name }
}

// NewLogger creates a logger writing to logger, or slog.Default when nil
func NewLogger(logger *slog.Logger, opts ...Option) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Logger{graphName: "default", logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Verbose logs a debug-level message
func (l *Logger) Verbose(source, text string) { l.log(LevelVerbose, slog.LevelDebug, source, text) }

// Info logs an informational message
func (l *Logger) Info(source, text string) { l.log(LevelInfo, slog.LevelInfo, source, text) }

// Warn logs a warning
func (l *Logger) Warn(source, text string) { l.log(LevelWarn, slog.LevelWarn, source, text) }

// Error logs an error
func (l *Logger) Error(source, text string) { l.log(LevelError, slog.LevelError, source, text) }

func (l *Logger) log(level Level, slogLevel slog.Level, source, text string) {
	l.logger.Log(context.Background(), slogLevel, text, "graph", l.graphName, "source", source)

	entry := Entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Graph:     l.graphName,
		Source:    source,
		Message:   text,
	}
	l.publish(entry)
	l.OnLog.Emit(entry)
}

// Dropped returns the number of entries not published because of the rate cap
func (l *Logger) Dropped() int64 {
	return l.dropped.Load()
}

func (l *Logger) publish(entry Entry) {
	if l.publisher == nil {
		return
	}
	if l.limiter != nil && !l.limiter.Allow() {
		l.pending.Add(1)
		l.dropped.Add(1)
		return
	}
	if n := l.pending.Swap(0); n > 0 {
		l.logger.Warn("Log publication rate limited", "graph", l.graphName, "dropped", n)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("Failed to marshal log entry", "error", err)
		return
	}
	subject := Subject(entry.Graph, entry.Source)
	if err := l.publisher.Publish(subject, data); err != nil {
		// Publishing is best effort; the entry was already written locally
		l.logger.Error("Failed to publish log to NATS", "error", err, "subject", subject)
	}
}

// Subject returns the NATS subject entries of graphName/source are published to.
// Characters NATS treats as separators or wildcards are replaced.
func Subject(graphName, source string) string {
	return fmt.Sprintf("logs.%s.%s", token(graphName), token(source))
}

var tokenReplacer = strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_", "\t", "_")

func token(s string) string {
	if s == "" {
		return "_"
	}
	return tokenReplacer.Replace(s)
}
