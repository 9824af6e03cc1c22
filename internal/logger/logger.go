package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Category  string `json:"category"`
	Message   string `json:"message"`
	File      string `json:"file,omitempty"`
	Line      int    `json:"line,omitempty"`
}

// Options controls where the logger writes. An empty Dir disables the JSON file sink.
type Options struct {
	Dir        string
	FilePrefix string
	MinLevel   LogLevel
	Color      bool
}

func DefaultOptions() Options {
	return Options{
		Dir:        "logs",
		FilePrefix: "booking-service",
		MinLevel:   DEBUG,
		Color:      true,
	}
}

type Logger struct {
	mu           sync.Mutex
	out          io.Writer
	logFile      *os.File
	minLevel     LogLevel
	colorEnabled bool
}

func NewLogger() *Logger {
	return NewLoggerWithOptions(DefaultOptions())
}

func NewLoggerWithOptions(opts Options) *Logger {
	l := &Logger{
		out:          os.Stdout,
		minLevel:     opts.MinLevel,
		colorEnabled: opts.Color,
	}

	if opts.Dir == "" {
		return l
	}

	// one JSON file per day
	name := filepath.Join(opts.Dir, fmt.Sprintf("%s-%s.log", opts.FilePrefix, time.Now().Format("2006-01-02")))
	file, err := openLogFile(name)
	if err != nil {
		l.Warn("LOGGER", fmt.Sprintf("File sink disabled: %v", err))
		return l
	}
	l.logFile = file
	l.Info("LOGGER", fmt.Sprintf("Writing JSON log to %s", name))

	return l
}

func openLogFile(name string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// NewLoggerWithWriter logs uncoloured terminal lines to w and skips the file sink.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{
		out:          w,
		minLevel:     DEBUG,
		colorEnabled: false,
	}
}

// palette holds the terminal colours for one level.
type palette struct {
	level    *color.Color
	category *color.Color
}

var (
	levelNames = map[LogLevel]string{
		DEBUG: "DEBUG",
		INFO:  "INFO",
		WARN:  "WARN",
		ERROR: "ERROR",
		FATAL: "FATAL",
	}
	palettes = map[LogLevel]palette{
		DEBUG: {color.New(color.FgCyan), color.New(color.FgCyan, color.Bold)},
		INFO:  {color.New(color.FgGreen), color.New(color.FgGreen, color.Bold)},
		WARN:  {color.New(color.FgYellow), color.New(color.FgYellow, color.Bold)},
		ERROR: {color.New(color.FgRed), color.New(color.FgRed, color.Bold)},
		FATAL: {color.New(color.FgRed, color.Bold), color.New(color.FgRed, color.Bold)},
	}
	timeColor   = color.New(color.FgBlue)
	callerColor = color.New(color.FgMagenta)
)

func (level LogLevel) String() string {
	if name, ok := levelNames[level]; ok {
		return name
	}
	return "INFO"
}

// log is called through exactly one public method, hence the caller depth of 2.
func (l *Logger) log(level LogLevel, category, message string) {
	if level < l.minLevel {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		Level:     level.String(),
		Category:  strings.ToUpper(category),
		Message:   message,
	}
	if _, file, line, ok := runtime.Caller(2); ok {
		entry.File, entry.Line = filepath.Base(file), line
	}

	terminal := l.terminalLine(level, entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprint(l.out, terminal)
	if l.logFile != nil {
		if data, err := json.Marshal(entry); err == nil {
			l.logFile.Write(append(data, '\n'))
		}
	}
}

func (l *Logger) terminalLine(level LogLevel, entry LogEntry) string {
	clock := entry.Timestamp[11:19]
	caller := ""
	if entry.File != "" && entry.Line > 0 {
		caller = fmt.Sprintf(" (%s:%d)", entry.File, entry.Line)
	}

	if !l.colorEnabled {
		return fmt.Sprintf("%s %-5s [%-10s] %s%s\n", clock, entry.Level, entry.Category, entry.Message, caller)
	}

	p, ok := palettes[level]
	if !ok {
		p = palettes[INFO]
	}
	if caller != "" {
		caller = callerColor.Sprint(caller)
	}
	return fmt.Sprintf("%s %s %s %s%s\n",
		timeColor.Sprint(clock),
		p.level.Sprintf("%-5s", entry.Level),
		p.category.Sprintf("[%-10s]", entry.Category),
		entry.Message,
		caller,
	)
}

// ParseLevel maps LOG_LEVEL values; unknown strings fall back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// Public logging methods
func (l *Logger) Debug(category, message string) {
	l.log(DEBUG, category, message)
}

func (l *Logger) Info(category, message string) {
	l.log(INFO, category, message)
}

func (l *Logger) Warn(category, message string) {
	l.log(WARN, category, message)
}

func (l *Logger) Error(category, message string) {
	l.log(ERROR, category, message)
}

func (l *Logger) Fatal(category, message string) {
	l.log(FATAL, category, message)
	os.Exit(1)
}

// Specialized logging methods for different components
func (l *Logger) LogBooking(action, eventID, userID, message string) {
	l.Info("BOOKING", fmt.Sprintf("[%s] event=%s user=%s - %s", action, eventID, userID, message))
}

func (l *Logger) LogCounter(action, eventID, message string) {
	l.Debug("COUNTER", fmt.Sprintf("[%s] event=%s - %s", action, eventID, message))
}

func (l *Logger) LogAPI(method, path, status, duration string) {
	l.Info("API", fmt.Sprintf("%s %s - %s (%s)", method, path, status, duration))
}

func (l *Logger) LogKafka(action, topic, message string) {
	l.Info("KAFKA", fmt.Sprintf("[%s] %s - %s", action, topic, message))
}

func (l *Logger) LogDatabase(operation, table, message string) {
	l.Info("DATABASE", fmt.Sprintf("[%s] %s - %s", operation, table, message))
}

func (l *Logger) LogSecurity(event, message string) {
	l.Warn("SECURITY", fmt.Sprintf("[%s] %s", event, message))
}

func (l *Logger) Close() {
	if l.logFile != nil {
		l.Info("LOGGER", "Closing log file")
		l.logFile.Close()
	}
}
