package ui

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelDebug
	LogLevelDebugVerbose
)

const timestampLayout = "2006-01-02T15:04:05.000"

// Options configures the Logger.
type Options struct {
	// Out receives user-facing logs. Defaults to os.Stderr so that command
	// output on stdout stays machine readable.
	Out io.Writer

	// FullLogWriter, if non-nil, receives every log line in plain text
	// regardless of LogLevel.
	FullLogWriter io.Writer

	// error < info < warn < debug < debugVerbose
	LogLevel LogLevel
}

// Logger prints levelled lines to Out and mirrors them to an optional full
// log.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	full     io.Writer
	style    styles
	logLevel LogLevel

	// lines logged before the full log writer was set
	fullLogBuffer []string
}

type styles struct {
	spacer   lipgloss.Style
	logInfo  lipgloss.Style
	logWarn  lipgloss.Style
	logError lipgloss.Style
	banner   lipgloss.Style
}

func plainStyles() styles {
	plain := lipgloss.NewStyle()
	return styles{
		spacer:   plain,
		logInfo:  plain,
		logWarn:  plain,
		logError: plain,
		banner:   plain.Border(lipgloss.NormalBorder()).Padding(0, 1).Margin(1, 0),
	}
}

func defaultStyles() styles {
	return styles{
		spacer:   lipgloss.NewStyle(),
		logInfo:  lipgloss.NewStyle(),
		logWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		logError: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		banner:   lipgloss.NewStyle().Bold(true).Border(lipgloss.NormalBorder()).Padding(0, 1).Margin(1, 0),
	}
}

func New(opts Options) *Logger {
	if opts.Out == nil {
		opts.Out = os.Stderr
	}
	style := plainStyles()
	if IsTerminal(opts.Out) {
		style = defaultStyles()
	}
	return &Logger{
		out:      opts.Out,
		full:     opts.FullLogWriter,
		style:    style,
		logLevel: opts.LogLevel,
	}
}

func (l *Logger) SetFullLogWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.full != nil {
		fmt.Fprintln(l.out, l.style.logError.Render("full log writer already set, ignoring"))
		return
	}

	l.full = w
	for _, line := range l.fullLogBuffer {
		io.WriteString(l.full, line)
	}
	l.fullLogBuffer = nil
}

// SetFullLogPath appends the full log to the file at path.
func (l *Logger) SetFullLogPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	l.SetFullLogWriter(&timestampWriter{w: f})
	return nil
}

// writeFullLogLocked must be called with l.mu held.
func (l *Logger) writeFullLogLocked(line string) {
	if l.full != nil {
		io.WriteString(l.full, line)
		return
	}
	l.fullLogBuffer = append(l.fullLogBuffer, line)
}

// Close closes the full log if it's an io.Closer.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.full.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (l *Logger) Spacer() {
	l.printLog(false, "", l.style.spacer, "")
}

func (l *Logger) Error(format string, args ...any) {
	l.printLog(false, "ERR ", l.style.logError, format, args...)
}

func (l *Logger) Info(format string, args ...any) {
	l.printLog(l.level() < LogLevelInfo, "INFO", l.style.logInfo, format, args...)
}

func (l *Logger) Warn(format string, args ...any) {
	l.printLog(l.level() < LogLevelWarn, "WARN", l.style.logWarn, format, args...)
}

// InfoSilent only writes to the full log.
func (l *Logger) InfoSilent(format string, args ...any) {
	l.printLog(true, "INFO", l.style.logInfo, format, args...)
}

func (l *Logger) Debug(format string, args ...any) {
	if l.level() >= LogLevelDebug {
		l.printLog(false, "DEBG", l.style.logInfo, format, args...)
	}
}

func (l *Logger) SetLogLevel(logLevel LogLevel) {
	l.mu.Lock()
	l.logLevel = logLevel
	l.mu.Unlock()
}

func (l *Logger) level() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.logLevel
}

func (l *Logger) formatCaller(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	if l.level() < LogLevelDebugVerbose {
		return msg
	}
	pc, file, line, ok := runtime.Caller(4)
	if !ok {
		file = "?"
		line = 0
	}

	var fnName string
	if fn := runtime.FuncForPC(pc); fn != nil {
		fnName = strings.TrimPrefix(fn.Name(), "github.com/0xa1bed0/stagecache/")
	}

	return fmt.Sprintf("[%s:%d %s] %s", filepath.Base(file), line, fnName, msg)
}

func (l *Logger) printLog(silent bool, level string, style lipgloss.Style, format string, args ...any) {
	msg := l.formatCaller(format, args...)
	timestamp := time.Now().Format(timestampLayout)

	// the full log gets its timestamp from timestampWriter
	logLine := msg + "\n"
	stdoutLine := fmt.Sprintf("[%s] %s", timestamp, msg)
	if level != "" {
		logLine = fmt.Sprintf("[%s] %s\n", level, msg)
		stdoutLine = fmt.Sprintf("[%s] [%s] %s", timestamp, level, msg)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeFullLogLocked(logLine)
	if !silent {
		fmt.Fprintln(l.out, style.Render(stdoutLine))
	}
}

// Banner prints a boxed title.
func (l *Logger) Banner(title string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.writeFullLogLocked(fmt.Sprintf("\n===== %s =====\n\n", title))
	if s, ok := l.full.(interface{ Sync() error }); ok {
		s.Sync()
	}
	fmt.Fprintln(l.out, l.style.banner.Render(title))
}

// timestampWriter prepends a timestamp to each write.
type timestampWriter struct {
	w io.Writer
}

func (tw *timestampWriter) Write(p []byte) (int, error) {
	prefixed := "[" + time.Now().Format(timestampLayout) + "] " + string(p)
	if _, err := tw.w.Write([]byte(prefixed)); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (tw *timestampWriter) Sync() error {
	if s, ok := tw.w.(interface{ Sync() error }); ok {
		return s.Sync()
	}
	return nil
}

func (tw *timestampWriter) Close() error {
	if c, ok := tw.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
