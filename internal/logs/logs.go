// Package logs is the process-wide logger. Build progress is logged per
// stage through Stage, so interleaved output from parallel stages stays
// attributable.
package logs

import (
	"sync"

	"github.com/0xa1bed0/stagecache/internal/ui"
)

var (
	initOnce sync.Once
	logger   *ui.Logger
)

func Init() {
	initOnce.Do(func() {
		logger = ui.New(ui.Options{LogLevel: ui.LogLevelWarn})
	})
}

func L() *ui.Logger {
	Init()
	return logger
}

// SetDebugVerbosity maps the number of -v flags to a log level: -v shows
// per-stage progress and cache decisions, -vv adds caller locations.
func SetDebugVerbosity(cnt int) {
	switch {
	case cnt <= 0:
		L().SetLogLevel(ui.LogLevelWarn)
	case cnt == 1:
		L().SetLogLevel(ui.LogLevelDebug)
	default:
		L().SetLogLevel(ui.LogLevelDebugVerbose)
	}
}

// SetFullLogPath mirrors every line, whatever the level, to the run log at
// path.
func SetFullLogPath(path string) error {
	return L().SetFullLogPath(path)
}

func Banner(title string) {
	L().Banner(title)
}

func Infof(format string, args ...any) {
	L().Info(format, args...)
}

func Debugf(format string, args ...any) {
	L().Debug(format, args...)
}

func Warnf(format string, args ...any) {
	L().Warn(format, args...)
}

func Errorf(format string, args ...any) {
	L().Error(format, args...)
}

// StageLog prefixes every line with the stage it belongs to.
type StageLog struct {
	prefix string
}

// Stage returns the logger for one build stage.
func Stage(name string) StageLog {
	return StageLog{prefix: "[" + name + "] "}
}

func (s StageLog) Infof(format string, args ...any) {
	L().Info(s.prefix+format, args...)
}

func (s StageLog) Debugf(format string, args ...any) {
	L().Debug(s.prefix+format, args...)
}

func (s StageLog) Warnf(format string, args ...any) {
	L().Warn(s.prefix+format, args...)
}

func PromptConfirm(text string) (bool, error) {
	return L().Confirm(text)
}

// Close closes the run log, if any.
func Close() error {
	if logger != nil {
		return logger.Close()
	}
	return nil
}
