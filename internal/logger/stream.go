package logger

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// StreamLogger 负责输出一次流式补全调用的请求、分片、状态变化与错误。
type StreamLogger interface {
	Request(model string, messages int, tools int)
	StreamChunk(model string, chunk string, index int)
	StateChange(from, to string)
	StreamComplete(model string, chars int)
	Error(model string, err error)
}

// StdStreamLogger 使用 logrus 输出日志。
type StdStreamLogger struct {
	logger *logrus.Entry
}

// NewStreamLogger 构造默认的流日志记录器，entry 为空时使用全局 logger。
func NewStreamLogger(entry *LogEntry) *StdStreamLogger {
	if entry == nil {
		entry = logrus.NewEntry(root())
	}
	return &StdStreamLogger{logger: entry.WithField("component", "stream")}
}

func (l *StdStreamLogger) Request(model string, messages int, tools int) {
	l.printf(logrus.InfoLevel, "-> request model=%s messages=%d tools=%d", model, messages, tools)
}

func (l *StdStreamLogger) StreamChunk(model string, chunk string, index int) {
	l.printf(logrus.DebugLevel, "<- chunk model=%s seq=%d text=%s", model, index, Sanitize(chunk))
}

func (l *StdStreamLogger) StateChange(from, to string) {
	l.printf(logrus.DebugLevel, "state %s -> %s", from, to)
}

func (l *StdStreamLogger) StreamComplete(model string, chars int) {
	l.printf(logrus.InfoLevel, "<- stream completed model=%s chars=%d", model, chars)
}

func (l *StdStreamLogger) Error(model string, err error) {
	l.printf(logrus.ErrorLevel, "!! error model=%s err=%v", model, err)
}

// NoopStreamLogger 忽略所有日志输出。
type NoopStreamLogger struct{}

func (NoopStreamLogger) Request(model string, messages int, tools int)     {}
func (NoopStreamLogger) StreamChunk(model string, chunk string, index int) {}
func (NoopStreamLogger) StateChange(from, to string)                       {}
func (NoopStreamLogger) StreamComplete(model string, chars int)            {}
func (NoopStreamLogger) Error(model string, err error)                     {}

func (l *StdStreamLogger) printf(level logrus.Level, format string, args ...any) {
	if l == nil || l.logger == nil {
		return
	}
	if !l.logger.Logger.IsLevelEnabled(level) {
		return
	}

	msg := fmt.Sprintf(format, args...)
	entry := l.logger
	if caller := findCaller(); caller != "" {
		entry = entry.WithField("caller", caller)
	}
	entry.Log(level, msg)
}

// Sanitize 将换行转义，保证单条日志只占一行。
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	text = strings.ReplaceAll(text, "\r", `\r`)
	return text
}

func findCaller() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.File != "" && !strings.HasSuffix(frame.File, "logger/stream.go") {
			return fmt.Sprintf("%s:%d", shortenFilePath(frame.File), frame.Line)
		}
		if !more {
			break
		}
	}
	return ""
}
