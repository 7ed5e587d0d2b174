package tools

import (
	"encoding/json"
	"io"
	"strings"
	"sync"

	"bankchat/internal/logger"
)

// DefaultCommandLogPath 命令分发日志的默认路径。
const DefaultCommandLogPath = "logs/commands.log"

var (
	commandLogMu     sync.Mutex
	commandLog       *logger.LogEntry
	commandLogCloser io.Closer
	commandLogPath   string
)

// SetupCommandLog 打开命令分发专用日志文件，返回 closer 及实际路径。
// 未调用时命令记录写入各 Dispatcher 自己的 logger。多次调用只有首次生效。
func SetupCommandLog(logPath string) (io.Closer, string, error) {
	commandLogMu.Lock()
	defer commandLogMu.Unlock()

	if commandLog != nil {
		return commandLogCloser, commandLogPath, nil
	}
	if logPath == "" {
		logPath = DefaultCommandLogPath
	}
	entry, closer, err := logger.OpenComponent("commands", logPath)
	if err != nil {
		return nil, logPath, err
	}
	commandLog, commandLogCloser, commandLogPath = entry, closer, logPath
	return closer, logPath, nil
}

// CloseCommandLog 关闭命令日志文件，之后的记录回到 Dispatcher 的 logger。
func CloseCommandLog() {
	commandLogMu.Lock()
	defer commandLogMu.Unlock()
	if commandLogCloser != nil {
		_ = commandLogCloser.Close()
	}
	commandLog, commandLogCloser, commandLogPath = nil, nil, ""
}

func commandEntry(fallback *logger.LogEntry, cmd Command) *logger.LogEntry {
	commandLogMu.Lock()
	entry := commandLog
	commandLogMu.Unlock()
	if entry == nil {
		entry = fallback
	}
	return logger.Correlate(entry, cmd.ID).WithField("name", cmd.Name)
}

func logCommandReceived(fallback *logger.LogEntry, cmd Command, recognized bool) {
	status := "received"
	if !recognized {
		status = "unknown"
	}
	commandEntry(fallback, cmd).WithFields(logger.Fields{
		"source": cmd.Source,
		"status": status,
		"args":   argsForLog(cmd.Arguments),
	}).Info("command")
}

func logCommandResult(fallback *logger.LogEntry, cmd Command, err error) {
	fields := logger.Fields{"status": "ok"}
	if err != nil {
		fields["status"] = "error"
		fields["error"] = logger.Sanitize(err.Error())
	}
	commandEntry(fallback, cmd).WithFields(fields).Info("command_result")
}

func argsForLog(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "(unencodable)"
	}
	return clip(logger.Sanitize(strings.TrimSpace(string(data))), 500)
}
