package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// LogEntry/Fields 暴露底层类型，避免调用方直接依赖 logrus 包。
type LogEntry = logrus.Entry
type Fields = logrus.Fields

// DefaultLogPath 默认日志文件路径。
const DefaultLogPath = "logs/bankchat.log"

const (
	// FieldComponent 标识输出日志的组件，格式化为 [component]。
	FieldComponent = "component"
	// FieldCorrelation 是命令 ID 或流会话 ID，格式化为 <id> 以便跨组件检索同一次调用。
	FieldCorrelation = "cid"

	correlationLen = 8
)

// Init 配置全局 logger 的格式与 caller 输出，并把输出重定向到 logPath（空则用默认路径）。
// 文件打开失败时仍会完成格式配置，输出保持原样。
func Init(logPath string) (io.Closer, error) {
	root().SetReportCaller(true)
	root().SetFormatter(PlainFormatter{})
	f, err := openLogFile(logPath)
	if err != nil {
		return nil, err
	}
	root().SetOutput(f)
	return f, nil
}

// SetLevel 按名称设置全局日志级别，无法识别的名称返回错误且保持原级别。
func SetLevel(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	lvl, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", name, err)
	}
	root().SetLevel(lvl)
	return nil
}

// OpenComponent 创建写入独立文件的组件入口，级别与全局 logger 保持一致。
func OpenComponent(component, logPath string) (*LogEntry, io.Closer, error) {
	f, err := openLogFile(logPath)
	if err != nil {
		return nil, nil, err
	}
	l := logrus.New()
	l.SetReportCaller(true)
	l.SetFormatter(PlainFormatter{})
	l.SetOutput(f)
	l.SetLevel(root().GetLevel())
	return withComponent(logrus.NewEntry(l), component), f, nil
}

// Named 返回全局 logger 上带 component 字段的入口。
func Named(component string) *LogEntry {
	return withComponent(logrus.NewEntry(root()), component)
}

// Correlate 为入口附加关联 ID（截取前 8 位）；id 为空时原样返回。
func Correlate(entry *LogEntry, id string) *LogEntry {
	id = strings.ReplaceAll(strings.TrimSpace(id), "-", "")
	if entry == nil || id == "" {
		return entry
	}
	if len(id) > correlationLen {
		id = id[:correlationLen]
	}
	return entry.WithField(FieldCorrelation, id)
}

// Discard 返回丢弃所有输出的入口。
func Discard() *LogEntry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func withComponent(entry *LogEntry, component string) *LogEntry {
	if component == "" {
		return entry
	}
	return entry.WithField(FieldComponent, component)
}

func root() *logrus.Logger { return logrus.StandardLogger() }

// PlainFormatter 输出单行日志：caller [timestamp] [LEVEL] [component] <cid> message key=value...
type PlainFormatter struct{}

func (PlainFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	if entry == nil {
		return []byte{}, nil
	}
	var b strings.Builder
	if caller := formatCaller(entry); caller != "" {
		b.WriteString(caller)
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "[%s] [%s]", entry.Time.UTC().Format(time.RFC3339Nano), strings.ToUpper(entry.Level.String()))
	if component, _ := entry.Data[FieldComponent].(string); component != "" {
		fmt.Fprintf(&b, " [%s]", component)
	}
	if cid, _ := entry.Data[FieldCorrelation].(string); cid != "" {
		fmt.Fprintf(&b, " <%s>", cid)
	}
	b.WriteByte(' ')
	b.WriteString(entry.Message)
	if fields := formatFields(entry.Data); fields != "" {
		b.WriteByte(' ')
		b.WriteString(fields)
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

func formatCaller(entry *logrus.Entry) string {
	if entry.HasCaller() && entry.Caller != nil {
		return fmt.Sprintf("%s:%d", shortenFilePath(entry.Caller.File), entry.Caller.Line)
	}
	caller, _ := entry.Data["caller"].(string)
	return caller
}

// formatFields 按键排序输出其余字段；含空白或引号的值加引号，保证一行可被切分。
func formatFields(fields logrus.Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		switch k {
		case FieldComponent, FieldCorrelation, "caller":
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		val := fmt.Sprint(fields[k])
		if strings.ContainsAny(val, " \t\"") {
			val = strconv.Quote(val)
		}
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, " ")
}

func shortenFilePath(file string) string {
	file = filepath.ToSlash(file)
	for _, marker := range []string{"/internal/", "/cmd/"} {
		if idx := strings.Index(file, marker); idx != -1 {
			return file[idx+1:]
		}
	}
	return filepath.Base(file)
}

func openLogFile(logPath string) (*os.File, error) {
	if logPath == "" {
		logPath = DefaultLogPath
	}
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
