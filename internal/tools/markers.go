package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"bankchat/internal/lenient"
	"bankchat/internal/logger"
)

// Block markers recognised inside assistant text.
//
//	```json-rpc
//	{"jsonrpc":"2.0","method":"render_table","params":{...}}
//	```
//
//	TOOL_START
//	{"name":"render_table","arguments":{...}}
//	TOOL_END
const (
	FenceOpen     = "```json-rpc"
	FenceClose    = "```"
	SentinelOpen  = "TOOL_START"
	SentinelClose = "TOOL_END"
)

// maxScanBuffer caps how much text an unclosed opener may hold back.
const maxScanBuffer = 256 << 10

var (
	fencedPattern   = regexp.MustCompile("(?s)```json-rpc[ \\t]*\\r?\\n?(.*?)```")
	sentinelPattern = regexp.MustCompile(`(?s)TOOL_START\s*(.*?)\s*TOOL_END`)
)

// Extractor 在扫描缓冲中查找完整的命令块。
type Extractor struct {
	log *logger.LogEntry
}

func NewExtractor(log *logger.LogEntry) *Extractor {
	if log == nil {
		log = logger.Named("extract")
	}
	return &Extractor{log: log}
}

type blockMatch struct {
	start, end int
	payload    string
	source     Source
}

// Extract 返回移除所有完整块之后的缓冲以及按出现顺序排列的合法命令。
// 解码或校验失败的块同样被移除（只记录一次警告），未闭合的块原样保留。
func (x *Extractor) Extract(buf string) (string, []Command) {
	matches := collect(buf)
	if len(matches) == 0 {
		return buf, nil
	}

	var (
		rest strings.Builder
		cmds []Command
		prev int
	)
	for _, m := range matches {
		rest.WriteString(buf[prev:m.start])
		prev = m.end

		cmd, err := parseBlock(m)
		if err != nil {
			x.log.Warnf("dropping malformed %s block: %v raw=%s", m.source, err, clip(logger.Sanitize(buf[m.start:m.end]), 200))
			continue
		}
		cmds = append(cmds, cmd)
	}
	rest.WriteString(buf[prev:])
	return rest.String(), cmds
}

// collect finds fenced blocks first; sentinel blocks overlapping a fenced
// block are ignored. The result is ordered by position.
func collect(buf string) []blockMatch {
	var out []blockMatch
	for _, loc := range fencedPattern.FindAllStringSubmatchIndex(buf, -1) {
		out = append(out, blockMatch{start: loc[0], end: loc[1], payload: buf[loc[2]:loc[3]], source: SourceJSONRPC})
	}
	fenced := len(out)
	for _, loc := range sentinelPattern.FindAllStringSubmatchIndex(buf, -1) {
		m := innermostSentinel(buf, loc[0], loc[1])
		overlaps := false
		for _, f := range out[:fenced] {
			if m.start < f.end && f.start < m.end {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// innermostSentinel 将匹配起点移到 TOOL_END 之前最后一个 TOOL_START，
// 这样正文里提到的 TOOL_START 不会吞掉随后的真实命令块。
func innermostSentinel(buf string, start, end int) blockMatch {
	closeAt := end - len(SentinelClose)
	if i := strings.LastIndex(buf[start:closeAt], SentinelOpen); i > 0 {
		start += i
	}
	return blockMatch{
		start:   start,
		end:     end,
		payload: strings.TrimSpace(buf[start+len(SentinelOpen) : closeAt]),
		source:  SourceSentinel,
	}
}

func parseBlock(m blockMatch) (Command, error) {
	obj, err := lenient.DecodeObject(m.payload)
	if err != nil {
		return Command{}, err
	}
	switch m.source {
	case SourceJSONRPC:
		if v, _ := obj["jsonrpc"].(string); v != "2.0" {
			return Command{}, fmt.Errorf("jsonrpc = %v, want \"2.0\"", obj["jsonrpc"])
		}
		method, _ := obj["method"].(string)
		if strings.TrimSpace(method) == "" {
			return Command{}, fmt.Errorf("method missing or not a string")
		}
		params, ok := obj["params"].(map[string]any)
		if !ok {
			return Command{}, fmt.Errorf("params missing or not an object")
		}
		return NewCommand(method, params, SourceJSONRPC), nil
	default:
		name, _ := obj["name"].(string)
		if strings.TrimSpace(name) == "" {
			return Command{}, fmt.Errorf("name missing or empty")
		}
		args, ok := obj["arguments"].(map[string]any)
		if !ok {
			return Command{}, fmt.Errorf("arguments missing or not an object")
		}
		return NewCommand(name, args, SourceSentinel), nil
	}
}

// Trim 丢弃缓冲中不可能再构成命令块的前缀：
// 有未闭合的开始标记时从最早的标记处保留，否则只保留可能是半个标记的尾部。
func Trim(buf string) string {
	start := -1
	for _, opener := range []string{FenceOpen, SentinelOpen} {
		if i := strings.Index(buf, opener); i >= 0 && (start < 0 || i < start) {
			start = i
		}
	}
	tail := len(FenceOpen) - 1
	if start >= 0 {
		buf = buf[start:]
		if len(buf) <= maxScanBuffer {
			return buf
		}
	}
	if len(buf) > tail {
		return buf[len(buf)-tail:]
	}
	return buf
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
