package gateway

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"bankchat/internal/lenient"
	"bankchat/internal/tools"

	"github.com/google/uuid"
)

// ParseToolCall 提取生成文本中的第一个 TOOL_START 块，content 为标记之前的文本。
// TOOL_END 同时是停止序列，通常不会出现在输出中，因此可以缺省。
func ParseToolCall(text string) (content string, call ToolCall, ok bool) {
	start := strings.Index(text, tools.SentinelOpen)
	if start < 0 {
		return text, ToolCall{}, false
	}
	payload := text[start+len(tools.SentinelOpen):]
	if end := strings.Index(payload, tools.SentinelClose); end >= 0 {
		payload = payload[:end]
	}
	obj, err := lenient.DecodeObject(strings.TrimSpace(payload))
	if err != nil {
		return text, ToolCall{}, false
	}
	name, _ := obj["name"].(string)
	if strings.TrimSpace(name) == "" {
		return text, ToolCall{}, false
	}
	args, _ := obj["arguments"].(map[string]any)
	if args == nil {
		args = map[string]any{}
	}
	raw, err := json.Marshal(args)
	if err != nil {
		return text, ToolCall{}, false
	}
	return strings.TrimSpace(text[:start]), ToolCall{
		ID:   "call_" + hexID(24),
		Type: "function",
		Function: FunctionCall{
			Name:      name,
			Arguments: string(raw),
		},
	}, true
}

func hexID(n int) string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:n]
}

// estimateTokens 按每 4 个字符 1 个 token 估算。
func estimateTokens(text string) int {
	return max(1, utf8.RuneCountInString(text)/4)
}
