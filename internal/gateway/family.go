package gateway

import (
	"fmt"
	"sort"
	"strings"

	"bankchat/internal/agent"
	"bankchat/internal/tools"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// StopToolEnd 在请求带有 tools 时加入停止序列，生成在第一个工具调用后结束。
const StopToolEnd = tools.SentinelClose

// Generation 是按 OpenAI 语义归一化后的后端响应。
type Generation struct {
	Text             string
	FinishReason     string
	PromptTokens     int
	CompletionTokens int
}

// Family 负责某一 Bedrock 模型家族的请求组装与响应解析。
type Family interface {
	Name() string
	Payload(msgs []agent.Message, opts agent.ModelOptions, stop []string, specs []tools.ToolSchema) ([]byte, error)
	Parse(body []byte) (Generation, error)
}

func stopSequences(stop []string, specs []tools.ToolSchema) []string {
	var out []string
	if len(specs) > 0 {
		out = append(out, StopToolEnd)
	}
	for _, s := range stop {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

type llamaFamily struct{}

func (llamaFamily) Name() string { return "llama" }

func (llamaFamily) Payload(msgs []agent.Message, opts agent.ModelOptions, stop []string, specs []tools.ToolSchema) ([]byte, error) {
	system := ""
	if len(specs) > 0 {
		system = ToolSystemPrompt(specs)
	}
	body := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	set("prompt", llamaPrompt(msgs, system))
	set("max_gen_len", opts.MaxTokens)
	set("temperature", opts.Temperature)
	set("top_p", opts.TopP)
	if seq := stopSequences(stop, specs); len(seq) > 0 {
		set("stop_sequences", seq)
	}
	return body, err
}

func (llamaFamily) Parse(body []byte) (Generation, error) {
	if !gjson.ValidBytes(body) {
		return Generation{}, fmt.Errorf("llama: invalid response body")
	}
	r := gjson.ParseBytes(body)
	reason := "length"
	switch stop := r.Get("stop_reason"); {
	case !stop.Exists(), stop.String() == "stop", stop.String() == "end_of_turn":
		reason = "stop"
	}
	return Generation{
		Text:             r.Get("generation").String(),
		FinishReason:     reason,
		PromptTokens:     int(r.Get("prompt_token_count").Int()),
		CompletionTokens: int(r.Get("generation_token_count").Int()),
	}, nil
}

func llamaPrompt(msgs []agent.Message, system string) string {
	var b strings.Builder
	header := func(role, content string) {
		fmt.Fprintf(&b, "<|start_header_id|>%s<|end_header_id|>\n\n%s<|eot_id|>", role, content)
	}
	b.WriteString("<|begin_of_text|>")
	if system != "" {
		header("system", system)
	}
	for _, m := range msgs {
		switch m.Role {
		case agent.RoleSystem:
			if system == "" {
				header("system", m.Content)
			}
		case agent.RoleUser, agent.RoleAssistant:
			header(string(m.Role), m.Content)
		}
	}
	b.WriteString("<|start_header_id|>assistant<|end_header_id|>\n\n")
	return b.String()
}

type novaFamily struct{}

func (novaFamily) Name() string { return "nova" }

func (novaFamily) Payload(msgs []agent.Message, opts agent.ModelOptions, stop []string, specs []tools.ToolSchema) ([]byte, error) {
	body := []byte(`{"messages":[]}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			body, err = sjson.SetBytes(body, path, v)
		}
	}
	add := func(role agent.Role, text string) {
		set("messages.-1", map[string]any{
			"role":    string(role),
			"content": []map[string]string{{"text": text}},
		})
	}
	if len(specs) > 0 {
		add(agent.RoleSystem, ToolSystemPrompt(specs))
	}
	for _, m := range msgs {
		if m.Role == agent.RoleSystem && len(specs) > 0 {
			continue
		}
		add(m.Role, m.Content)
	}
	set("inferenceConfig.max_new_tokens", opts.MaxTokens)
	set("inferenceConfig.temperature", opts.Temperature)
	set("inferenceConfig.top_p", opts.TopP)
	if seq := stopSequences(stop, specs); len(seq) > 0 {
		set("inferenceConfig.stopSequences", seq)
	}
	return body, err
}

func (novaFamily) Parse(body []byte) (Generation, error) {
	if !gjson.ValidBytes(body) {
		return Generation{}, fmt.Errorf("nova: invalid response body")
	}
	r := gjson.ParseBytes(body)
	reason := "stop"
	if r.Get("output.stopReason").String() == "max_tokens" {
		reason = "length"
	}
	return Generation{
		Text:             r.Get("output.message.content.0.text").String(),
		FinishReason:     reason,
		PromptTokens:     int(r.Get("usage.inputTokens").Int()),
		CompletionTokens: int(r.Get("usage.outputTokens").Int()),
	}, nil
}

// ToolSystemPrompt 生成教模型使用 TOOL_START/TOOL_END 格式的系统提示。
func ToolSystemPrompt(specs []tools.ToolSchema) string {
	lines := make([]string, 0, len(specs))
	for _, spec := range specs {
		line := fmt.Sprintf("- %s: %s", spec.Function.Name, spec.Function.Description)
		if params := describeParameters(spec.Function.Parameters); params != "" {
			line += "\n  Parameters: " + params
		}
		lines = append(lines, line)
	}
	return `You are a helpful assistant with access to tools. When you need to use a tool, format your response as:

TOOL_START
{
  "name": "tool_name",
  "arguments": {
    "param1": "value1",
    "param2": "value2"
  }
}
TOOL_END

Available tools:
` + strings.Join(lines, "\n") + `

Important: After TOOL_START, provide ONLY the JSON tool call, then TOOL_END. The client will execute the tool and provide results in a TOOL_USED_START...TOOL_USED_END block. You can then continue your response normally.`
}

func describeParameters(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	if len(props) == 0 {
		return ""
	}
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		typ := "any"
		if def, ok := props[name].(map[string]any); ok {
			if t, ok := def["type"].(string); ok && t != "" {
				typ = t
			}
		}
		parts = append(parts, fmt.Sprintf("%s (%s)", name, typ))
	}
	return strings.Join(parts, ", ")
}
