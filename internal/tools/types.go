package tools

import (
	"context"

	"github.com/google/uuid"
)

// Source 标记命令的来源语法。
type Source string

const (
	SourceJSONRPC  Source = "json-rpc"
	SourceSentinel Source = "sentinel"
	SourceNative   Source = "native"
)

// Command 是从模型输出中解析出的一条结构化指令。
// Name 非空，Arguments 始终是对象（可能为空对象）。
type Command struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Source    Source         `json:"source"`
}

// NewCommand 构造命令并分配用于日志关联的 ID。
func NewCommand(name string, args map[string]any, src Source) Command {
	if args == nil {
		args = map[string]any{}
	}
	return Command{
		ID:        uuid.NewString(),
		Name:      name,
		Arguments: args,
		Source:    src,
	}
}

// Invocation 是交给处理函数的调用上下文。
// App 由应用层注入（通常是 surface.Surface），处理函数自行断言所需能力。
type Invocation struct {
	Command Command
	App     any
}

// HandlerFunc 执行一条命令。返回的错误与 panic 都会被分发层吸收并记录。
type HandlerFunc func(ctx context.Context, inv Invocation) error

// Metadata 描述一条命令对外暴露的名称、说明与参数 schema。
type Metadata struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters"`
}

// ToolSchema 是 OpenAI 兼容的 tools 数组元素。
type ToolSchema struct {
	Type     string   `json:"type"`
	Function Metadata `json:"function"`
}

// Entry 是注册表中的一项。
type Entry struct {
	Name     string
	Handler  HandlerFunc
	Metadata *Metadata
}
