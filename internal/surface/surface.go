// Package surface 定义命令处理函数使用的渲染层接口，并提供终端与内存两种实现。
package surface

import "bankchat/internal/agent"

// Surface 是渲染层对命令处理函数暴露的能力集合。
// 处理函数只依赖其中需要的方法；实现必须可被多个 goroutine 调用。
type Surface interface {
	AddMessage(role agent.Role, text string)
	AddTable(headers []string, rows [][]string)
	AddChart(spec ChartSpec)
	AddImage(url, alt string)
	AddQuickReply(options []string)
	ShowTypingIndicator()
	HideTypingIndicator()
}

// ChartSpec 描述一个简单的单序列图表。
type ChartSpec struct {
	Kind   string    `json:"kind,omitempty" jsonschema:"enum=bar,enum=line,enum=pie"`
	Title  string    `json:"title,omitempty"`
	Labels []string  `json:"labels" jsonschema:"required"`
	Values []float64 `json:"values" jsonschema:"required"`
}

var (
	_ Surface = (*Terminal)(nil)
	_ Surface = (*Memory)(nil)
)
