package surface

import (
	"sync"

	"bankchat/internal/agent"
)

// Call 记录 Memory 收到的一次渲染调用。
type Call struct {
	Method string
	Args   []any
}

// Memory 只记录调用，不做渲染；用于无终端场景与测试。
type Memory struct {
	mu    sync.Mutex
	calls []Call
}

func NewMemory() *Memory {
	return &Memory{}
}

// Calls 返回调用记录的副本。
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

func (m *Memory) record(method string, args ...any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}

func (m *Memory) AddMessage(role agent.Role, text string)    { m.record("AddMessage", role, text) }
func (m *Memory) AddTable(headers []string, rows [][]string) { m.record("AddTable", headers, rows) }
func (m *Memory) AddChart(spec ChartSpec)                    { m.record("AddChart", spec) }
func (m *Memory) AddImage(url, alt string)                   { m.record("AddImage", url, alt) }
func (m *Memory) AddQuickReply(options []string)             { m.record("AddQuickReply", options) }
func (m *Memory) ShowTypingIndicator()                       { m.record("ShowTypingIndicator") }
func (m *Memory) HideTypingIndicator()                       { m.record("HideTypingIndicator") }
