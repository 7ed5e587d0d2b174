package stream

import (
	"encoding/json"
	"strings"

	"bankchat/internal/tools"
)

// nativeCalls 累积 tool_calls 增量，参数拼成完整 JSON 对象后只发出一次。
// 部分服务端不发送 index（全部解码为 0），因此同一 index 上出现新的 name/id 时另起一个调用。
type nativeCalls struct {
	current map[int64]*nativeCall
	calls   []*nativeCall
}

type nativeCall struct {
	id      string
	name    string
	args    strings.Builder
	emitted bool
}

func newNativeCalls() *nativeCalls {
	return &nativeCalls{current: make(map[int64]*nativeCall)}
}

func (n *nativeCalls) add(index int64, id, name, args string) {
	call := n.current[index]
	if call == nil || call.startsNew(id, name) {
		call = &nativeCall{}
		n.current[index] = call
		n.calls = append(n.calls, call)
	}
	if id != "" {
		call.id = id
	}
	if name != "" {
		call.name = name
	}
	if args != "" {
		call.args.WriteString(args)
	}
}

// startsNew 报告携带 id 或 name 的片段是否属于另一个调用。
func (c *nativeCall) startsNew(id, name string) bool {
	if id == "" && name == "" {
		return false
	}
	if id != "" && c.id != "" {
		return id != c.id
	}
	switch {
	case c.emitted:
		return true
	case name != "" && c.name != "" && name != c.name:
		return true
	}
	_, complete := strictObject(c.args.String())
	return complete
}

// ready 返回参数已是完整 JSON 对象、尚未发出的调用，并标记为已发出。
func (n *nativeCalls) ready() []tools.Command {
	var out []tools.Command
	for _, call := range n.calls {
		if call.emitted || call.name == "" {
			continue
		}
		args, ok := strictObject(call.args.String())
		if !ok {
			continue
		}
		call.emitted = true
		out = append(out, tools.NewCommand(call.name, args, tools.SourceNative))
	}
	return out
}

// drain 在流结束时处理剩余调用：无参数的调用按空对象发出，其余返回给调用方记录。
func (n *nativeCalls) drain() (cmds []tools.Command, dropped []string) {
	for _, call := range n.calls {
		if call.emitted {
			continue
		}
		call.emitted = true
		if call.name != "" && strings.TrimSpace(call.args.String()) == "" {
			cmds = append(cmds, tools.NewCommand(call.name, nil, tools.SourceNative))
			continue
		}
		dropped = append(dropped, call.name+" "+call.args.String())
	}
	return cmds, dropped
}

func strictObject(raw string) (map[string]any, bool) {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "{") || !strings.HasSuffix(raw, "}") {
		return nil, false
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil || obj == nil {
		return nil, false
	}
	return obj, true
}
