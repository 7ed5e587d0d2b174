package tools

import (
	"strings"
	"sync"
)

// Registry 维护命令名到处理函数的映射，可并发读写。
// 枚举顺序为首次注册顺序；覆盖注册保持原位置。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	order   []string
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Register 存储或覆盖 name 对应的处理函数。meta 可为空；
// meta.Name 为空时补为 name。
func (r *Registry) Register(name string, h HandlerFunc, meta *Metadata) {
	name = strings.TrimSpace(name)
	if name == "" || h == nil {
		return
	}
	if meta != nil {
		cp := *meta
		if cp.Name == "" {
			cp.Name = name
		}
		cp.Parameters = cloneMap(meta.Parameters)
		meta = &cp
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; !exists {
		r.order = append(r.order, name)
	}
	r.entries[name] = Entry{Name: name, Handler: h, Metadata: meta}
}

// Unregister 删除 name，返回是否存在。
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; !ok {
		return false
	}
	delete(r.entries, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Registry) Lookup(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Resolve 先按原名查找，再尝试 svc_fn -> svc.fn，最后取第一个点之后的裸名。
func (r *Registry) Resolve(name string) (Entry, bool) {
	if e, ok := r.Lookup(name); ok {
		return e, true
	}
	if i := strings.Index(name, "_"); i > 0 && !strings.Contains(name, ".") {
		if e, ok := r.Lookup(name[:i] + "." + name[i+1:]); ok {
			return e, true
		}
	}
	if i := strings.Index(name, "."); i >= 0 && i < len(name)-1 {
		if e, ok := r.Lookup(name[i+1:]); ok {
			return e, true
		}
	}
	return Entry{}, false
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// ExportMetadata 返回带 metadata 的条目快照，按注册顺序包装为 function 工具。
// 返回值与注册表不共享可变状态。
func (r *Registry) ExportMetadata() []ToolSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolSchema, 0, len(r.order))
	for _, name := range r.order {
		meta := r.entries[name].Metadata
		if meta == nil {
			continue
		}
		out = append(out, ToolSchema{
			Type: "function",
			Function: Metadata{
				Name:        meta.Name,
				Description: meta.Description,
				Parameters:  cloneMap(meta.Parameters),
			},
		})
	}
	return out
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, item := range t {
			cp[i] = cloneValue(item)
		}
		return cp
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
