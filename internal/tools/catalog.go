package tools

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Catalog 是 YAML 声明的额外命令清单。
//
//	commands:
//	  - name: show_balance
//	    description: Show the balance of one account
//	    parameters:
//	      type: object
//	      properties:
//	        account: {type: string}
type Catalog struct {
	Commands []Metadata `yaml:"commands"`
}

// LoadCatalog 读取并校验命令清单；文件不存在时返回空清单。
func LoadCatalog(path string) (Catalog, error) {
	var cat Catalog
	if strings.TrimSpace(path) == "" {
		return cat, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cat, nil
		}
		return cat, err
	}
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return cat, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	seen := make(map[string]bool, len(cat.Commands))
	for i, meta := range cat.Commands {
		name := strings.TrimSpace(meta.Name)
		if name == "" {
			return cat, fmt.Errorf("catalog %s: command #%d has no name", path, i+1)
		}
		if seen[name] {
			return cat, fmt.Errorf("catalog %s: duplicate command %q", path, name)
		}
		seen[name] = true
		cat.Commands[i].Name = name
		if cat.Commands[i].Parameters == nil {
			cat.Commands[i].Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
	}
	return cat, nil
}

// RegisterCatalog 以同一个处理函数注册清单中的全部命令。
func RegisterCatalog(r *Registry, cat Catalog, h HandlerFunc) {
	for _, meta := range cat.Commands {
		m := meta
		r.Register(m.Name, h, &m)
	}
}
