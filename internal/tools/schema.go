package tools

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/xeipuuv/gojsonschema"
)

// ParametersFor 反射 Go 结构体生成参数 schema（内联、无 $ref）。
// 字段使用 json 与 jsonschema 标签描述。
func ParametersFor(v any) map[string]any {
	r := &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(v)
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]any{"type": "object"}
	}
	delete(out, "$schema")
	delete(out, "$id")
	return out
}

// ValidationError 表示命令参数不满足其声明的 schema。
type ValidationError struct {
	Name     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("command %s: invalid arguments: %s", e.Name, strings.Join(e.Problems, "; "))
}

// ValidateArguments 用 meta.Parameters 校验参数；schema 为空时视为通过。
func ValidateArguments(meta *Metadata, cmd Command) error {
	if meta == nil || len(meta.Parameters) == 0 {
		return nil
	}
	args := cmd.Arguments
	if args == nil {
		args = map[string]any{}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(meta.Parameters),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return fmt.Errorf("command %s: schema unusable: %w", cmd.Name, err)
	}
	if result.Valid() {
		return nil
	}
	problems := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		problems = append(problems, re.String())
	}
	return &ValidationError{Name: cmd.Name, Problems: problems}
}
