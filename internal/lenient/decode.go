// Package lenient 解码模型常输出的近似 JSON：未加引号的键、单引号字符串、尾随逗号、注释。
package lenient

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrUndecodable 表示所有解码步骤都失败。
var ErrUndecodable = errors.New("lenient: undecodable payload")

var (
	unquotedKeyPattern   = regexp.MustCompile(`([{,]\s*)([A-Za-z_$][\w$]*)\s*:`)
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Decode 依次尝试严格 JSON、文本修复，以及（仅限对象形状的输入）字面量解析器。不会 panic。
func Decode(text string) (any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty input", ErrUndecodable)
	}

	if v, err := strict(trimmed); err == nil {
		return v, nil
	}

	repaired := Repair(trimmed)
	if v, err := strict(repaired); err == nil {
		return v, nil
	}

	if strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}") {
		v, err := ParseLiteral(trimmed)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUndecodable, err)
		}
		if _, ok := v.(map[string]any); !ok {
			return nil, fmt.Errorf("%w: literal is %T, not an object", ErrUndecodable, v)
		}
		return v, nil
	}
	return nil, fmt.Errorf("%w: not object-shaped", ErrUndecodable)
}

// DecodeObject 同 Decode，但结果必须是对象。
func DecodeObject(text string) (map[string]any, error) {
	v, err := Decode(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: decoded %T, want object", ErrUndecodable, v)
	}
	return obj, nil
}

// strict 只接受标准 JSON。gjson.Valid 校验不分配内存，修复路径上的大多数输入在这里被拒绝；
// 合法输入一次构建出与 encoding/json 相同形状的值。
func strict(text string) (any, error) {
	if !gjson.Valid(text) {
		return nil, errors.New("invalid json")
	}
	return gjson.Parse(text).Value(), nil
}

// Repair 做文本层面的修复：单引号字符串改为双引号，裸标识符键加引号，删除尾随逗号。
func Repair(text string) string {
	out := requote(text)
	out = unquotedKeyPattern.ReplaceAllString(out, `$1"$2":`)
	out = trailingCommaPattern.ReplaceAllString(out, "$1")
	return out
}

// requote 把 '...' 改写为 "..."，双引号字符串保持不变，其中的撇号（如 "don't"）不受影响。
func requote(text string) string {
	var b strings.Builder
	b.Grow(len(text) + 8)

	var quote rune
	escaped := false
	for _, r := range text {
		switch {
		case quote == 0:
			switch r {
			case '"':
				quote = '"'
				b.WriteRune(r)
			case '\'':
				quote = '\''
				b.WriteRune('"')
			default:
				b.WriteRune(r)
			}
		case escaped:
			escaped = false
			if quote == '\'' && r == '\'' {
				b.WriteRune('\'')
				continue
			}
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\\':
			escaped = true
		case r == quote:
			quote = 0
			b.WriteRune('"')
		case quote == '\'' && r == '"':
			b.WriteString(`\"`)
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String()
}
