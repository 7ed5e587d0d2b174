package agent

import "strings"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 是一轮对话消息，同时也是请求体 messages 的元素。
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ParseRole 将任意大小写的角色名映射到已知角色，未知角色按 user 处理。
func ParseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAssistant:
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}
