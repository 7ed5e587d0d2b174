package openai

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// NormalizeBaseURL 将用户填写的地址规整为以 /v1 结尾的 API 根地址。
// 允许直接粘贴完整的 .../chat/completions 地址。
func NormalizeBaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return strings.TrimRight(raw, "/")
	}

	path := strings.TrimRight(parsed.Path, "/")
	path = strings.TrimSuffix(path, "/chat/completions")
	path = strings.TrimRight(path, "/")
	if !strings.HasSuffix(path, "/v1") {
		path += "/v1"
	}
	for strings.Contains(path, "/v1/v1") {
		path = strings.ReplaceAll(path, "/v1/v1", "/v1")
	}
	parsed.Path = path
	return parsed.String()
}

// CompletionsURL 返回流式补全端点。
func CompletionsURL(base string) string {
	return strings.TrimRight(NormalizeBaseURL(base), "/") + "/chat/completions"
}

// CheckReachable 仅做 TCP 连通性探测，不发送 HTTP 请求。
func CheckReachable(ctx context.Context, baseURL string) error {
	normalized := NormalizeBaseURL(baseURL)
	parsed, err := url.Parse(normalized)
	if err != nil || parsed == nil {
		return fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}
	host := parsed.Hostname()
	if parsed.Scheme == "" || host == "" {
		return fmt.Errorf("invalid base url %q: scheme=%q host=%q", baseURL, parsed.Scheme, parsed.Host)
	}

	port := parsed.Port()
	if port == "" {
		switch strings.ToLower(parsed.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			return fmt.Errorf("unsupported scheme %q (base url %q)", parsed.Scheme, baseURL)
		}
	}

	addr := net.JoinHostPort(host, port)
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("cannot connect to %s: %w", addr, err)
	}
	_ = conn.Close()
	return nil
}
