package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout 表示整次调用超过 Options.Timeout。
	ErrTimeout = errors.New("stream: request timed out")
	// ErrIdleTimeout 表示两次读取之间的静默超过 Options.IdleTimeout。
	ErrIdleTimeout = errors.New("stream: no data within idle timeout")
)

// HTTPError 是流开始前收到的非 2xx 响应。
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http_%d", e.StatusCode)
	}
	return fmt.Sprintf("http_%d: %s", e.StatusCode, e.Body)
}

// StreamError 是发送请求或读取响应体时的传输层错误。
type StreamError struct {
	Op  string
	Err error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream %s: %v", e.Op, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }
