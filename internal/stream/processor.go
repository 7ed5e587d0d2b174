// Package stream consumes an OpenAI-compatible chat completion event stream,
// forwards text deltas as they arrive and turns embedded command blocks and
// native tool_calls into dispatched commands.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"bankchat/internal/agent"
	oaiclient "bankchat/internal/agent/openai"
	"bankchat/internal/logger"
	"bankchat/internal/tools"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"

	readBufferSize  = 32 << 10
	maxErrorBodyLen = 64 << 10
)

// CommandDispatcher 执行已识别的命令；tools.Dispatcher 即为默认实现。
type CommandDispatcher interface {
	Dispatch(ctx context.Context, cmd tools.Command) error
}

type Options struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Registry   *tools.Registry
	// Dispatcher 为空时使用不带 App 的 tools.Dispatcher。
	Dispatcher CommandDispatcher
	// Timeout 限制整次调用，0 表示不限制。
	Timeout time.Duration
	// IdleTimeout 限制两次读取之间的静默，0 表示不限制。
	IdleTimeout time.Duration
	StreamLog   logger.StreamLogger
	Log         *logger.LogEntry
}

// Request 是一次流式调用的输入。
type Request struct {
	Messages []agent.Message
	Options  agent.ModelOptions
	// OnToken 每个文本增量调用一次，结束时再以 ("", true) 调用一次。
	OnToken func(text string, complete bool)
	// OnCommand 每条被接受的命令调用一次，顺序与到达顺序一致。
	OnCommand func(cmd tools.Command)
	OnState   func(State)
}

// Processor 可被多个 goroutine 同时使用，每次 Stream 调用拥有独立状态。
type Processor struct {
	endpoint    string
	apiKey      string
	client      *http.Client
	registry    *tools.Registry
	dispatcher  CommandDispatcher
	extractor   *tools.Extractor
	timeout     time.Duration
	idleTimeout time.Duration
	streamLog   logger.StreamLogger
	log         *logger.LogEntry
}

func New(opts Options) (*Processor, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("stream: base url is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("stream: registry is required")
	}
	p := &Processor{
		endpoint:    oaiclient.CompletionsURL(opts.BaseURL),
		apiKey:      strings.TrimSpace(opts.APIKey),
		client:      opts.HTTPClient,
		registry:    opts.Registry,
		dispatcher:  opts.Dispatcher,
		timeout:     opts.Timeout,
		idleTimeout: opts.IdleTimeout,
		streamLog:   opts.StreamLog,
		log:         opts.Log,
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	if p.log == nil {
		p.log = logger.Named("stream")
	}
	if p.streamLog == nil {
		p.streamLog = logger.NewStreamLogger(p.log)
	}
	if p.dispatcher == nil {
		p.dispatcher = tools.NewDispatcher(opts.Registry, nil)
	}
	p.extractor = tools.NewExtractor(p.log)
	return p, nil
}

type chatRequest struct {
	Messages    []agent.Message    `json:"messages"`
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	TopP        float64            `json:"top_p"`
	Stream      bool               `json:"stream"`
	Tools       []tools.ToolSchema `json:"tools,omitempty"`
}

// Stream 发送请求并同步消费事件流，返回完整文本。
// 失败时不返回部分文本；已通过 OnToken 送出的内容不会撤回。
func (p *Processor) Stream(ctx context.Context, req Request) (string, error) {
	opts := req.Options.WithDefaults()
	s := &session{
		p:      p,
		req:    req,
		model:  opts.Model,
		state:  StateIdle,
		native: newNativeCalls(),
		log:    logger.Correlate(p.log, uuid.NewString()),
	}

	text, err := s.run(ctx, opts)
	if err != nil {
		s.transition(StateFailed)
		p.streamLog.Error(opts.Model, err)
		return "", err
	}
	p.streamLog.StreamComplete(opts.Model, len(text))
	return text, nil
}

type session struct {
	p      *Processor
	req    Request
	model  string
	state  State
	ctx    context.Context
	full   strings.Builder
	scan   string
	native *nativeCalls
	chunks int
	log    *logger.LogEntry
}

func (s *session) transition(to State) {
	if s.state == to || s.state.Terminal() {
		return
	}
	from := s.state
	s.state = to
	s.p.streamLog.StateChange(from.String(), to.String())
	if s.req.OnState != nil {
		s.req.OnState(to)
	}
}

func (s *session) run(ctx context.Context, opts agent.ModelOptions) (string, error) {
	s.transition(StateRequesting)

	schemas := s.p.registry.ExportMetadata()
	payload, err := json.Marshal(chatRequest{
		Messages:    s.req.Messages,
		Model:       opts.Model,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		Stream:      true,
		Tools:       schemas,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	var callCtx context.Context
	var cancelCall context.CancelFunc
	if s.p.timeout > 0 {
		callCtx, cancelCall = context.WithTimeout(ctx, s.p.timeout)
	} else {
		callCtx, cancelCall = context.WithCancel(ctx)
	}
	defer cancelCall()

	reqCtx, cancelReq := context.WithCancelCause(callCtx)
	defer cancelReq(nil)
	s.ctx = reqCtx

	watchdog := newIdleWatchdog(s.p.idleTimeout, func() { cancelReq(ErrIdleTimeout) })
	defer watchdog.stop()

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.p.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if s.p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.p.apiKey)
	}

	s.p.streamLog.Request(opts.Model, len(s.req.Messages), len(schemas))
	resp, err := s.p.client.Do(httpReq)
	if err != nil {
		return "", classify(ctx, callCtx, reqCtx, "send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLen))
		if readErr != nil {
			return "", classify(ctx, callCtx, reqCtx, "read error body", readErr)
		}
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	s.transition(StateStreaming)
	watchdog.reset()
	text, err := s.consume(resp.Body, watchdog)
	if err != nil {
		return "", classify(ctx, callCtx, reqCtx, "read", err)
	}
	return text, nil
}

// consume 按字节切行：只有完整的行才会被解码为字符串，因此跨块的多字节字符不会被截断。
func (s *session) consume(body io.Reader, watchdog *idleWatchdog) (string, error) {
	buf := make([]byte, readBufferSize)
	var pending []byte
	for {
		n, err := body.Read(buf)
		if n > 0 {
			watchdog.reset()
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				pending = pending[i+1:]
				if s.handleLine(line) {
					return s.full.String(), nil
				}
			}
			watchdog.reset()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return "", err
			}
			if len(pending) > 0 && s.handleLine(pending) {
				return s.full.String(), nil
			}
			s.log.Warnf("stream ended without %s after %d chunks", doneSentinel, s.chunks)
			s.finish()
			return s.full.String(), nil
		}
	}
}

// handleLine 处理一行 SSE 文本，遇到结束标记时返回 true。
func (s *session) handleLine(raw []byte) bool {
	line := strings.TrimRight(string(raw), "\r")
	if !strings.HasPrefix(line, dataPrefix) {
		return false
	}
	data := strings.TrimSpace(line[len(dataPrefix):])
	if data == "" {
		return false
	}
	if data == doneSentinel {
		s.finish()
		return true
	}

	var chunk openai.ChatCompletionChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		s.log.Warnf("skipping malformed chunk: %v data=%s", err, logger.Sanitize(data))
		return false
	}
	s.chunks++
	for _, choice := range chunk.Choices {
		if content := choice.Delta.Content; content != "" {
			s.p.streamLog.StreamChunk(s.model, content, s.chunks)
			s.onContent(content)
		}
		for _, tc := range choice.Delta.ToolCalls {
			s.native.add(tc.Index, tc.ID, tc.Function.Name, tc.Function.Arguments)
		}
		for _, cmd := range s.native.ready() {
			s.emit(cmd)
		}
	}
	return false
}

func (s *session) onContent(content string) {
	s.full.WriteString(content)
	rest, cmds := s.p.extractor.Extract(s.scan + content)
	s.scan = tools.Trim(rest)
	for _, cmd := range cmds {
		s.emit(cmd)
	}
	if s.req.OnToken != nil {
		s.req.OnToken(content, false)
	}
}

// emit 是所有来源命令的唯一出口：先通知调用方，再分发一次。
func (s *session) emit(cmd tools.Command) {
	if s.req.OnCommand != nil {
		s.req.OnCommand(cmd)
	}
	_ = s.p.dispatcher.Dispatch(s.ctx, cmd)
}

func (s *session) finish() {
	cmds, dropped := s.native.drain()
	for _, cmd := range cmds {
		s.emit(cmd)
	}
	for _, d := range dropped {
		s.log.Warnf("dropping incomplete tool call: %s", logger.Sanitize(d))
	}
	if strings.TrimSpace(s.scan) != "" && (strings.Contains(s.scan, tools.SentinelOpen) || strings.Contains(s.scan, tools.FenceOpen)) {
		s.log.Debugf("discarding unterminated command block (%d bytes)", len(s.scan))
	}
	s.scan = ""
	if s.req.OnToken != nil {
		s.req.OnToken("", true)
	}
	s.transition(StateCompleted)
}

// classify 将传输错误映射到调用方可区分的类别。
func classify(parent, call, req context.Context, op string, err error) error {
	switch {
	case errors.Is(context.Cause(req), ErrIdleTimeout):
		return ErrIdleTimeout
	case parent.Err() != nil:
		return parent.Err()
	case errors.Is(call.Err(), context.DeadlineExceeded):
		return ErrTimeout
	default:
		return &StreamError{Op: op, Err: err}
	}
}
