// Package gateway 提供由 AWS Bedrock 支撑的 OpenAI 兼容补全接口。
// 工具调用通过系统提示教给模型，再从生成文本中解析回 tool_calls。
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"bankchat/internal/agent"
	"bankchat/internal/config"
	"bankchat/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	serviceName     = "bankchat-gateway"
	shutdownTimeout = 5 * time.Second
)

type route struct {
	modelID string
	family  Family
}

type Server struct {
	engine  *gin.Engine
	invoker Invoker
	routes  map[string]route
	log     *logger.LogEntry
	now     func() time.Time
}

// New 注册 HTTP 路由，log 可为空。
func New(cfg config.Gateway, invoker Invoker, log *logger.LogEntry) *Server {
	if log == nil {
		log = logger.Named("gateway")
	}
	s := &Server{
		invoker: invoker,
		routes: map[string]route{
			"llama": {modelID: cfg.LlamaModelID, family: llamaFamily{}},
			"nova":  {modelID: cfg.NovaModelID, family: novaFamily{}},
		},
		log: log,
		now: time.Now,
	}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.accessLog(), cors())
	v1 := engine.Group("/v1")
	v1.POST("/chat/completions", s.chatCompletions)
	v1.GET("/models", s.models)
	v1.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": serviceName})
	})
	engine.GET("/api/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	s.engine = engine
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run 在 addr 上提供服务，直到 ctx 取消后优雅退出。
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("gateway listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown gateway: %w", err)
		}
		return nil
	}
}

func (s *Server) modelNames() []string {
	names := make([]string, 0, len(s.routes))
	for name := range s.routes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) models(c *gin.Context) {
	created := s.now().Unix()
	list := ModelList{Object: "list"}
	for _, name := range s.modelNames() {
		list.Data = append(list.Data, Model{ID: name, Object: "model", Created: created, OwnedBy: "bedrock"})
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) chatCompletions(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		return
	}
	rt, ok := s.routes[req.Model]
	if !ok {
		abortWithError(c, http.StatusBadRequest, "invalid_request_error",
			fmt.Sprintf("model %q not supported, available models: %s", req.Model, strings.Join(s.modelNames(), ", ")))
		return
	}

	completion, err := s.complete(c.Request.Context(), rt, req)
	if err != nil {
		s.log.Errorf("chat completion failed model=%s: %v", req.Model, err)
		abortWithError(c, http.StatusInternalServerError, "server_error", "internal server error: "+err.Error())
		return
	}
	if req.Stream {
		s.writeStream(c, completion)
		return
	}
	c.JSON(http.StatusOK, completion)
}

func (s *Server) complete(ctx context.Context, rt route, req ChatRequest) (ChatCompletion, error) {
	opts := req.Options()
	payload, err := rt.family.Payload(req.Messages, opts, req.Stop, req.Tools)
	if err != nil {
		return ChatCompletion{}, fmt.Errorf("build %s payload: %w", rt.family.Name(), err)
	}
	s.log.Infof("calling bedrock model=%s tools=%d", rt.modelID, len(req.Tools))
	s.log.Debugf("bedrock payload: %s", payload)

	body, err := invoke(ctx, s.invoker, rt.modelID, payload)
	if err != nil {
		return ChatCompletion{}, err
	}
	gen, err := rt.family.Parse(body)
	if err != nil {
		return ChatCompletion{}, err
	}

	msg := ResponseMessage{Role: agent.RoleAssistant, Content: gen.Text}
	finish := gen.FinishReason
	if len(req.Tools) > 0 {
		if content, call, ok := ParseToolCall(gen.Text); ok {
			msg.Content = content
			msg.ToolCalls = []ToolCall{call}
			finish = "tool_calls"
		}
	}

	prompt, completion := gen.PromptTokens, gen.CompletionTokens
	if prompt == 0 {
		parts := make([]string, 0, len(req.Messages))
		for _, m := range req.Messages {
			parts = append(parts, m.Content)
		}
		prompt = estimateTokens(strings.Join(parts, " "))
	}
	if completion == 0 {
		completion = estimateTokens(gen.Text)
	}

	return ChatCompletion{
		ID:      "chatcmpl-" + hexID(29),
		Object:  "chat.completion",
		Created: s.now().Unix(),
		Model:   req.Model,
		Choices: []Choice{{Index: 0, Message: msg, FinishReason: finish}},
		Usage:   Usage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion},
	}, nil
}

// writeStream 把已完成的补全按 chat.completion.chunk 事件重放。
func (s *Server) writeStream(c *gin.Context, completion ChatCompletion) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	choice := completion.Choices[0]
	chunk := func(delta chunkDelta, finish *string) chatChunk {
		return chatChunk{
			ID:      completion.ID,
			Object:  "chat.completion.chunk",
			Created: completion.Created,
			Model:   completion.Model,
			Choices: []chunkChoice{{Index: 0, Delta: delta, FinishReason: finish}},
		}
	}

	events := []chatChunk{chunk(chunkDelta{Role: agent.RoleAssistant, Content: choice.Message.Content}, nil)}
	for i, call := range choice.Message.ToolCalls {
		events = append(events, chunk(chunkDelta{ToolCalls: []chunkToolCall{{Index: i, ToolCall: call}}}, nil))
	}
	finish := choice.FinishReason
	events = append(events, chunk(chunkDelta{}, &finish))

	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			s.log.Errorf("marshal stream chunk: %v", err)
			return
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			s.log.Warnf("client went away: %v", err)
			return
		}
		c.Writer.Flush()
	}
	_, _ = c.Writer.WriteString("data: [DONE]\n\n")
	c.Writer.Flush()
}

func abortWithError(c *gin.Context, status int, typ, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: errorDetail{Message: msg, Type: typ}})
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Infof("%s %s status=%d latency=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start).Round(time.Millisecond))
	}
}

// cors 允许任意来源，预检请求直接返回 204。
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		origin := c.GetHeader("Origin")
		if origin == "" {
			origin = "*"
		} else {
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if reqHeaders := c.GetHeader("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		} else {
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
