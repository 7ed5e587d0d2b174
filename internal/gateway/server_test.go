package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"bankchat/internal/agent"
	"bankchat/internal/config"
	"bankchat/internal/logger"
	"bankchat/internal/stream"
	"bankchat/internal/tools"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeInvoker struct {
	mu     sync.Mutex
	inputs []*bedrockruntime.InvokeModelInput
	body   string
	err    error
}

func (f *fakeInvoker) InvokeModel(_ context.Context, in *bedrockruntime.InvokeModelInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &bedrockruntime.InvokeModelOutput{Body: []byte(f.body)}, nil
}

func (f *fakeInvoker) last(t *testing.T) *bedrockruntime.InvokeModelInput {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.inputs)
	return f.inputs[len(f.inputs)-1]
}

func newTestServer(t *testing.T, inv *fakeInvoker) *httptest.Server {
	t.Helper()
	s := New(config.Default().Gateway, inv, logger.Discard())
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/v1/chat/completions", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestChatCompletionPlain(t *testing.T) {
	inv := &fakeInvoker{body: `{"generation":"Your balance is $10.","stop_reason":"stop"}`}
	srv := newTestServer(t, inv)

	resp := postJSON(t, srv.URL, `{"model":"llama","messages":[{"role":"user","content":"what is my balance"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatCompletion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, strings.HasPrefix(out.ID, "chatcmpl-"))
	assert.Len(t, out.ID, len("chatcmpl-")+29)
	assert.Equal(t, "chat.completion", out.Object)
	assert.Equal(t, int64(1700000000), out.Created)
	require.Len(t, out.Choices, 1)
	assert.Equal(t, "Your balance is $10.", out.Choices[0].Message.Content)
	assert.Equal(t, "stop", out.Choices[0].FinishReason)
	assert.Empty(t, out.Choices[0].Message.ToolCalls)
	assert.Equal(t, Usage{PromptTokens: 4, CompletionTokens: 5, TotalTokens: 9}, out.Usage)

	in := inv.last(t)
	assert.Equal(t, "us.meta.llama3-2-3b-instruct-v1:0", *in.ModelId)
	assert.Equal(t, "application/json", *in.ContentType)
	assert.Equal(t, int64(1000), gjson.GetBytes(in.Body, "max_gen_len").Int())
}

func TestChatCompletionToolCall(t *testing.T) {
	inv := &fakeInvoker{body: `{"output":{"message":{"content":[{"text":"One moment.\nTOOL_START\n{\"name\":\"render_chart\",\"arguments\":{\"kind\":\"bar\"}}\n"}]},"stopReason":"stop_sequence"},"usage":{"inputTokens":12,"outputTokens":9}}`}
	srv := newTestServer(t, inv)

	resp := postJSON(t, srv.URL, `{"model":"nova","messages":[{"role":"user","content":"chart"}],"tools":[{"type":"function","function":{"name":"render_chart","parameters":{"type":"object"}}}],"stop":"###"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out ChatCompletion
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	choice := out.Choices[0]
	assert.Equal(t, "tool_calls", choice.FinishReason)
	assert.Equal(t, "One moment.", choice.Message.Content)
	require.Len(t, choice.Message.ToolCalls, 1)
	assert.Equal(t, "render_chart", choice.Message.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"kind":"bar"}`, choice.Message.ToolCalls[0].Function.Arguments)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 9, TotalTokens: 21}, out.Usage)

	in := inv.last(t)
	assert.Equal(t, "amazon.nova-pro-v1:0", *in.ModelId)
	assert.Equal(t, `["TOOL_END","###"]`, gjson.GetBytes(in.Body, "inferenceConfig.stopSequences").Raw)
}

func TestChatCompletionErrors(t *testing.T) {
	inv := &fakeInvoker{err: errors.New("throttled")}
	srv := newTestServer(t, inv)

	cases := []struct {
		name   string
		body   string
		status int
		msg    string
	}{
		{"bad json", `{`, http.StatusBadRequest, ""},
		{"missing messages", `{"model":"llama"}`, http.StatusBadRequest, ""},
		{"bad stop", `{"model":"llama","messages":[{"role":"user","content":"x"}],"stop":1}`, http.StatusBadRequest, ""},
		{"unknown model", `{"model":"gpt","messages":[{"role":"user","content":"x"}]}`, http.StatusBadRequest, "llama, nova"},
		{"backend failure", `{"model":"llama","messages":[{"role":"user","content":"x"}]}`, http.StatusInternalServerError, "throttled"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, srv.URL, tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error.Message)
			assert.Contains(t, body.Error.Message, tc.msg)
		})
	}
}

func TestModelsHealthAndCORS(t *testing.T) {
	srv := newTestServer(t, &fakeInvoker{})

	resp, err := http.Get(srv.URL + "/v1/models")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list ModelList
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list.Data, 2)
	assert.Equal(t, "llama", list.Data[0].ID)
	assert.Equal(t, "nova", list.Data[1].ID)
	assert.Equal(t, "bedrock", list.Data[0].OwnedBy)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	for path, status := range map[string]string{"/v1/health": "healthy", "/api/health": "healthy"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		resp.Body.Close()
		assert.Equal(t, status, body["status"], path)
	}

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/v1/chat/completions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	req.Header.Set("Access-Control-Request-Headers", "content-type")
	pre, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	pre.Body.Close()
	assert.Equal(t, http.StatusNoContent, pre.StatusCode)
	assert.Equal(t, "http://localhost:3000", pre.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "content-type", pre.Header.Get("Access-Control-Allow-Headers"))
}

// 网关输出的事件流直接交给客户端 Processor 消费。
func TestStreamingRoundTripThroughProcessor(t *testing.T) {
	inv := &fakeInvoker{body: `{"output":{"message":{"content":[{"text":"Here is your chart.\nTOOL_START\n{\"name\":\"render_chart\",\"arguments\":{\"kind\":\"bar\",\"values\":[1,2]}}"}]},"stopReason":"stop_sequence"}}`}
	srv := newTestServer(t, inv)

	reg := tools.NewRegistry()
	var (
		mu    sync.Mutex
		calls []tools.Invocation
	)
	reg.Register("render_chart", func(_ context.Context, inv tools.Invocation) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, inv)
		return nil
	}, &tools.Metadata{Description: "Draw a chart", Parameters: map[string]any{"type": "object"}})

	p, err := stream.New(stream.Options{
		BaseURL:    srv.URL,
		Registry:   reg,
		Dispatcher: tools.NewDispatcher(reg, "app", tools.WithDispatchLogger(logger.Discard())),
		StreamLog:  logger.NoopStreamLogger{},
		Log:        logger.Discard(),
		Timeout:    5 * time.Second,
	})
	require.NoError(t, err)

	var tokens []string
	var commands []tools.Command
	text, err := p.Stream(context.Background(), stream.Request{
		Messages:  []agent.Message{{Role: agent.RoleUser, Content: "show a chart"}},
		Options:   agent.ModelOptions{Model: "nova"},
		OnToken:   func(s string, done bool) { tokens = append(tokens, s) },
		OnCommand: func(c tools.Command) { commands = append(commands, c) },
	})
	require.NoError(t, err)
	assert.Equal(t, "Here is your chart.", text)
	assert.Equal(t, []string{"Here is your chart.", ""}, tokens)

	require.Len(t, commands, 1)
	assert.Equal(t, "render_chart", commands[0].Name)
	assert.Equal(t, tools.SourceNative, commands[0].Source)
	assert.Equal(t, map[string]any{"kind": "bar", "values": []any{float64(1), float64(2)}}, commands[0].Arguments)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, "app", calls[0].App)

	assert.Contains(t, gjson.GetBytes(inv.last(t).Body, "messages.0.content.0.text").String(), "- render_chart: Draw a chart")
}
