package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"bankchat/internal/config"
	"bankchat/internal/history"
	"bankchat/internal/session"
)

func sseChunk(text string) string {
	payload, _ := json.Marshal(map[string]any{
		"choices": []any{map[string]any{"index": 0, "delta": map[string]any{"content": text}}},
	})
	return "data: " + string(payload) + "\n\n"
}

// fakeCompletions answers every request with the next scripted reply, split into chunks.
type fakeCompletions struct {
	mu       sync.Mutex
	replies  [][]string
	requests []map[string]any
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)

	f.mu.Lock()
	f.requests = append(f.requests, body)
	var chunks []string
	if len(f.replies) > 0 {
		chunks, f.replies = f.replies[0], f.replies[1:]
	}
	f.mu.Unlock()

	if chunks == nil {
		http.Error(w, "no scripted reply", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range chunks {
		fmt.Fprint(w, sseChunk(c))
		w.(http.Flusher).Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newChatTestConfig(t *testing.T, h http.Handler) config.Config {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	cfg := config.Default()
	cfg.URL = srv.URL
	return cfg
}

func TestChatRunner_TurnRendersCommandsAndSaves(t *testing.T) {
	fake := &fakeCompletions{replies: [][]string{{
		"Here are your accounts. TOOL_ST",
		"ART {\"name\":\"render_table\",\"arguments\":{\"headers\":[\"Account\"],\"rows\":[[\"Checking\"]]}} TOOL_END",
	}}}
	cfg := newChatTestConfig(t, fake)

	var out bytes.Buffer
	r, err := newChatRunner(cfg, &out, &chatOptions{system: "You are a bank assistant."})
	if err != nil {
		t.Fatalf("newChatRunner: %v", err)
	}
	if err := r.turn(context.Background(), "list my accounts"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	if !strings.Contains(out.String(), "Here are your accounts.") || !strings.Contains(out.String(), "Checking") {
		t.Fatalf("output:\n%s", out.String())
	}
	if len(r.messages) != 3 || r.sessionID == "" {
		t.Fatalf("messages=%d session=%q", len(r.messages), r.sessionID)
	}
	msgs := fake.requests[0]["messages"].([]any)
	if len(msgs) != 2 || msgs[0].(map[string]any)["role"] != "system" {
		t.Fatalf("request messages = %v", msgs)
	}
	if tools, _ := fake.requests[0]["tools"].([]any); len(tools) != 5 {
		t.Fatalf("request tools = %v", fake.requests[0]["tools"])
	}

	store, err := session.NewDefault()
	if err != nil {
		t.Fatalf("session.NewDefault: %v", err)
	}
	rec, err := store.Load(r.sessionID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rec.Messages) != 3 || rec.Model != "llama" {
		t.Fatalf("saved record = %+v", rec)
	}

	hist, err := history.NewDefault()
	if err != nil {
		t.Fatalf("history.NewDefault: %v", err)
	}
	if texts, _ := hist.Recent(0); len(texts) != 1 || texts[0] != "list my accounts" {
		t.Fatalf("history = %v", texts)
	}
}

func TestChatRunner_FailedTurnIsNotRecorded(t *testing.T) {
	fake := &fakeCompletions{}
	cfg := newChatTestConfig(t, fake)

	var out bytes.Buffer
	r, err := newChatRunner(cfg, &out, &chatOptions{})
	if err != nil {
		t.Fatalf("newChatRunner: %v", err)
	}
	if err := r.turn(context.Background(), "hello"); err == nil || !strings.Contains(err.Error(), "http_503") {
		t.Fatalf("err = %v", err)
	}
	if len(r.messages) != 0 || r.sessionID != "" {
		t.Fatalf("failed turn leaked into state: %+v", r.messages)
	}
}

func TestChatRunner_ContinueResumesLastSession(t *testing.T) {
	fake := &fakeCompletions{replies: [][]string{{"first"}, {"second"}}}
	cfg := newChatTestConfig(t, fake)

	var out bytes.Buffer
	r, err := newChatRunner(cfg, &out, &chatOptions{model: "nova"})
	if err != nil {
		t.Fatalf("newChatRunner: %v", err)
	}
	if err := r.turn(context.Background(), "one"); err != nil {
		t.Fatalf("turn: %v", err)
	}

	out.Reset()
	resumed, err := newChatRunner(cfg, &out, &chatOptions{cont: true})
	if err != nil {
		t.Fatalf("newChatRunner resume: %v", err)
	}
	if resumed.sessionID != r.sessionID || resumed.options.Model != "nova" {
		t.Fatalf("resumed session=%q model=%q", resumed.sessionID, resumed.options.Model)
	}
	if !strings.Contains(out.String(), "resumed session") {
		t.Fatalf("output = %q", out.String())
	}
	if err := resumed.turn(context.Background(), "two"); err != nil {
		t.Fatalf("turn: %v", err)
	}
	if msgs := fake.requests[1]["messages"].([]any); len(msgs) != 3 {
		t.Fatalf("resumed request carried %d messages", len(msgs))
	}
	if fake.requests[1]["model"] != "nova" {
		t.Fatalf("model = %v", fake.requests[1]["model"])
	}
}

func TestChatRunner_Interactive(t *testing.T) {
	fake := &fakeCompletions{replies: [][]string{{"pong"}}}
	cfg := newChatTestConfig(t, fake)

	var out bytes.Buffer
	r, err := newChatRunner(cfg, &out, &chatOptions{noSave: true})
	if err != nil {
		t.Fatalf("newChatRunner: %v", err)
	}
	in := strings.NewReader("\nping\n/history\n/new\n/exit\nignored\n")
	if err := r.interactive(context.Background(), in); err != nil {
		t.Fatalf("interactive: %v", err)
	}
	got := out.String()
	for _, want := range []string{"pong", "  1  ping", "started a new session"} {
		if !strings.Contains(got, want) {
			t.Fatalf("output missing %q:\n%s", want, got)
		}
	}
	if len(fake.requests) != 1 {
		t.Fatalf("requests = %d", len(fake.requests))
	}
	if store, _ := session.NewDefault(); store != nil {
		if recs, _ := store.List(); len(recs) != 0 {
			t.Fatalf("--no-save persisted %d sessions", len(recs))
		}
	}
}

func TestChatRunner_NewKeepsSystemPrompt(t *testing.T) {
	fake := &fakeCompletions{replies: [][]string{{"one"}, {"two"}}}
	cfg := newChatTestConfig(t, fake)

	var out bytes.Buffer
	r, err := newChatRunner(cfg, &out, &chatOptions{system: "You are a bank assistant.", noSave: true})
	if err != nil {
		t.Fatalf("newChatRunner: %v", err)
	}
	if err := r.interactive(context.Background(), strings.NewReader("first\n/new\nsecond\n/exit\n")); err != nil {
		t.Fatalf("interactive: %v", err)
	}
	if len(fake.requests) != 2 {
		t.Fatalf("requests = %d", len(fake.requests))
	}
	msgs := fake.requests[1]["messages"].([]any)
	if len(msgs) != 2 {
		t.Fatalf("second session carried %d messages: %v", len(msgs), msgs)
	}
	first := msgs[0].(map[string]any)
	if first["role"] != "system" || first["content"] != "You are a bank assistant." {
		t.Fatalf("first message = %v", first)
	}
}
