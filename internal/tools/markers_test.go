package tools

import (
	"reflect"
	"strings"
	"testing"

	"bankchat/internal/logger"
)

func newTestExtractor() *Extractor {
	return NewExtractor(logger.Discard())
}

func TestExtract_JSONRPCFence(t *testing.T) {
	buf := "before\n```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"show_message\",\"params\":{\"text\":\"hi\"}}\n```\nafter"
	rest, cmds := newTestExtractor().Extract(buf)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	got := cmds[0]
	if got.Name != "show_message" || got.Source != SourceJSONRPC {
		t.Fatalf("unexpected command: %+v", got)
	}
	if !reflect.DeepEqual(got.Arguments, map[string]any{"text": "hi"}) {
		t.Fatalf("unexpected arguments: %#v", got.Arguments)
	}
	if got.ID == "" {
		t.Fatalf("command id not assigned")
	}
	if rest != "before\n\nafter" {
		t.Fatalf("block not removed, rest=%q", rest)
	}
}

func TestExtract_JSONRPCEmptyParams(t *testing.T) {
	_, cmds := newTestExtractor().Extract("```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"clear\",\"params\":{}}\n```")
	if len(cmds) != 1 || cmds[0].Name != "clear" || len(cmds[0].Arguments) != 0 {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestExtract_SentinelLenientPayload(t *testing.T) {
	buf := "ok TOOL_START\n  {name: 'render_chart', arguments: {kind: 'bar', values: [1, 2,],}}  \nTOOL_END done"
	rest, cmds := newTestExtractor().Extract(buf)
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	want := map[string]any{"kind": "bar", "values": []any{float64(1), float64(2)}}
	if cmds[0].Name != "render_chart" || !reflect.DeepEqual(cmds[0].Arguments, want) {
		t.Fatalf("unexpected command: %+v", cmds[0])
	}
	if rest != "ok  done" {
		t.Fatalf("rest = %q", rest)
	}
}

func TestExtract_SentinelMentionedInProse(t *testing.T) {
	buf := "I can call TOOL_START blocks. TOOL_START {\"name\":\"show_message\",\"arguments\":{\"text\":\"hi\"}} TOOL_END bye"
	rest, cmds := newTestExtractor().Extract(buf)
	if len(cmds) != 1 || cmds[0].Name != "show_message" || cmds[0].Arguments["text"] != "hi" {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
	if rest != "I can call TOOL_START blocks.  bye" {
		t.Fatalf("rest = %q", rest)
	}
}

func TestExtract_RejectsMalformedAndDropsThem(t *testing.T) {
	cases := map[string]string{
		"wrong version":    "```json-rpc\n{\"jsonrpc\":\"1.0\",\"method\":\"m\",\"params\":{}}\n```",
		"missing params":   "```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"m\"}\n```",
		"array params":     "```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"m\",\"params\":[1]}\n```",
		"numeric method":   "```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":3,\"params\":{}}\n```",
		"empty name":       "TOOL_START {\"name\":\"\",\"arguments\":{}} TOOL_END",
		"scalar arguments": "TOOL_START {\"name\":\"x\",\"arguments\":\"go\"} TOOL_END",
		"garbage":          "TOOL_START not json at all TOOL_END",
	}
	for name, buf := range cases {
		t.Run(name, func(t *testing.T) {
			rest, cmds := newTestExtractor().Extract("a " + buf + " b")
			if len(cmds) != 0 {
				t.Fatalf("expected no commands, got %+v", cmds)
			}
			if rest != "a  b" {
				t.Fatalf("malformed block should be dropped, rest=%q", rest)
			}
		})
	}
}

func TestExtract_IncompleteBlocksStay(t *testing.T) {
	for _, buf := range []string{
		"TOOL_START\n{\"name\":\"x\",",
		"```json-rpc\n{\"jsonrpc\":\"2.0\"",
		"text TOOL_STA",
	} {
		rest, cmds := newTestExtractor().Extract(buf)
		if len(cmds) != 0 || rest != buf {
			t.Fatalf("incomplete block changed: rest=%q cmds=%+v", rest, cmds)
		}
	}
}

func TestExtract_MultipleBlocksInArrivalOrder(t *testing.T) {
	buf := strings.Join([]string{
		"TOOL_START {\"name\":\"first\",\"arguments\":{}} TOOL_END",
		"```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"second\",\"params\":{}}\n```",
		"TOOL_START {\"name\":\"third\",\"arguments\":{\"n\":3}} TOOL_END",
	}, " and ")
	rest, cmds := newTestExtractor().Extract(buf)
	var names []string
	for _, c := range cmds {
		names = append(names, c.Name)
	}
	if !reflect.DeepEqual(names, []string{"first", "second", "third"}) {
		t.Fatalf("names = %v", names)
	}
	if rest != " and  and " {
		t.Fatalf("rest = %q", rest)
	}
}

func TestExtract_SentinelInsideFenceIsNotDoubleCounted(t *testing.T) {
	buf := "```json-rpc\n{\"jsonrpc\":\"2.0\",\"method\":\"note\",\"params\":{\"text\":\"TOOL_START x TOOL_END\"}}\n```"
	_, cmds := newTestExtractor().Extract(buf)
	if len(cmds) != 1 || cmds[0].Name != "note" {
		t.Fatalf("unexpected commands: %+v", cmds)
	}
}

func TestTrim(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "short", in: "hi", want: "hi"},
		{name: "keeps possible partial marker", in: "Hello there TOOL_STAR", want: " TOOL_STAR"},
		{name: "keeps from sentinel opener", in: "long preamble TOOL_START {\"na", want: "TOOL_START {\"na"},
		{name: "keeps from earliest opener", in: "x ```json-rpc\n{ TOOL_START", want: "```json-rpc\n{ TOOL_START"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Trim(tc.in); got != tc.want {
				t.Fatalf("Trim(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestTrim_CapsRunawayBlock(t *testing.T) {
	in := "TOOL_START " + strings.Repeat("x", maxScanBuffer)
	got := Trim(in)
	if len(got) != len(FenceOpen)-1 {
		t.Fatalf("len(Trim) = %d, want %d", len(got), len(FenceOpen)-1)
	}
}
