package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"bankchat/internal/agent"
	"bankchat/internal/surface"
	"bankchat/internal/tools"
)

type tableArgs struct {
	Headers []string `json:"headers" jsonschema:"required,description=Column headers"`
	Rows    [][]any  `json:"rows" jsonschema:"required,description=Row cells in header order"`
}

type messageArgs struct {
	Text string `json:"text" jsonschema:"required"`
	Role string `json:"role,omitempty" jsonschema:"enum=assistant,enum=system"`
}

type imageArgs struct {
	URL string `json:"url" jsonschema:"required"`
	Alt string `json:"alt,omitempty"`
}

type quickRepliesArgs struct {
	Options []string `json:"options" jsonschema:"required,minItems=1"`
}

type builtin struct {
	name        string
	description string
	args        any
	handler     tools.HandlerFunc
}

var builtins = []builtin{
	{"render_table", "Render a table of rows under the given headers", tableArgs{}, renderTable},
	{"render_chart", "Render a single-series chart", surface.ChartSpec{}, renderChart},
	{"show_message", "Show a standalone message bubble", messageArgs{}, showMessage},
	{"show_image", "Show an image by URL", imageArgs{}, showImage},
	{"quick_replies", "Offer one-tap reply options", quickRepliesArgs{}, quickReplies},
}

// newRegistry 注册内置命令，并以消息形式渲染 catalog 中声明的额外命令。
func newRegistry(catalogPath string) (*tools.Registry, error) {
	reg := tools.NewRegistry()
	for _, b := range builtins {
		reg.Register(b.name, b.handler, &tools.Metadata{
			Description: b.description,
			Parameters:  tools.ParametersFor(b.args),
		})
	}
	cat, err := tools.LoadCatalog(catalogPath)
	if err != nil {
		return nil, err
	}
	tools.RegisterCatalog(reg, cat, showCatalogCommand)
	return reg, nil
}

func surfaceOf(inv tools.Invocation) (surface.Surface, error) {
	s, ok := inv.App.(surface.Surface)
	if !ok || s == nil {
		return nil, errors.New("no rendering surface attached")
	}
	return s, nil
}

func decodeArgs(cmd tools.Command, out any) error {
	data, err := json.Marshal(cmd.Arguments)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

func renderTable(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	var args tableArgs
	if err := decodeArgs(inv.Command, &args); err != nil {
		return err
	}
	rows := make([][]string, 0, len(args.Rows))
	for _, row := range args.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = formatCell(cell)
		}
		rows = append(rows, cells)
	}
	s.AddTable(args.Headers, rows)
	return nil
}

func formatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(data)
	}
}

func renderChart(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	var spec surface.ChartSpec
	if err := decodeArgs(inv.Command, &spec); err != nil {
		return err
	}
	s.AddChart(spec)
	return nil
}

func showMessage(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	var args messageArgs
	if err := decodeArgs(inv.Command, &args); err != nil {
		return err
	}
	role := agent.RoleAssistant
	if args.Role != "" {
		role = agent.ParseRole(args.Role)
	}
	s.AddMessage(role, args.Text)
	return nil
}

func showImage(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	var args imageArgs
	if err := decodeArgs(inv.Command, &args); err != nil {
		return err
	}
	if strings.TrimSpace(args.URL) == "" {
		return errors.New("show_image: url is required")
	}
	s.AddImage(args.URL, args.Alt)
	return nil
}

func quickReplies(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	var args quickRepliesArgs
	if err := decodeArgs(inv.Command, &args); err != nil {
		return err
	}
	s.AddQuickReply(args.Options)
	return nil
}

func showCatalogCommand(_ context.Context, inv tools.Invocation) error {
	s, err := surfaceOf(inv)
	if err != nil {
		return err
	}
	s.AddMessage(agent.RoleSystem, inv.Command.Name+" "+formatCell(inv.Command.Arguments))
	return nil
}
