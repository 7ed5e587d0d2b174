package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"bankchat/internal/surface"
	"bankchat/internal/tools"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newCommandsCmd(root *rootOptions) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "commands",
		Short: "List the commands the assistant may invoke",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			reg, err := newRegistry(cfg.Catalog)
			if err != nil {
				return err
			}
			return writeCommands(cmd.OutOrStdout(), reg, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "table", "Output format (table|json|yaml)")
	return cmd
}

// writeCommands 输出注册表中的命令；yaml 格式可直接作为 catalog 文件使用。
func writeCommands(out io.Writer, reg *tools.Registry, format string) error {
	schemas := reg.ExportMetadata()
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		data, err := json.MarshalIndent(schemas, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "yaml", "yml":
		cat := tools.Catalog{Commands: make([]tools.Metadata, 0, len(schemas))}
		for _, s := range schemas {
			cat.Commands = append(cat.Commands, s.Function)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(cat); err != nil {
			return err
		}
		return enc.Close()
	case "", "table":
		rows := make([][]string, 0, len(schemas))
		for _, s := range schemas {
			rows = append(rows, []string{s.Function.Name, s.Function.Description, parameterNames(s.Function.Parameters)})
		}
		surface.NewTerminal(out, 0).AddTable([]string{"Name", "Description", "Parameters"}, rows)
		return nil
	default:
		return fmt.Errorf("unknown format %q (want table, json or yaml)", format)
	}
}

func parameterNames(schema map[string]any) string {
	props, _ := schema["properties"].(map[string]any)
	required := map[string]bool{}
	if list, ok := schema["required"].([]any); ok {
		for _, r := range list {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}
	names := make([]string, 0, len(props))
	for name := range props {
		if required[name] {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
