package main

import (
	"fmt"
	"strings"

	"bankchat/internal/config"
	"bankchat/internal/logger"

	"github.com/spf13/cobra"
)

type rootOptions struct {
	cfgPath   string
	overrides []string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "bankchat",
		Short:         "Streaming banking assistant client and Bedrock gateway",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfgPath, "config", "", "Path to config file (default ~/.bankchat/config.toml)")
	flags.StringArrayVarP(&opts.overrides, "config-override", "c", nil, "Override config value key=value (repeatable)")
	flags.StringVar(&opts.logLevel, "log-level", "", "Log level (trace|debug|info|warn|error)")

	root.AddCommand(
		newChatCmd(opts),
		newServeCmd(opts),
		newPingCmd(opts),
		newCommandsCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// load 读取配置文件，依次应用 -c 覆盖与 --log-level，并校验结果。
func (o *rootOptions) load() (config.Config, error) {
	cfg, err := config.Load(o.cfgPath)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	cfg = config.ApplyKVOverrides(cfg, o.overrides)
	if lvl := strings.TrimSpace(o.logLevel); lvl != "" {
		cfg.LogLevel = lvl
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if cfg.LogLevel != "" {
		if err := logger.SetLevel(cfg.LogLevel); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}
