package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"bankchat/internal/agent"
	oaiclient "bankchat/internal/agent/openai"
	"bankchat/internal/config"

	"github.com/spf13/cobra"
)

type pingOptions struct {
	model   string
	baseURL string
	apiKey  string
	timeout time.Duration
}

func newPingCmd(root *rootOptions) *cobra.Command {
	opts := &pingOptions{}
	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Check that the completion endpoint answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			return runPing(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&opts.model, "model", "m", "", "Model name (default from config)")
	flags.StringVar(&opts.baseURL, "base-url", "", "Override base URL (trailing /v1 is ok)")
	flags.StringVar(&opts.apiKey, "api-key", "", "Override API key")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall timeout")
	return cmd
}

func runPing(ctx context.Context, cfg config.Config, opts *pingOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	baseURL := firstNonEmpty(opts.baseURL, cfg.URL)
	if baseURL == "" {
		return fmt.Errorf("missing url: set %s or configure url in %s", config.EnvBaseURL, config.DefaultPath())
	}
	timeout := opts.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := oaiclient.CheckReachable(ctx, baseURL); err != nil {
		return err
	}
	client, err := oaiclient.New(oaiclient.Options{
		APIKey:  firstNonEmpty(opts.apiKey, cfg.Token),
		BaseURL: baseURL,
	})
	if err != nil {
		return fmt.Errorf("init client: %w", err)
	}
	got, err := client.Complete(ctx, agent.Prompt{
		Options: agent.ModelOptions{Model: firstNonEmpty(opts.model, cfg.Model), MaxTokens: 16},
		Messages: []agent.Message{
			{Role: agent.RoleSystem, Content: "Reply with exactly: pong"},
			{Role: agent.RoleUser, Content: "ping"},
		},
	})
	if err != nil {
		return err
	}
	if strings.TrimSpace(got) == "" {
		return errors.New("empty completion")
	}
	_, _ = fmt.Fprintf(out, "ok: %s\n", strings.TrimSpace(got))
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
