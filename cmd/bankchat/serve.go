package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"bankchat/internal/gateway"

	"github.com/spf13/cobra"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var listen, region string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the OpenAI-compatible gateway in front of AWS Bedrock",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if v := strings.TrimSpace(listen); v != "" {
				cfg.Gateway.Listen = v
			}
			if v := strings.TrimSpace(region); v != "" {
				cfg.Gateway.Region = v
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			client, err := gateway.NewBedrock(ctx, cfg.Gateway.Region)
			if err != nil {
				return err
			}
			return gateway.New(cfg.Gateway, client, nil).Run(ctx, cfg.Gateway.Listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config, :8000)")
	cmd.Flags().StringVar(&region, "region", "", "AWS region (default AWS_REGION)")
	return cmd
}
