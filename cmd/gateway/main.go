// Command gateway é o gateway HTTP na frente do serviço de IA do PageWise:
// persiste as mensagens de chat por uma fila com retry e aplica rate limit
// na geração de resumos.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pagewise-gateway/internal/config"
	"pagewise-gateway/internal/observability"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "gateway",
		Short:        "PageWise gateway: chat message queue and rate limiting",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")

	load := func(cmd *cobra.Command) (config.Config, error) {
		cfg, err := config.Load(envFile)
		if err != nil {
			return config.Config{}, err
		}
		if cmd.Flags().Changed("listen") {
			cfg.HTTP.ListenAddr, _ = cmd.Flags().GetString("listen")
		}
		observability.InitLogger(cfg.Logging.Level, cfg.Logging.Format)
		return cfg, nil
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, cancel := withSignals(cmd.Context())
			defer cancel()
			return runServe(ctx, cfg)
		},
	}
	serve.Flags().String("listen", "", "listen address (overrides LISTEN_ADDR)")

	root.AddCommand(serve, newDLQCmd(load))
	return root
}

func withSignals(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
