package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/wrangler-run/wrangler/internal/app"
	"github.com/wrangler-run/wrangler/pkg/logging"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the supervisor, restoring and supervising registered processes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			logging.Init(logging.ParseLevel(cfg.LogLevel), os.Stderr)

			workDir, err := os.Getwd()
			if err != nil {
				return err
			}

			application, err := app.NewApplication(cfg, workDir)
			if err != nil {
				return err
			}

			return application.Run(context.Background())
		},
	}
}
