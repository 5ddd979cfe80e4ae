// Command configsync writes the LLM settings from the environment into the
// stored config, replacing whatever is there.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/followchat/followchat/internal/config"
	"github.com/followchat/followchat/internal/model"
	"github.com/followchat/followchat/internal/service"
	"github.com/followchat/followchat/internal/store"
	"github.com/followchat/followchat/pkg/logger"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "configsync",
		Short: "Overwrite the stored LLM config with LLM_* environment settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			log, err := logger.NewWithOptions(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile})
			if err != nil {
				return fmt.Errorf("failed to create logger: %w", err)
			}
			defer log.Sync()

			st, err := store.Open(store.Options{
				Driver: cfg.DatabaseDriver,
				DSN:    cfg.DatabaseDSN,
				Logger: log,
			})
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer st.Close()

			svc := service.NewConfigService(st, 0, log)
			return syncConfig(cmd.Context(), svc, cfg.LLM, dryRun, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the config that would be written without writing it")
	return cmd
}

// syncConfig replaces the stored config with the environment settings and
// prints the result.
func syncConfig(ctx context.Context, svc *service.ConfigService, env config.LLMDefaults, dryRun bool, out io.Writer) error {
	req := &model.UpdateConfigRequest{
		ModelName:   env.ModelName,
		Temperature: &env.Temperature,
	}
	if env.APIKey != "" {
		req.APIKey = &env.APIKey
	}
	if env.BaseURL != "" {
		req.BaseURL = &env.BaseURL
	}

	if dryRun {
		printConfig(out, "would write", req.ToConfig())
		return nil
	}

	cfg, err := svc.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to update config: %w", err)
	}
	printConfig(out, "updated", *cfg)
	return nil
}

func printConfig(out io.Writer, verb string, cfg model.LLMConfig) {
	apiKey := "unset"
	if cfg.Key() != "" {
		apiKey = "set"
	}
	fmt.Fprintf(out, "%s llm config:\n", verb)
	fmt.Fprintf(out, "  api_key:     %s\n", apiKey)
	fmt.Fprintf(out, "  base_url:    %s\n", cfg.Base())
	fmt.Fprintf(out, "  model_name:  %s\n", cfg.ModelName)
	fmt.Fprintf(out, "  temperature: %g\n", cfg.Temperature)
}
