package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/qc-labelsync/internal/app"
	"github.com/tendant/qc-labelsync/pkg/labelsync"
	"github.com/tendant/qc-labelsync/pkg/labelsync/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type globalFlags struct {
	envFile string
	token   string
}

func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "labelsync",
		Short: "Keep the image catalog and the annotation service in sync",
		Long: `labelsync mirrors catalog products into annotation projects, imports
stored product images as annotation tasks and repairs the duplicate projects
and tasks the annotation service accumulates.

Configuration is read from the environment and an optional .env file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&flags.token, "token", "", "annotation service token (defaults to LABEL_STUDIO_TOKEN)")

	rootCmd.AddCommand(newGatewayCommand(flags))
	rootCmd.AddCommand(newReconcileCommand(flags))
	rootCmd.AddCommand(newEnsureProjectCommand(flags))
	rootCmd.AddCommand(newImportCommand(flags))
	rootCmd.AddCommand(newStatsCommand(flags))
	rootCmd.AddCommand(newTestConnectionCommand(flags))

	return rootCmd
}

// withApp builds the application for one command run
func withApp(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context, a *app.App, syncer *labelsync.Syncer) error) error {
	cfg, err := config.Load(flags.envFile)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := app.New(ctx, cfg, app.NewLogger(cfg, cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer a.Close()

	syncer := a.Syncer
	if flags.token != "" {
		syncer = syncer.ForClient(a.Client.ForToken(flags.token))
	}
	return fn(ctx, a, syncer)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
