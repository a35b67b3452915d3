package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/lychee-technology/schemata"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	config := schemata.LoadConfigFromEnv()
	rootCmd := &cobra.Command{
		Use:           "schemata",
		Short:         "Manage schema-driven applications",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&config.Storage.DataDir, "data-dir", config.Storage.DataDir, "directory holding application data")
	rootCmd.PersistentFlags().StringVar(&config.Registry.Driver, "registry", config.Registry.Driver, "registry backend (memory or postgres)")

	rootCmd.AddCommand(
		newValidateCmd(),
		newSyncCmd(config),
		newAppCmd(config),
		newUserCmd(config),
		newStaticCmd(config),
		newMigrateRegistryCmd(config),
		newExportCmd(config),
	)
	return rootCmd
}
