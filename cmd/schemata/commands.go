package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/lychee-technology/schemata"
	"github.com/lychee-technology/schemata/factory"
	"github.com/spf13/cobra"
)

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Parse and validate an application definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			def, err := schemata.ParseApplication(text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d models, %d endpoints\n", def.Name, len(def.Models), len(def.API.Endpoints))
			return nil
		},
	}
}

func newSyncCmd(config *schemata.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <handle> <file>",
		Short: "Install a definition and migrate the application's storage",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			components, err := factory.NewEngineWithConfig(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer components.Close()
			def, err := components.Host.Sync(cmd.Context(), args[0], text)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "synced %s (%d models)\n", def.Name, len(def.Models))
			return nil
		},
	}
}

func newAppCmd(config *schemata.Config) *cobra.Command {
	appCmd := &cobra.Command{Use: "app", Short: "Manage applications"}

	var owner, name string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register an application for a platform user",
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := factory.NewEngineWithConfig(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer components.Close()
			app, err := components.Host.CreateApp(cmd.Context(), owner, name)
			if err != nil {
				return err
			}
			return printJSON(cmd, app)
		},
	}
	createCmd.Flags().StringVar(&owner, "owner", "", "owning platform user")
	createCmd.Flags().StringVar(&name, "name", "", "application name")
	_ = createCmd.MarkFlagRequired("owner")
	_ = createCmd.MarkFlagRequired("name")

	appCmd.AddCommand(createCmd)
	return appCmd
}

func newUserCmd(config *schemata.Config) *cobra.Command {
	userCmd := &cobra.Command{Use: "user", Short: "Manage platform users"}

	var username, email string
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Register a platform user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !schemata.ValidIdentifier(username) {
				return schemata.NewValidationError("username", fmt.Sprintf("%q is not a valid identifier", username))
			}
			registry, err := factory.NewRegistry(cmd.Context(), config.Registry)
			if err != nil {
				return err
			}
			defer registry.Close()
			user := &schemata.UserAccount{Username: username, Email: email}
			if err := registry.CreateUser(cmd.Context(), user); err != nil {
				return err
			}
			return printJSON(cmd, user)
		},
	}
	createCmd.Flags().StringVar(&username, "username", "", "user name")
	createCmd.Flags().StringVar(&email, "email", "", "email address")
	_ = createCmd.MarkFlagRequired("username")

	userCmd.AddCommand(createCmd)
	return userCmd
}

func newStaticCmd(config *schemata.Config) *cobra.Command {
	staticCmd := &cobra.Command{Use: "static", Short: "Manage static endpoint files"}
	staticCmd.AddCommand(&cobra.Command{
		Use:   "put <handle> <localfile> <src>",
		Short: "Upload a file served by a static file endpoint",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.Open(args[2])
			if err != nil {
				return err
			}
			defer src.Close()
			store, err := factory.NewStaticStore(cmd.Context(), config)
			if err != nil {
				return err
			}
			return store.Put(cmd.Context(), args[0], args[1], src)
		},
	})
	return staticCmd
}

func newMigrateRegistryCmd(config *schemata.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate-registry",
		Short: "Apply the registry schema migrations to PostgreSQL",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Registry
			cfg.Driver = "postgres"
			registry, err := factory.NewRegistry(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			registry.Close()
			fmt.Fprintln(cmd.OutOrStdout(), "registry schema is up to date")
			return nil
		},
	}
}

func newExportCmd(config *schemata.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "export <handle> <model> <out.duckdb>",
		Short: "Copy a model's rows into a DuckDB file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			components, err := factory.NewEngineWithConfig(cmd.Context(), config)
			if err != nil {
				return err
			}
			defer components.Close()
			n, err := components.Host.Export(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported %d rows\n", n)
			return nil
		},
	}
}
