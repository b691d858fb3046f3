// Package cmd assembles the fieldscan command line
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/cmd/agent"
	"github.com/fieldscan/fieldscan/cmd/checklist"
	"github.com/fieldscan/fieldscan/cmd/classify"
	"github.com/fieldscan/fieldscan/cmd/login"
	"github.com/fieldscan/fieldscan/cmd/queue"
	"github.com/fieldscan/fieldscan/cmd/submit"
	"github.com/fieldscan/fieldscan/cmd/version"
	"github.com/fieldscan/fieldscan/cmd/voice"
	"github.com/fieldscan/fieldscan/internal/app"
)

// RootCommand creates and returns the root command
func RootCommand(loader *app.Loader) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fieldscan",
		Short:         "FieldScan maintenance CLI",
		Long:          "Identify equipment, fetch inspection checklists and submit results, online or offline.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, loader)

	subcommands := []*cobra.Command{
		classify.Command(),
		classify.TagCommand(),
		voice.Command(),
		checklist.Command(loader),
		checklist.CatalogueCommand(loader),
		submit.Command(loader),
		queue.Command(loader),
		login.Command(loader),
		login.LogoutCommand(loader),
		agent.Command(loader),
		version.Command(loader.Build),
	}
	rootCmd.AddCommand(subcommands...)

	rootCmd.PersistentPostRun = func(cmd *cobra.Command, args []string) {
		loader.Close()
	}

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, loader *app.Loader) {
	rootCmd.PersistentFlags().StringVarP(&loader.ConfigFile, "config", "c", "", "Path to config.yaml (default: search ~/.config/fieldscan and the working directory)")
	rootCmd.PersistentFlags().BoolVarP(&loader.Debug, "debug", "d", false, "Enable debug output")
}
