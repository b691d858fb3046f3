// Package version provides the version command
package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/buildinfo"
)

// Command creates the version command
func Command(build *buildinfo.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "fieldscan %s (built %s)\n", build.GetVersion(), build.GetBuildDate())
		},
	}
}
