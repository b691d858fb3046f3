// Package voice provides the voice command
package voice

import (
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	intvoice "github.com/fieldscan/fieldscan/internal/voice"
)

// Command creates the voice command
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "voice <transcript>",
		Short: "Extract status, measurements and a suggested action from a transcript",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis := intvoice.NewExtractor().Analyze(strings.Join(args, " "))
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(analysis)
		},
	}
}
