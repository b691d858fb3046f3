// Package classify provides the classify and tag commands
package classify

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/classifier"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// Command creates the classify command
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "classify <text>...",
		Short: "Classify recognized text as equipment",
		Long:  "Runs each argument through the tag, lookup and keyword tiers and prints the match.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := classifier.New(equipment.DefaultTable(),
				classifier.WithLogger(logger.NewSlogLogger(nil, logger.LogLevelError, nil)))
			out := cmd.OutOrStdout()
			for _, text := range args {
				m, tier, ok := c.ClassifyWithTier(text)
				if !ok {
					fmt.Fprintf(out, "%q: no match\n", text)
					continue
				}
				fmt.Fprintf(out, "%q: %s %s (%s) confidence=%.2f tier=%s\n",
					text, m.Code, m.Name, m.Category, m.Confidence, tier)
			}
			return nil
		},
	}
	return cmd
}

// TagCommand creates the tag command
func TagCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tag <text>",
		Short: "Parse a structured equipment tag such as =360.01-PU001",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			tag, ok := equipment.DefaultTable().ParseTagCode(text)
			if !ok {
				return fmt.Errorf("%q is not a structured tag", text)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "tag:       %s\n", tag)
			fmt.Fprintf(out, "system:    %s\n", tag.System)
			if tag.SubSystem != "" {
				fmt.Fprintf(out, "subsystem: %s\n", tag.SubSystem)
			}
			if tag.Instance != "" {
				fmt.Fprintf(out, "instance:  %s\n", tag.Instance)
			}
			fmt.Fprintf(out, "component: %s %s (%s)\n", tag.Definition.Code, tag.Definition.Name, tag.Definition.Category)
			if !tag.Known {
				fmt.Fprintln(out, "note:      component code not in the equipment table")
			}
			return nil
		},
	}
}
