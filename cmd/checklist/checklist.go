// Package checklist provides the checklist and catalogue commands
package checklist

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fieldscan/fieldscan/internal/app"
	"github.com/fieldscan/fieldscan/internal/backend"
	domain "github.com/fieldscan/fieldscan/internal/checklist"
)

type options struct {
	context  string
	location string
	template bool
	offline  bool
}

// Command creates the checklist command
func Command(loader *app.Loader) *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:   "checklist <equipment-code>",
		Short: "Show the inspection checklist for an equipment code",
		Long: `Serves the checklist from the local cache when it is younger than the cache TTL,
otherwise fetches it from the backend and caches it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, loader, args[0], opts)
		},
	}

	cmd.Flags().StringVar(&opts.context, "context", "", "Free-text context for checklist generation")
	cmd.Flags().StringVar(&opts.location, "location", "", "Location of the equipment")
	cmd.Flags().BoolVar(&opts.template, "template", false, "Print a submission template instead of the checklist")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Do not contact the backend")

	return cmd
}

func run(cmd *cobra.Command, loader *app.Loader, code string, opts options) error {
	ctx := cmd.Context()
	a, err := loader.Open(ctx)
	if err != nil {
		return err
	}
	if !opts.offline {
		a.Monitor.Check(ctx)
	}

	cl, err := a.Offline.GetChecklist(ctx, backend.FetchRequest{
		EquipmentCode: code,
		Context:       opts.context,
		Location:      opts.location,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.template {
		performer := ""
		if creds, ok := a.Auth.Current(); ok {
			performer = creds.Subject
		}
		return writeYAML(out, &domain.Submission{
			EquipmentCode: cl.EquipmentCode,
			PerformedBy:   performer,
			Results:       domain.NewResults(cl.Checkpoints),
		})
	}

	printChecklist(out, cl)
	return nil
}

func printChecklist(out io.Writer, cl *domain.Checklist) {
	source := "backend"
	if cl.FromCache {
		source = fmt.Sprintf("cache, %s old", time.Since(cl.CachedAt).Round(time.Minute))
	}
	fmt.Fprintf(out, "%s: %d checkpoints (%s)\n", cl.EquipmentCode, len(cl.Checkpoints), source)
	if cl.EstimatedMinutes > 0 {
		fmt.Fprintf(out, "estimated time: %d min\n", cl.EstimatedMinutes)
	}
	fmt.Fprintln(out)

	for _, cp := range cl.Checkpoints {
		crit := ""
		if cp.Criticality != nil {
			crit = " [" + cp.Criticality.String() + "]"
		}
		fmt.Fprintf(out, "%3d. %s%s\n", cp.ID, cp.Text, crit)
		if cp.Description != "" {
			fmt.Fprintf(out, "     %s\n", cp.Description)
		}
		if cp.IsMeasurement() {
			fmt.Fprintln(out, "     (measurement)")
		}
	}

	if len(cl.Tips) > 0 {
		fmt.Fprintln(out, "\ntips:")
		for _, tip := range cl.Tips {
			fmt.Fprintf(out, "  - %s\n", tip)
		}
	}
}

func writeYAML(out io.Writer, v any) error {
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(v)
}
