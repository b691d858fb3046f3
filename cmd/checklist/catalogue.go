package checklist

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldscan/fieldscan/internal/app"
	"github.com/fieldscan/fieldscan/internal/equipment"
	"github.com/fieldscan/fieldscan/internal/logger"
)

// CatalogueCommand creates the catalogue command
func CatalogueCommand(loader *app.Loader) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "List equipment codes known to the backend",
		Long:  "Refreshes the equipment-code catalogue when online and falls back to the stored copy otherwise.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := loader.Open(ctx)
			if err != nil {
				return err
			}

			var defs []equipment.Definition
			if !offline && a.Monitor.Check(ctx).Reachable {
				defs, err = a.Offline.RefreshCatalogue(ctx, a.Backend)
				if err != nil {
					a.Log.Warn("catalogue refresh failed, showing stored copy", logger.Error(err))
				}
			} else {
				defs, err = a.Offline.CachedEquipmentCodes(ctx)
				if err != nil {
					return err
				}
			}
			if len(defs) == 0 {
				defs = equipment.DefaultTable().Definitions()
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CODE\tNAME\tCATEGORY")
			for _, d := range defs {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Code, d.Name, d.Category)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "Show the stored catalogue without contacting the backend")
	return cmd
}
