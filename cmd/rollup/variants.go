package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newVariantsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the configured pipeline variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, variants, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTABLE\tSOURCE\tMODE\tWINDOW\tFINGERPRINT")
			for _, v := range variants.Variants() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", v.Name, v.Table, v.Source, v.Mode, v.Window, v.Fingerprint[:12])
			}
			return w.Flush()
		},
	}
}
