package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-drift/arcgis/pkg/sdk"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "arcgisd version %s (built %s)\n", Version, BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "ArcGIS SDK %s\n", sdk.APIVersion)
		},
	}
}
