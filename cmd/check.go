package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-xref/internal/resolve"
)

var checkCmd = &cobra.Command{
	Use:          "check NPI...",
	Short:        "Checksum-validate NPIs",
	Long:         "Validates one or more National Provider Identifiers against the ISO 7812 Luhn check digit. Exits non-zero if any identifier is invalid.",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		bad := 0
		for _, arg := range args {
			npi, ok := resolve.NormalizeNPI(arg)
			if ok {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tvalid\n", npi)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\tinvalid\n", arg)
				bad++
			}
		}
		if bad > 0 {
			return eris.Errorf("%d of %d identifiers failed validation", bad, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
