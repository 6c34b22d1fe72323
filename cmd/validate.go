// File: cmd/validate.go
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brit/playwrightium/internal/scenario"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <flow.yaml>...",
		Short: "Parse flow files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs error
			for _, p := range args {
				sc, err := scenario.ParseFile(p)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "invalid  %v\n", err)
					errs = errors.Join(errs, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "ok       %s (%s, %d steps)\n", p, sc.Name, len(sc.Steps))
			}
			return errs
		},
	}
}
