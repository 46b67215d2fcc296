package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"penguinlab/penguins"
)

func newRangesCommand(configPath func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "ranges",
		Short: "Show the accepted input ranges and defaults",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := loadRuntime(configPath())
			if err != nil {
				return err
			}
			defer rt.close()

			reference, err := rt.source.Load(cmd.Context())
			if err != nil {
				return err
			}
			ranges := reference.Ranges()

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d reference rows from %s\n\n", reference.Len(), rt.source.Location())
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "FEATURE\tMIN\tMAX\tDEFAULT")
			for _, feature := range penguins.NumericFeatures() {
				b := ranges.Numeric[feature]
				fmt.Fprintf(tw, "%s\t%g\t%g\t%.2f\n", feature, b.Min, b.Max, b.Mean)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(w, "\nisland: %v\nsex: %v\n", ranges.Islands, ranges.Sexes)
			return nil
		},
	}
}
