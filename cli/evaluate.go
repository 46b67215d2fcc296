package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"penguinlab/ml"
	"penguinlab/penguins"
)

func newEvaluateCommand(configPath func() string) *cobra.Command {
	var (
		testRatio float64
		hpFlags   hyperparameterFlags
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Score the forest on a held-out part of the reference data",
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
			// Flags override the configured defaults.
			hp := ml.Advanced.Hyperparameters(rt.config.Model.Defaults, rt.config.Model.Defaults, hpFlags.overrides(cmd))
			eval, err := ml.EvaluateHoldout(reference, hp, testRatio)
			if err != nil {
				return err
			}

			store, err := rt.openStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				if err := store.SaveEvaluation("random_forest", eval.Hyperparameters, eval); err != nil {
					rt.logger.Warn("failed to save evaluation", zap.Error(err))
				}
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "train=%d test=%d accuracy=%.4f\n\n", eval.TrainSize, eval.TestSize, eval.Accuracy)
			tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "SPECIES\tPRECISION\tRECALL")
			for _, s := range penguins.AllSpecies() {
				fmt.Fprintf(tw, "%s\t%.4f\t%.4f\n", s, eval.Precision[s], eval.Recall[s])
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			fmt.Fprintln(w, "\nholdout confusion matrix (rows actual, columns predicted):")
			return printConfusion(w, eval.ConfusionMatrix)
		},
	}
	cmd.Flags().Float64Var(&testRatio, "test-ratio", 0.2, "share of rows held out for scoring")
	hpFlags.register(cmd)
	return cmd
}
