package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"penguinlab/db"
	"penguinlab/ml"
	"penguinlab/penguins"
	"penguinlab/report"
)

// hyperparameterFlags binds the forest settings shared by predict and evaluate.
type hyperparameterFlags struct {
	treeCount   int
	maxFeatures int
	maxDepth    int
	seed        int64
}

func (f *hyperparameterFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.treeCount, "trees", 0, "number of trees (0 selects the default)")
	cmd.Flags().IntVar(&f.maxFeatures, "max-features", 0, "features considered per split (0 selects floor(sqrt(columns)))")
	cmd.Flags().IntVar(&f.maxDepth, "max-depth", 0, "maximum tree depth (0 is unlimited)")
	cmd.Flags().Int64Var(&f.seed, "seed", 0, "random seed (unset is time-based)")
}

func (f *hyperparameterFlags) overrides(cmd *cobra.Command) *ml.Hyperparameters {
	hp := &ml.Hyperparameters{
		TreeCount:   f.treeCount,
		MaxFeatures: f.maxFeatures,
		MaxDepth:    f.maxDepth,
	}
	if cmd.Flags().Changed("seed") {
		seed := f.seed
		hp.Seed = &seed
	}
	return hp
}

func newPredictCommand(configPath func() string) *cobra.Command {
	var (
		level      string
		island     string
		sex        string
		billLength float64
		billDepth  float64
		flipper    float64
		bodyMass   float64
		asCSV      bool
		outPath    string
		hpFlags    hyperparameterFlags
	)

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the species of one penguin",
		Long: `Trains a random forest on the reference data and classifies the described penguin.
Unset measurements default to the reference mean; unset categories to the first option.
Forest flags apply to the advanced level only.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := ml.ParseLevel(level)
			if err != nil {
				return err
			}
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

			query := ranges.Default()
			flags := cmd.Flags()
			if flags.Changed("island") {
				query.Island = penguins.Island(island)
			}
			if flags.Changed("sex") {
				query.Sex = penguins.Sex(sex)
			}
			if flags.Changed("bill-length") {
				query.BillLengthMM = billLength
			}
			if flags.Changed("bill-depth") {
				query.BillDepthMM = billDepth
			}
			if flags.Changed("flipper-length") {
				query.FlipperLengthMM = flipper
			}
			if flags.Changed("body-mass") {
				query.BodyMassG = bodyMass
			}
			if err := ranges.Validate(query); err != nil {
				return err
			}

			cfg := rt.config
			result, err := ml.NewPredictor(rt.logger, nil).Predict(cmd.Context(), ml.Request{
				Query:           query,
				Reference:       reference,
				Hyperparameters: lvl.Hyperparameters(cfg.Model.Defaults, cfg.Model.Advanced, hpFlags.overrides(cmd)),
				Details:         lvl.Details(),
			})
			if err != nil {
				return err
			}

			store, err := rt.openStore()
			if err != nil {
				return err
			}
			if store != nil {
				defer store.Close()
				if err := store.SavePrediction(db.NewPredictionRecord(lvl, query, result)); err != nil {
					rt.logger.Warn("failed to save prediction", zap.Error(err))
				}
			}

			if outPath != "" {
				return writeCSVFile(outPath, report.NewRow(query, result))
			}
			out := cmd.OutOrStdout()
			if asCSV {
				return report.WriteCSV(out, report.NewRow(query, result))
			}
			return printResult(out, lvl, result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&level, "level", string(ml.Intermediate), "difficulty level: easy, intermediate or advanced")
	flags.StringVar(&island, "island", "", "Biscoe, Dream or Torgersen")
	flags.StringVar(&sex, "sex", "", "male or female")
	flags.Float64Var(&billLength, "bill-length", 0, "bill length in mm")
	flags.Float64Var(&billDepth, "bill-depth", 0, "bill depth in mm")
	flags.Float64Var(&flipper, "flipper-length", 0, "flipper length in mm")
	flags.Float64Var(&bodyMass, "body-mass", 0, "body mass in g")
	flags.BoolVar(&asCSV, "csv", false, "write the prediction table as CSV")
	flags.StringVarP(&outPath, "output", "o", "", "write the CSV table to a file")
	hpFlags.register(cmd)
	return cmd
}

// writeCSVFile reports a failed close so a short write is not mistaken for an export.
func writeCSVFile(path string, row report.Row) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}()
	return report.WriteCSV(file, row)
}

func printResult(w io.Writer, level ml.Level, result *ml.Result) error {
	fmt.Fprintf(w, "species: %s\n", result.Species)
	if !level.ShowsProbabilities() {
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSPECIES\tPROBABILITY")
	for _, s := range penguins.AllSpecies() {
		fmt.Fprintf(tw, "%s\t%.4f\n", s, result.Probabilities[s])
	}
	if !level.Details() {
		return tw.Flush()
	}

	hp := result.Hyperparameters
	fmt.Fprintf(tw, "\ntrees=%d max_features=%d max_depth=%d seed=%d\n", hp.TreeCount, hp.MaxFeatures, hp.MaxDepth, *hp.Seed)
	fmt.Fprintln(tw, "\nFEATURE\tIMPORTANCE")
	for _, fi := range result.FeatureImportances {
		fmt.Fprintf(tw, "%s\t%.4f\n", fi.Feature, fi.Value)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintln(w, "\ntraining confusion matrix (rows actual, columns predicted):")
	return printConfusion(w, result.ConfusionMatrix)
}

func printConfusion(w io.Writer, matrix *ml.ConfusionMatrix) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, label := range matrix.Labels {
		fmt.Fprintf(tw, "\t%s", label)
	}
	fmt.Fprintln(tw)
	for i, label := range matrix.Labels {
		fmt.Fprint(tw, label)
		for _, count := range matrix.Counts[i] {
			fmt.Fprintf(tw, "\t%d", count)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
