package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ring2236/ESA-DGR/internal/eval"
	"github.com/ring2236/ESA-DGR/internal/logging"
)

var evalCmd = &cobra.Command{
	Use:   "eval <prediction> <gold>",
	Short: "Score predictions against gold answers (EM, F1, precision, recall)",
	Long: `Scores a prediction file against a gold file mapping ids to answers.
The prediction file may be an {id: answer} object or a result file written by
esa run, in which case each record's Answer_final is used.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		level, _ := cmd.Flags().GetString("log-level")
		format, _ := cmd.Flags().GetString("log-format")
		logger, err := logging.New(level, format)
		if err != nil {
			return err
		}

		preds, err := eval.LoadPredictions(args[0])
		if err != nil {
			return err
		}
		gold, err := eval.LoadGold(args[1])
		if err != nil {
			return err
		}
		m, err := eval.Evaluate(preds, gold, logger)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(m, "", "    ")
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Evaluation Metrics:\n%s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evalCmd)
}
