package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/crycare/cry-pipeline/clients"
	"github.com/crycare/cry-pipeline/orchestrator"
)

func newPredictCommand(ctx *commandContext) *cobra.Command {
	var serverURL string
	var asJSON bool
	var record bool

	cmd := &cobra.Command{
		Use:   "predict <audio-file>",
		Short: "Classify an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			var res orchestrator.Result

			if serverURL != "" {
				pred, err := clients.NewHTTP().Predict(cmd.Context(), serverURL, path)
				if err != nil {
					var apiErr *clients.APIError
					if errors.As(err, &apiErr) {
						res = orchestrator.Result{Err: &orchestrator.Error{Msg: apiErr.Message}, Stage: orchestrator.StageError}
					} else {
						return err
					}
				} else {
					res = orchestrator.Result{Prediction: pred, Stage: orchestrator.StageDone}
				}
			} else {
				conf, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				bundle, err := ctx.models()
				if err != nil {
					return err
				}
				p, err := orchestrator.NewPipeline(conf, bundle, orchestrator.WithLogger(ctx.log()))
				if err != nil {
					return err
				}
				res = p.ProcessAndPredict(cmd.Context(), path)
				if record && res.OK() {
					store, err := ctx.history()
					if err != nil {
						return err
					}
					if _, err := store.Append(filepath.Base(path), *res.Prediction); err != nil {
						return fmt.Errorf("save history: %w", err)
					}
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else if res.OK() {
				fmt.Fprintln(out, renderPrediction(*res.Prediction))
			}
			if !res.OK() {
				return errors.New(res.Err.Error())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&serverURL, "server", "", "Send the file to a running server instead of predicting locally")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&record, "record", false, "Append a local prediction to the history file")
	return cmd
}

func renderPrediction(p orchestrator.Prediction) string {
	rows := [][]string{
		{"RandomForest", p.RandomForest},
		{"KNN", p.KNN},
		{"XGBoost", p.XGBoost},
		{"Overall", p.Overall},
		{"Segments", strconv.Itoa(p.SegmentsProcessed)},
	}
	return renderTable([]column{{title: "Model"}, {title: "Label"}}, rows)
}
