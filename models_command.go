package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crycare/cry-pipeline/models"
)

func newModelsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Work with the frozen model artifacts",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Load and describe the model directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := ctx.models()
			if err != nil {
				return err
			}
			fp, err := b.Fingerprint()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version %s (%s)\n", b.Manifest.Version, fp)
			fmt.Fprintln(out, renderBundle(b))
			return nil
		},
	})
	return cmd
}

func renderBundle(b *models.Bundle) string {
	a := b.Manifest.Artifacts
	schema := "scaler feature names"
	if len(b.Scaler.FeatureNames) == 0 {
		schema = "manifest feature_schema"
		if len(b.Manifest.FeatureSchema) == 0 {
			schema = "extractor field order"
		}
	}
	rows := [][]string{
		{"scaler", a.Scaler, fmt.Sprintf("%d features, schema from %s", b.Scaler.NFeatures(), schema)},
		{"pca", a.PCA, fmt.Sprintf("%d -> %d components, whiten=%t", b.PCA.NInputs(), b.PCA.NComponents(), b.PCA.Whiten)},
		{"random_forest", a.RandomForest, fmt.Sprintf("%d trees, %d classes", len(b.Forest.Trees), len(b.Forest.Classes))},
		{"knn", a.KNN, fmt.Sprintf("k=%d, %d points, weights=%s, p=%g", b.KNN.K, len(b.KNN.X), b.KNN.Weights, b.KNN.P)},
		{"xgboost", a.XGBoost, fmt.Sprintf("%s, %d classes, %d trees", b.Boost.Objective, b.Boost.NumClass, len(b.Boost.Trees))},
		{"label_encoder", a.LabelEncoder, strings.Join(b.Labels.Classes, ", ")},
	}
	return renderTable([]column{{title: "Artifact"}, {title: "File"}, {title: "Detail"}}, rows)
}
