package cli

import (
	"fmt"
	"path"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/urfave/cli/v2"
)

var (
	modelFileFlag = &cli.StringFlag{
		Name:  "model-file",
		Usage: "Path to the model artifact",
	}

	treesFlag = &cli.IntFlag{
		Name:  "trees",
		Usage: fmt.Sprintf("Number of trees in the ensemble (default: %d)", model.TreesDefault),
		Value: model.TreesDefault,
	}

	seedFlag = &cli.Uint64Flag{
		Name:  "seed",
		Usage: "Seed for the deterministic split and ensemble fit",
		Value: model.SeedDefault,
	}

	splitFlag = &cli.Float64Flag{
		Name:  "split",
		Usage: "Held-out evaluation fraction",
		Value: model.TestFractionDefault,
	}

	trainCmd = &cli.Command{
		Name:    "train",
		Aliases: []string{"t"},
		Usage:   "Train the churn classifier on the feature table",
		UsageText: `churnctl train                    # fit 100 trees with the default seed
   churnctl train --trees 250        # larger ensemble
   churnctl train --seed 7           # different deterministic split`,
		Action: cmdTrain,
		Flags: []cli.Flag{
			modelFileFlag,
			treesFlag,
			seedFlag,
			splitFlag,
		},
	}
)

func cmdTrain(c *cli.Context) error {
	cfg := getConfig(c)

	vectors, err := data.GetFeatureVectors(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to read feature table: %w", err)
	}

	res, err := model.Train(vectors, model.TrainConfig{
		Trees:        c.Int(treesFlag.Name),
		Seed:         c.Uint64(seedFlag.Name),
		TestFraction: c.Float64(splitFlag.Name),
		ModelPath:    getModelPath(c),
	})
	if err != nil {
		return fmt.Errorf("failed to train model: %w", err)
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func getModelPath(c *cli.Context) string {
	if p := c.String(modelFileFlag.Name); p != "" {
		return p
	}
	return path.Join(getHomeDir(), model.ModelFileName)
}
