package cli

import (
	"fmt"
	"path"
	"time"

	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/mchmarny/churnctl/pkg/model"
	"github.com/urfave/cli/v2"
)

const (
	scoresFileName = "churn_scores.csv"
	topDefault     = 10
)

var (
	outFlag = &cli.StringFlag{
		Name:  "out",
		Usage: "Path of the exported CSV report",
	}

	topFlag = &cli.IntFlag{
		Name:  "top",
		Usage: "Number of highest-risk customers to include in the summary",
		Value: topDefault,
	}

	scoreCmd = &cli.Command{
		Name:    "score",
		Aliases: []string{"s"},
		Usage:   "Score every customer and emit the ranked churn report",
		UsageText: `churnctl score                          # score with the saved model
   churnctl score --out /tmp/report.csv    # export the report elsewhere`,
		Action: cmdScore,
		Flags: []cli.Flag{
			modelFileFlag,
			outFlag,
			topFlag,
		},
	}
)

// ScoreRunResult is the encoded output of the score command.
type ScoreRunResult struct {
	Scored     int                 `json:"scored" yaml:"scored"`
	Bands      map[string]int      `json:"bands" yaml:"bands"`
	Top        []*data.ScoreResult `json:"top" yaml:"top"`
	OutputPath string              `json:"output_path" yaml:"outputPath"`
	Duration   string              `json:"duration" yaml:"duration"`
}

func cmdScore(c *cli.Context) error {
	start := time.Now()
	cfg := getConfig(c)

	artifact, err := model.LoadArtifact(getModelPath(c))
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}

	vectors, err := data.GetFeatureVectors(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to read feature table: %w", err)
	}

	results, err := model.Score(vectors, artifact)
	if err != nil {
		return fmt.Errorf("failed to score customers: %w", err)
	}

	if err := data.SaveScores(cfg.DB, results); err != nil {
		return fmt.Errorf("failed to save scores: %w", err)
	}

	outPath := c.String(outFlag.Name)
	if outPath == "" {
		outPath = path.Join(getHomeDir(), scoresFileName)
	}
	if err := data.ExportScoresCSV(outPath, results); err != nil {
		return fmt.Errorf("failed to export scores: %w", err)
	}

	top := c.Int(topFlag.Name)
	if top > len(results) {
		top = len(results)
	}

	res := &ScoreRunResult{
		Scored:     len(results),
		Bands:      model.BandCounts(results),
		Top:        results[:top],
		OutputPath: outPath,
		Duration:   time.Since(start).String(),
	}

	if err := encode(res); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}
