package cli

import (
	"fmt"
	"time"

	"github.com/mchmarny/churnctl/pkg/annotate"
	"github.com/mchmarny/churnctl/pkg/data"
	"github.com/urfave/cli/v2"
)

var (
	annotationsFlag = &cli.IntFlag{
		Name:  "annotations",
		Usage: fmt.Sprintf("Number of customers to annotate via the risk service, 0 to skip (default: %d)", data.AnnotationQuotaDefault),
		Value: data.AnnotationQuotaDefault,
	}

	intervalFlag = &cli.DurationFlag{
		Name:  "interval",
		Usage: "Minimum delay between annotation calls",
		Value: annotate.IntervalDefault,
	}

	timeoutFlag = &cli.DurationFlag{
		Name:  "timeout",
		Usage: "Per-call annotation timeout",
		Value: annotate.TimeoutDefault,
	}

	groqModelFlag = &cli.StringFlag{
		Name:  "groq-model",
		Usage: "Model used for risk annotation",
		Value: annotate.ModelDefault,
	}

	groqURLFlag = &cli.StringFlag{
		Name:   "groq-url",
		Usage:  "Base URL of the annotation service",
		Value:  annotate.BaseURLDefault,
		Hidden: true,
	}

	featuresCmd = &cli.Command{
		Name:    "features",
		Aliases: []string{"f"},
		Usage:   "Build the per-customer feature table from the billing data",
		UsageText: `churnctl features                      # build and annotate the first 20 customers
   churnctl features --annotations 0      # build without calling the risk service
   churnctl features --interval 2s        # slow down annotation calls`,
		Action: cmdFeatures,
		Flags: []cli.Flag{
			annotationsFlag,
			intervalFlag,
			timeoutFlag,
			groqModelFlag,
			groqURLFlag,
		},
	}
)

// FeatureBuildResult is the encoded output of the features command.
type FeatureBuildResult struct {
	Source   *data.TableCounts         `json:"source" yaml:"source"`
	Features *data.FeatureImportResult `json:"features" yaml:"features"`
}

func cmdFeatures(c *cli.Context) error {
	cfg := getConfig(c)
	quota := c.Int(annotationsFlag.Name)

	counts, err := data.GetTableCounts(cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to inspect billing tables: %w", err)
	}

	var annotator annotate.Annotator
	if quota > 0 {
		annotator, err = newAnnotator(c)
		if err != nil {
			return err
		}
	}

	res, err := data.BuildFeatures(c.Context, cfg.DB, annotator, quota)
	if err != nil {
		return fmt.Errorf("failed to build features: %w", err)
	}

	out := &FeatureBuildResult{
		Source:   counts,
		Features: res,
	}

	if err := encode(out); err != nil {
		return fmt.Errorf("error encoding result: %w", err)
	}

	return nil
}

func newAnnotator(c *cli.Context) (annotate.Annotator, error) {
	key, err := getAPIKey()
	if err != nil {
		return nil, err
	}

	client, err := annotate.NewClient(c.Context, annotate.ClientConfig{
		BaseURL: c.String(groqURLFlag.Name),
		APIKey:  key,
		Model:   c.String(groqModelFlag.Name),
		Timeout: c.Duration(timeoutFlag.Name),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create annotation client: %w", err)
	}

	interval := c.Duration(intervalFlag.Name)
	if interval <= 0 {
		interval = time.Second
	}

	return annotate.NewGroqAnnotator(client, interval), nil
}
