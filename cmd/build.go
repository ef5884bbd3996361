package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build every asset category once",
	Long: `Run every transform concurrently and exit. Bundling still precedes the
script build. A failing category does not stop the others; the command
exits non-zero if any category failed.

Examples:
  assetpipe build
  assetpipe build --log-level debug`,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Root:   root,
		Logger: newLogger(cfg),
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	start := time.Now()
	buildErr := p.Build(ctx)
	printBuildSummary(cmd.OutOrStdout(), p.Stats().Snapshot(), time.Since(start))

	if buildErr != nil {
		return fmt.Errorf("build failed: %w", buildErr)
	}
	return nil
}

func printBuildSummary(out io.Writer, stats []metrics.TaskStats, elapsed time.Duration) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TASK\tRUNS\tFAILED\tSKIPPED\tDURATION")
	for _, ts := range stats {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
			ts.Task, ts.Runs, ts.Failed, ts.Skipped, ts.TotalDuration.Round(time.Millisecond))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nBuild finished in %s\n", elapsed.Round(time.Millisecond))
}
