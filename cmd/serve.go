package cmd

import (
	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Build, serve with live reload and rebuild on change",
	Long: `Run the sequential build, start the development server and watch the
source tree. Stylesheet changes are pushed to open pages without a reload;
every other change rebuilds its category and reloads the page.

This is also what assetpipe does without a subcommand.

Examples:
  assetpipe serve                  # Serve on localhost:3000
  assetpipe serve --port 8080      # Start from port 8080
  assetpipe serve --no-open        # Don't open the browser`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	return runResident(cmd, true)
}

// runResident runs the build-then-watch loop until interrupted.
func runResident(cmd *cobra.Command, serve bool) error {
	if err := bindServerFlags(cmd); err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyNoOpen(cmd, cfg)

	root, err := projectRoot()
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{
		Config: cfg,
		Root:   root,
		Logger: newLogger(cfg),
		Serve:  serve,
	})
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd)
	defer stop()

	return ignoreCancel(p.Run(ctx))
}
