package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/pipeline"
	"github.com/conneroisu/assetpipe/internal/tasks"
)

var taskCmd = &cobra.Command{
	Use:   "task <name>",
	Short: "Run a single task once",
	Long: `Run one named task once and exit.

Available tasks: ` + strings.Join(tasks.Names, ", ") + `

Examples:
  assetpipe task styles
  assetpipe task bundle`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: tasks.Names,
	RunE:      runTask,
}

func init() {
	rootCmd.AddCommand(taskCmd)
}

func runTask(cmd *cobra.Command, args []string) error {
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

	return p.RunTask(ctx, args[0])
}
