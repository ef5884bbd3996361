package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/registry"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration and create the source folders",
	Long: `Write ` + config.DefaultFileName + ` with every option at its default value and
create the source folder of each asset category.

Examples:
  assetpipe init            # Refuses to replace an existing file
  assetpipe init --force    # Overwrite the configuration`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := config.DefaultFileName
	if cfgFile != "" {
		path = cfgFile
	}

	if err := config.WriteDefault(path, initForce); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Wrote %s\n", path)

	root, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return err
	}

	reg := registry.New(root, config.Default().Paths)
	for _, e := range reg.All() {
		dir := reg.Abs(e.SourceDir)
		if _, err := os.Stat(dir); err == nil {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", e.SourceDir, err)
		}
		fmt.Fprintf(out, "Created %s/\n", e.SourceDir)
	}

	return nil
}
