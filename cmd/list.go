package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetpipe/internal/pipeline"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"l"},
	Short:   "Show the path layout and watch bindings",
	Long: `List every asset category with its sources, watch glob, output folder and
what happens when one of its files changes.

Examples:
  assetpipe list                # Table
  assetpipe list -o json        # JSON
  assetpipe list -o yaml        # YAML`,
	RunE: runList,
}

var listFlags *StandardFlags

func init() {
	rootCmd.AddCommand(listCmd)
	listFlags = AddStandardFlags(listCmd, "output")
}

// listEntry is one row of the list output.
type listEntry struct {
	Category string `json:"category" yaml:"category"`
	Sources  string `json:"sources" yaml:"sources"`
	Watch    string `json:"watch" yaml:"watch"`
	Output   string `json:"output" yaml:"output"`
	Reaction string `json:"reaction" yaml:"reaction"`
}

func runList(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, err := projectRoot()
	if err != nil {
		return err
	}

	p, err := pipeline.New(pipeline.Options{Config: cfg, Root: root})
	if err != nil {
		return err
	}

	entries := listEntries(p)
	out := cmd.OutOrStdout()

	switch strings.ToLower(listFlags.OutputFormat) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(entries)
	case "yaml":
		encoder := yaml.NewEncoder(out)
		defer encoder.Close()
		return encoder.Encode(entries)
	case "table", "":
		return outputListTable(out, entries)
	default:
		return fmt.Errorf("unsupported format: %s", listFlags.OutputFormat)
	}
}

func listEntries(p *pipeline.Pipeline) []listEntry {
	reg := p.Registry()
	entries := make([]listEntry, 0, len(p.Bindings()))
	for _, b := range p.Bindings() {
		e := reg.Entry(b.Category)
		reaction := "rebuild " + b.Task.Name() + ", stream css"
		if b.FullReload {
			reaction = "rebuild " + string(b.Category) + ", full reload"
		}
		entries = append(entries, listEntry{
			Category: string(b.Category),
			Sources:  e.Glob(),
			Watch:    e.WatchGlob,
			Output:   e.OutputDir,
			Reaction: reaction,
		})
	}
	return entries
}

func outputListTable(out io.Writer, entries []listEntry) error {
	title := cases.Title(language.English)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CATEGORY\tSOURCES\tWATCH\tOUTPUT\tON CHANGE")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			title.String(e.Category), e.Sources, e.Watch, e.Output, e.Reaction)
	}
	return w.Flush()
}
