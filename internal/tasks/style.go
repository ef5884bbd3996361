package tasks

import (
	"context"
	"errors"
	"os"
	"path"
	"strings"

	"github.com/conneroisu/assetpipe/internal/build"
	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// StyleTask compiles the stylesheet entry into <stem>.min.css and streams
// the result to connected browsers.
type StyleTask struct {
	registry *registry.Registry
	chain    *build.StyleChain
	entry    string
	notifier Notifier
	logger   logging.Logger
	recorder metrics.Recorder
}

// NewStyleTask creates the style task for the entry file name inside the
// styles source directory.
func NewStyleTask(reg *registry.Registry, chain *build.StyleChain, entry string, notifier Notifier, logger logging.Logger, recorder metrics.Recorder) *StyleTask {
	return &StyleTask{
		registry: reg,
		chain:    chain,
		entry:    path.Join(reg.Entry(registry.Styles).SourceDir, entry),
		notifier: notifier,
		logger:   logger.WithComponent("styles"),
		recorder: recorder,
	}
}

func (t *StyleTask) Name() string   { return string(registry.Styles) }
func (t *StyleTask) Policy() Policy { return AbortRun }

// Output returns the project-relative path of the compiled stylesheet.
func (t *StyleTask) Output() string {
	stem := strings.TrimSuffix(path.Base(t.entry), path.Ext(t.entry))
	return path.Join(t.registry.Entry(registry.Styles).OutputDir, stem+".min.css")
}

func (t *StyleTask) Run(ctx context.Context) error {
	entry := t.registry.Abs(t.entry)
	if _, err := os.Stat(entry); errors.Is(err, os.ErrNotExist) {
		t.logger.Debug(ctx, "Style entry not found, nothing to compile", "entry", t.entry)
		return nil
	}

	css, err := t.chain.Process(ctx, entry)
	if err != nil {
		var pe *pipelineerrors.PipelineError
		if errors.As(err, &pe) {
			pe.WithTask(t.Name())
		}
		return err
	}

	out := t.Output()
	if err := writeOutput(t.registry.Abs(out), css); err != nil {
		return err
	}

	served, ok := t.servedPath(out)
	if ok {
		t.notifier.StreamCSS(served)
		t.recorder.IncReload(metrics.ReloadCSS)
	}
	t.logger.Debug(ctx, "Stylesheet written", "output", out, "bytes", len(css))

	return nil
}

// servedPath converts a project-relative output path into the URL path the
// dev server serves it under.
func (t *StyleTask) servedPath(out string) (string, bool) {
	root, ok := t.registry.Relative(t.registry.OutputRoot())
	if !ok {
		return "", false
	}
	rel := strings.TrimPrefix(out, root+"/")
	return rel, rel != out
}
