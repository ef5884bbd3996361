package tasks

import (
	"context"
	"path"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// CopyTask copies a category's matched files verbatim to its output
// directory, keeping relative names.
type CopyTask struct {
	registry *registry.Registry
	category registry.Category
	logger   logging.Logger
	recorder metrics.Recorder
}

// NewCopyTask creates a passthrough copy task for category.
func NewCopyTask(reg *registry.Registry, category registry.Category, logger logging.Logger, recorder metrics.Recorder) *CopyTask {
	return &CopyTask{
		registry: reg,
		category: category,
		logger:   logger.WithComponent(string(category)),
		recorder: recorder,
	}
}

func (t *CopyTask) Name() string   { return string(t.category) }
func (t *CopyTask) Policy() Policy { return SkipFile }

func (t *CopyTask) Run(ctx context.Context) error {
	entry := t.registry.Entry(t.category)
	sources := SourceSet{Dir: t.registry.Abs(entry.SourceDir), Pattern: entry.Pattern}

	files, err := sources.Files()
	if err != nil {
		return err
	}

	b := newBarrier(t.Name(), t.logger, t.recorder)
	err = b.each(ctx, files, func(_ context.Context, file string) error {
		src := t.registry.Abs(path.Join(entry.SourceDir, file))
		dst := filepath.Join(t.registry.Abs(entry.OutputDir), filepath.FromSlash(file))
		return copyFile(src, dst)
	})
	skipped := b.close(ctx)
	if err != nil {
		return err
	}

	// Skips are reported by close and do not fail the task.

	t.logger.Debug(ctx, "Files copied", "files", len(files), "skipped", len(multierr.Errors(skipped)))
	return nil
}
