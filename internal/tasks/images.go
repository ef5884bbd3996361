package tasks

import (
	"context"
	"os"
	"path"
	"path/filepath"

	"go.uber.org/multierr"

	"github.com/conneroisu/assetpipe/internal/build"
	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// ImageTask optimizes every file under the images source directory into the
// same relative path under the images output directory.
type ImageTask struct {
	registry  *registry.Registry
	optimizer *build.ImageOptimizer
	logger    logging.Logger
	recorder  metrics.Recorder
}

// NewImageTask creates the image task.
func NewImageTask(reg *registry.Registry, optimizer *build.ImageOptimizer, logger logging.Logger, recorder metrics.Recorder) *ImageTask {
	return &ImageTask{
		registry:  reg,
		optimizer: optimizer,
		logger:    logger.WithComponent(string(registry.Images)),
		recorder:  recorder,
	}
}

func (t *ImageTask) Name() string   { return string(registry.Images) }
func (t *ImageTask) Policy() Policy { return SkipFile }

func (t *ImageTask) Run(ctx context.Context) error {
	entry := t.registry.Entry(registry.Images)
	sources := SourceSet{Dir: t.registry.Abs(entry.SourceDir), Pattern: entry.Pattern}

	files, err := sources.Files()
	if err != nil {
		return err
	}

	b := newBarrier(t.Name(), t.logger, t.recorder)
	err = b.each(ctx, files, func(ctx context.Context, file string) error {
		src := path.Join(entry.SourceDir, file)
		data, err := os.ReadFile(t.registry.Abs(src))
		if err != nil {
			return pipelineerrors.WrapIO(pipelineerrors.ErrCodeReadFailed, src, err)
		}

		optimized, err := t.optimizer.Optimize(ctx, src, data)
		if err != nil {
			return err
		}

		return writeOutput(filepath.Join(t.registry.Abs(entry.OutputDir), filepath.FromSlash(file)), optimized)
	})
	skipped := b.close(ctx)
	if err != nil {
		return err
	}

	// Skips are reported by close and do not fail the task.

	t.logger.Debug(ctx, "Images processed", "files", len(files), "skipped", len(multierr.Errors(skipped)))
	return nil
}
