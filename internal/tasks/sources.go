package tasks

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/sourcegraph/conc/pool"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
)

// SourceSet is the set of files matching Pattern under Dir. It is evaluated
// on every call, never cached.
type SourceSet struct {
	Dir     string
	Pattern string
}

// Files returns the matching regular files as sorted slash-separated paths
// relative to Dir. A missing directory or an invalid pattern yields no files.
func (s SourceSet) Files() ([]string, error) {
	info, err := os.Stat(s.Dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.WrapIO(pipelineerrors.ErrCodeReadFailed, s.Dir, err)
	}
	if !info.IsDir() {
		return nil, nil
	}

	matches, err := doublestar.Glob(os.DirFS(s.Dir), s.Pattern, doublestar.WithFilesOnly())
	if errors.Is(err, doublestar.ErrBadPattern) {
		return nil, nil
	}
	if err != nil {
		return nil, pipelineerrors.WrapIO(pipelineerrors.ErrCodeReadFailed, s.Dir, err)
	}

	sort.Strings(matches)
	return matches, nil
}

// barrier turns per-file failures into logged skips.
type barrier struct {
	task      string
	logger    logging.Logger
	recorder  metrics.Recorder
	collector *pipelineerrors.ErrorCollector
}

func newBarrier(task string, logger logging.Logger, recorder metrics.Recorder) *barrier {
	return &barrier{
		task:      task,
		logger:    logger,
		recorder:  recorder,
		collector: pipelineerrors.NewErrorCollector(),
	}
}

// each runs fn for every file, at most GOMAXPROCS at a time.
func (b *barrier) each(ctx context.Context, files []string, fn func(ctx context.Context, file string) error) error {
	group := pool.New().WithMaxGoroutines(runtime.GOMAXPROCS(0)).WithContext(ctx)
	for _, file := range files {
		group.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			b.collector.Add(b.task, file, fn(ctx, file))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// close logs the skipped files, records their count and returns the
// per-file errors combined into one, or nil when nothing was skipped.
func (b *barrier) close(ctx context.Context) error {
	if !b.collector.HasErrors() {
		return nil
	}

	skipped := b.collector.Err()
	b.logger.Warn(ctx, skipped, "Skipped files", "task", b.task, "files", b.collector.Files())
	b.recorder.AddSkippedFiles(b.task, b.collector.Len())
	if report := reportFrom(ctx); report != nil {
		report.add(skipped)
	}
	return skipped
}

// writeOutput replaces path with data through a temporary file so readers
// never see a partial write.
func writeOutput(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, path, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, path, err)
	}
	if err := tmp.Close(); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, path, err)
	}

	return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, path, os.Rename(tmp.Name(), path))
}

// copyFile copies src to dst byte for byte.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeReadFailed, src, err)
	}
	defer in.Close()

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dst)+".*.tmp")
	if err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dst, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dst, err)
	}
	if err := tmp.Close(); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dst, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dst, err)
	}

	return pipelineerrors.WrapIO(pipelineerrors.ErrCodeWriteFailed, dst, os.Rename(tmp.Name(), dst))
}
