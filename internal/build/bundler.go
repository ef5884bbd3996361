package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/evanw/esbuild/pkg/api"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

// Bundler combines a script entry and its module graph into one file.
type Bundler struct {
	format  api.Format
	workDir string
}

// NewBundler creates a bundler producing a browser IIFE. Module paths in the
// bundle's comments are written relative to workDir, which must be absolute.
func NewBundler(workDir string) *Bundler {
	return &Bundler{format: api.FormatIIFE, workDir: workDir}
}

// ResolveEntry finds the module name inside dir, trying the file itself,
// name.js and name/index.js in that order. The candidate equal to exclude,
// normally the bundle output, is never chosen.
func ResolveEntry(dir, name, exclude string) (string, error) {
	candidates := []string{
		filepath.Join(dir, name),
		filepath.Join(dir, name+".js"),
		filepath.Join(dir, name, "index.js"),
	}

	for _, candidate := range candidates {
		if exclude != "" && candidate == filepath.Clean(exclude) {
			continue
		}
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", pipelineerrors.NewBundleError(pipelineerrors.ErrCodeEntryNotFound,
		fmt.Sprintf("cannot resolve script entry %q in %s", name, dir), os.ErrNotExist)
}

// Bundle writes the bundle for entry to outfile, replacing it if present.
func (b *Bundler) Bundle(ctx context.Context, entry, outfile string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:    []string{entry},
		Outfile:        outfile,
		Bundle:         true,
		Write:          true,
		AllowOverwrite: true,
		Format:         b.format,
		AbsWorkingDir:  b.workDir,
		Platform:       api.PlatformBrowser,
		LogLevel:       api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return messageError(result.Errors, func(msg string) *pipelineerrors.PipelineError {
			return pipelineerrors.NewBundleError(pipelineerrors.ErrCodeBundleFailed, msg, nil)
		})
	}

	return nil
}

// messageError converts esbuild diagnostics into a PipelineError located at
// the first message.
func messageError(msgs []api.Message, build func(msg string) *pipelineerrors.PipelineError) error {
	err := build(formatMessages(msgs))
	if loc := msgs[0].Location; loc != nil {
		err = err.WithLocation(loc.File, loc.Line, loc.Column)
	}
	return err
}
