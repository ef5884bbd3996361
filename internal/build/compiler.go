// Package build wraps the external transformers used by the pipeline tasks:
// the sass compiler, the esbuild CSS prefixer and script bundler, the
// media-query merger, the minifier and the image optimizer.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

// Compiler turns a stylesheet entry file into CSS.
type Compiler interface {
	Compile(ctx context.Context, entry string) ([]byte, error)
}

// SassCompiler runs the sass command line compiler with compressed output.
type SassCompiler struct {
	command   string
	loadPaths []string
}

// NewSassCompiler creates a compiler that invokes command. Load paths are
// passed through as --load-path arguments.
func NewSassCompiler(command string, loadPaths []string) *SassCompiler {
	if command == "" {
		command = "sass"
	}
	return &SassCompiler{
		command:   command,
		loadPaths: loadPaths,
	}
}

// Compile compiles entry and returns the CSS written to stdout.
func (sc *SassCompiler) Compile(ctx context.Context, entry string) ([]byte, error) {
	bin, err := exec.LookPath(sc.command)
	if err != nil {
		return nil, pipelineerrors.NewCompileError(pipelineerrors.ErrCodeCompilerMissing,
			fmt.Sprintf("style compiler %q not found on PATH", sc.command), err)
	}

	cmd := exec.CommandContext(ctx, bin, sc.args(entry)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("sass compile cancelled: %w", ctx.Err())
		}
		return nil, pipelineerrors.CompileErrorFromOutput(stderr.String(), err)
	}

	return stdout.Bytes(), nil
}

func (sc *SassCompiler) args(entry string) []string {
	args := []string{"--style=compressed", "--no-source-map"}
	for _, p := range sc.loadPaths {
		args = append(args, "--load-path="+p)
	}

	// Keep an entry that starts with a dash from being read as a flag.
	if strings.HasPrefix(entry, "-") {
		entry = "." + string(filepath.Separator) + entry
	}
	return append(args, entry)
}
