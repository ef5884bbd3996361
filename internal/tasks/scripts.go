package tasks

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/assetpipe/internal/build"
	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// BundleTaskName and ScriptsTaskName identify the two script tasks.
const (
	BundleTaskName  = "bundle"
	ScriptsTaskName = "scripts"
)

// ScriptBundleTask bundles the script entry module graph into a single file
// inside the scripts source directory.
type ScriptBundleTask struct {
	registry *registry.Registry
	bundler  *build.Bundler
	entry    string
	bundle   string
	logger   logging.Logger
}

// NewScriptBundleTask creates the bundle task. entry is a module name
// resolved inside the scripts source directory; bundle is the output file
// name written next to it.
func NewScriptBundleTask(reg *registry.Registry, bundler *build.Bundler, entry, bundle string, logger logging.Logger) *ScriptBundleTask {
	return &ScriptBundleTask{
		registry: reg,
		bundler:  bundler,
		entry:    entry,
		bundle:   bundle,
		logger:   logger.WithComponent(BundleTaskName),
	}
}

func (t *ScriptBundleTask) Name() string   { return BundleTaskName }
func (t *ScriptBundleTask) Policy() Policy { return Propagate }

// Output returns the project-relative bundle path.
func (t *ScriptBundleTask) Output() string {
	return path.Join(t.registry.Entry(registry.Scripts).SourceDir, t.bundle)
}

func (t *ScriptBundleTask) Run(ctx context.Context) error {
	dir := t.registry.Abs(t.registry.Entry(registry.Scripts).SourceDir)
	output := t.registry.Abs(t.Output())

	entry, err := build.ResolveEntry(dir, t.entry, output)
	if errors.Is(err, os.ErrNotExist) {
		t.logger.Warn(ctx, err, "No script entry, nothing to bundle", "entry", t.entry)
		return nil
	}
	if err != nil {
		return tagTask(err, t.Name())
	}

	if err := t.bundler.Bundle(ctx, entry, output); err != nil {
		return tagTask(err, t.Name())
	}

	t.logger.Debug(ctx, "Bundle written", "entry", entry, "output", t.Output())
	return nil
}

// ScriptBuildTask transpiles and minifies the bundle into <stem>.min.js in
// the scripts output directory. It does not run the bundle task.
type ScriptBuildTask struct {
	registry *registry.Registry
	compiler *build.ScriptCompiler
	bundle   string
	logger   logging.Logger
}

// NewScriptBuildTask creates the script build task for the bundle file name.
func NewScriptBuildTask(reg *registry.Registry, compiler *build.ScriptCompiler, bundle string, logger logging.Logger) *ScriptBuildTask {
	return &ScriptBuildTask{
		registry: reg,
		compiler: compiler,
		bundle:   bundle,
		logger:   logger.WithComponent(ScriptsTaskName),
	}
}

func (t *ScriptBuildTask) Name() string   { return ScriptsTaskName }
func (t *ScriptBuildTask) Policy() Policy { return Propagate }

// Input returns the project-relative bundle path the task reads.
func (t *ScriptBuildTask) Input() string {
	return path.Join(t.registry.Entry(registry.Scripts).SourceDir, t.bundle)
}

// Output returns the project-relative path of the minified script.
func (t *ScriptBuildTask) Output() string {
	stem := strings.TrimSuffix(t.bundle, path.Ext(t.bundle))
	return path.Join(t.registry.Entry(registry.Scripts).OutputDir, path.Base(stem)+".min.js")
}

func (t *ScriptBuildTask) Run(ctx context.Context) error {
	input := t.Input()
	source, err := os.ReadFile(t.registry.Abs(input))
	if errors.Is(err, os.ErrNotExist) {
		t.logger.Warn(ctx, err, "Script bundle missing, run the bundle task first", "input", input)
		return nil
	}
	if err != nil {
		return tagTask(pipelineerrors.WrapIO(pipelineerrors.ErrCodeReadFailed, input, err), t.Name())
	}

	output := t.Output()
	outName := path.Base(output)

	sourceRoot, err := filepath.Rel(t.registry.Abs(path.Dir(output)), t.registry.Root())
	if err != nil {
		return err
	}

	compiled, err := t.compiler.Compile(build.ScriptInput{
		Code:       source,
		Path:       input,
		SourceRoot: filepath.ToSlash(sourceRoot) + "/",
		OutName:    outName,
	})
	if err != nil {
		return tagTask(err, t.Name())
	}

	if err := writeOutput(t.registry.Abs(output), compiled.Code); err != nil {
		return err
	}
	if compiled.Map != nil {
		if err := writeOutput(t.registry.Abs(output+".map"), compiled.Map); err != nil {
			return err
		}
	}

	t.logger.Debug(ctx, "Script written", "output", output, "bytes", len(compiled.Code))
	return nil
}

func tagTask(err error, task string) error {
	var pe *pipelineerrors.PipelineError
	if errors.As(err, &pe) {
		pe.WithTask(task)
	}
	return err
}
