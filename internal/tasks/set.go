package tasks

import (
	"fmt"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// Names lists the tasks that can be run on their own.
var Names = []string{
	string(registry.Styles),
	BundleTaskName,
	ScriptsTaskName,
	string(registry.Images),
	string(registry.Fonts),
	string(registry.Markup),
}

// Options configures NewSet.
type Options struct {
	Config   *config.Config
	Registry *registry.Registry
	Notifier Notifier
	Logger   logging.Logger
	Recorder metrics.Recorder
	// Compiler overrides the sass compiler from the configuration.
	Compiler build.Compiler
}

// Set holds the tasks of one project.
type Set struct {
	Styles  *StyleTask
	Bundle  *ScriptBundleTask
	Scripts *ScriptBuildTask
	Images  *ImageTask
	Fonts   *CopyTask
	Markup  *CopyTask
	Reload  *ReloadTask
}

// NewSet builds every task from the configuration.
func NewSet(opts Options) (*Set, error) {
	cfg := opts.Config
	if opts.Notifier == nil {
		opts.Notifier = NopNotifier{}
	}
	if opts.Recorder == nil {
		opts.Recorder = metrics.NoopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}

	browsers, err := config.ParseBrowsers(cfg.Styles.Browsers)
	if err != nil {
		return nil, fmt.Errorf("styles browsers: %w", err)
	}
	prefixer, err := build.NewPrefixer(browsers)
	if err != nil {
		return nil, err
	}

	compiler := opts.Compiler
	if compiler == nil {
		loadPaths := make([]string, 0, len(cfg.Styles.LoadPaths))
		for _, p := range cfg.Styles.LoadPaths {
			loadPaths = append(loadPaths, opts.Registry.Abs(p))
		}
		compiler = build.NewSassCompiler(cfg.Styles.Compiler, loadPaths)
	}

	scriptCompiler, err := build.NewScriptCompiler(cfg.Scripts.Target, cfg.Scripts.SourceMaps)
	if err != nil {
		return nil, err
	}

	minifier := build.NewMinifier()
	chain := &build.StyleChain{Compiler: compiler, Prefixer: prefixer, Minifier: minifier}

	return &Set{
		Styles:  NewStyleTask(opts.Registry, chain, cfg.Styles.Entry, opts.Notifier, opts.Logger, opts.Recorder),
		Bundle:  NewScriptBundleTask(opts.Registry, build.NewBundler(opts.Registry.Root()), cfg.Scripts.Entry, cfg.Scripts.Bundle, opts.Logger),
		Scripts: NewScriptBuildTask(opts.Registry, scriptCompiler, cfg.Scripts.Bundle, opts.Logger),
		Images:  NewImageTask(opts.Registry, build.NewImageOptimizer(cfg.Images.JpegTran, minifier), opts.Logger, opts.Recorder),
		Fonts:   NewCopyTask(opts.Registry, registry.Fonts, opts.Logger, opts.Recorder),
		Markup:  NewCopyTask(opts.Registry, registry.Markup, opts.Logger, opts.Recorder),
		Reload:  NewReloadTask(opts.Notifier, opts.Recorder),
	}, nil
}

// Get returns the task called name.
func (s *Set) Get(name string) (Task, bool) {
	switch name {
	case string(registry.Styles):
		return s.Styles, true
	case BundleTaskName:
		return s.Bundle, true
	case ScriptsTaskName:
		return s.Scripts, true
	case string(registry.Images):
		return s.Images, true
	case string(registry.Fonts):
		return s.Fonts, true
	case string(registry.Markup):
		return s.Markup, true
	default:
		return nil, false
	}
}

// Transforms returns the five transform tasks of the default run in order:
// styles, scripts, images, fonts, markup.
func (s *Set) Transforms() []Task {
	return []Task{s.Styles, s.Scripts, s.Images, s.Fonts, s.Markup}
}

// ForCategory returns the transform task a watch binding on category runs.
func (s *Set) ForCategory(category registry.Category) (Task, bool) {
	switch category {
	case registry.Styles:
		return s.Styles, true
	case registry.Scripts:
		return s.Scripts, true
	case registry.Images:
		return s.Images, true
	case registry.Fonts:
		return s.Fonts, true
	case registry.Markup:
		return s.Markup, true
	default:
		return nil, false
	}
}
