// Package pipeline wires the asset tasks, the dev server and the watch
// coordinator into the runnable entry points: the default run (build in
// series, serve, watch), the parallel one-shot build and single tasks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conneroisu/assetpipe/internal/build"
	"github.com/conneroisu/assetpipe/internal/config"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
	"github.com/conneroisu/assetpipe/internal/server"
	"github.com/conneroisu/assetpipe/internal/tasks"
	"github.com/conneroisu/assetpipe/internal/websocket"
)

// shutdownTimeout bounds server and hub shutdown once the run is cancelled.
const shutdownTimeout = 5 * time.Second

// Options configures New.
type Options struct {
	Config *config.Config
	// Root is the project directory the configured paths are relative to.
	Root   string
	Logger logging.Logger
	// Serve starts the dev server and sends reload notifications to it.
	// Without it notifications are dropped.
	Serve bool
	// Compiler overrides the sass compiler.
	Compiler build.Compiler
}

// Pipeline is one project's set of tasks plus the services around them.
type Pipeline struct {
	config   *config.Config
	registry *registry.Registry
	logger   logging.Logger
	stats    *metrics.Stats
	recorder metrics.Recorder
	tasks    *tasks.Set
	runner   *tasks.Runner

	hub    *websocket.Hub
	server *server.Server

	ready chan struct{}
}

// New builds the pipeline. No goroutines are started until Run.
func New(opts Options) (*Pipeline, error) {
	if opts.Config == nil {
		return nil, errors.New("pipeline: nil config")
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	p := &Pipeline{
		config:   opts.Config,
		registry: registry.New(opts.Root, opts.Config.Paths),
		logger:   logger,
		stats:    metrics.NewStats(),
		ready:    make(chan struct{}),
	}

	var (
		notifier       tasks.Notifier = tasks.NopNotifier{}
		metricsHandler http.Handler
	)
	recorders := []metrics.Recorder{p.stats}

	if opts.Serve {
		if opts.Config.Server.Metrics {
			reg := prom.NewRegistry()
			recorders = append(recorders, metrics.NewPrometheusRecorder(reg))
			metricsHandler = metrics.HTTPHandler(reg)
		}
		p.hub = websocket.NewHub(logger, opts.Config.Server.AllowedOrigins)
		notifier = p.hub
	}
	p.recorder = metrics.Multi(recorders...)

	set, err := tasks.NewSet(tasks.Options{
		Config:   opts.Config,
		Registry: p.registry,
		Notifier: notifier,
		Logger:   logger,
		Recorder: p.recorder,
		Compiler: opts.Compiler,
	})
	if err != nil {
		p.closeHub()
		return nil, err
	}
	p.tasks = set
	p.runner = tasks.NewRunner(logger, p.recorder)

	if opts.Serve {
		p.server = server.New(server.Options{
			Config:  opts.Config.Server,
			Root:    p.registry.OutputRoot(),
			Hub:     p.hub,
			Metrics: metricsHandler,
			Logger:  logger,
		})
	}

	return p, nil
}

// Registry returns the project layout.
func (p *Pipeline) Registry() *registry.Registry { return p.registry }

// Tasks returns the unguarded tasks.
func (p *Pipeline) Tasks() *tasks.Set { return p.tasks }

// Stats returns the counters collected so far.
func (p *Pipeline) Stats() *metrics.Stats { return p.stats }

// Server returns the dev server, or nil when not serving.
func (p *Pipeline) Server() *server.Server { return p.server }

// DefaultTask runs the transforms one after another: styles, scripts,
// images, fonts, markup.
func (p *Pipeline) DefaultTask() tasks.Task {
	return tasks.Series("default", p.runner.GuardAll(p.tasks.Transforms()...)...)
}

// BuildTask runs every transform at once. Bundling precedes the script
// build since the latter reads the bundle.
func (p *Pipeline) BuildTask() tasks.Task {
	g := p.runner.Guard
	return tasks.Parallel("build",
		g(p.tasks.Styles),
		tasks.Series(tasks.ScriptsTaskName, g(p.tasks.Bundle), g(p.tasks.Scripts)),
		g(p.tasks.Images),
		g(p.tasks.Fonts),
		g(p.tasks.Markup),
	)
}

// Bindings returns the watch bindings. Styles push their own update; every
// other category reloads the page after its transform.
func (p *Pipeline) Bindings() []Binding {
	g := p.runner.Guard
	bindings := make([]Binding, 0, len(registry.Categories))
	for _, category := range registry.Categories {
		t, ok := p.tasks.ForCategory(category)
		if !ok {
			continue
		}
		var reaction tasks.Task
		if category == registry.Styles {
			reaction = g(t)
		} else {
			reaction = tasks.Series(string(category), g(t), g(p.tasks.Reload))
		}
		bindings = append(bindings, Binding{
			Category:   category,
			Task:       reaction,
			FullReload: category != registry.Styles,
		})
	}
	return bindings
}

// Ready is closed once Run has finished the initial build and every watcher
// is in place.
func (p *Pipeline) Ready() <-chan struct{} { return p.ready }

// Build runs BuildTask once.
func (p *Pipeline) Build(ctx context.Context) error {
	return p.BuildTask().Run(ctx)
}

// RunTask runs the task called name once.
func (p *Pipeline) RunTask(ctx context.Context, name string) error {
	t, ok := p.tasks.Get(name)
	if !ok {
		return fmt.Errorf("unknown task %q (available: %v)", name, tasks.Names)
	}
	return p.runner.Guard(t).Run(ctx)
}

// Run is the resident default action: the sequential build, then the dev
// server when serving, then the watchers. It blocks until ctx is cancelled.
// A failed initial build is returned before anything starts. Run may be
// called once.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.closeHub()

	if err := p.DefaultTask().Run(ctx); err != nil {
		return fmt.Errorf("initial build: %w", err)
	}

	if p.server != nil {
		if err := p.server.Start(ctx); err != nil {
			return fmt.Errorf("starting server: %w", err)
		}
		defer p.shutdownServer()
	}

	coordinator := NewCoordinator(p.registry, p.Bindings(), p.config.Watch.Delay, p.logger)
	if err := coordinator.Start(ctx); err != nil {
		return fmt.Errorf("starting watchers: %w", err)
	}
	defer coordinator.Stop()

	p.logger.Info(ctx, "Watching for changes", "source", p.registry.SourceRoot())
	close(p.ready)

	<-ctx.Done()
	coordinator.Wait()
	p.logger.Info(context.Background(), "Shutting down")

	return nil
}

func (p *Pipeline) shutdownServer() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.server.Shutdown(ctx); err != nil {
		p.logger.Warn(ctx, err, "Server shutdown failed")
	}
}

func (p *Pipeline) closeHub() {
	if p.hub == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := p.hub.Shutdown(ctx); err != nil {
		p.logger.Warn(ctx, err, "Reload hub shutdown failed")
	}
}
