package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/registry"
	"github.com/conneroisu/assetpipe/internal/tasks"
	"github.com/conneroisu/assetpipe/internal/watcher"
)

// Binding reacts to changes in one category by running Task.
type Binding struct {
	Category registry.Category
	Task     tasks.Task
	// FullReload is set when Task ends by reloading every page.
	FullReload bool
}

// Coordinator routes watcher batches to bindings. Each binding drains its
// own FIFO on its own goroutine: reactions within a category run strictly in
// order while different categories run concurrently.
type Coordinator struct {
	registry *registry.Registry
	delay    time.Duration
	logger   logging.Logger
	bindings []*bindingQueue

	watcher *watcher.FileWatcher
	wg      sync.WaitGroup
	started bool
	mutex   sync.Mutex
}

// bindingQueue is an unbounded FIFO of triggers for one binding.
type bindingQueue struct {
	Binding
	mutex   sync.Mutex
	pending [][]string
	notify  chan struct{}
}

// NewCoordinator creates a coordinator over the source root of reg. A
// non-positive delay selects the watcher default.
func NewCoordinator(reg *registry.Registry, bindings []Binding, delay time.Duration, logger logging.Logger) *Coordinator {
	if logger == nil {
		logger = logging.Discard()
	}
	queues := make([]*bindingQueue, 0, len(bindings))
	for _, b := range bindings {
		queues = append(queues, &bindingQueue{Binding: b, notify: make(chan struct{}, 1)})
	}

	return &Coordinator{
		registry: reg,
		delay:    delay,
		logger:   logger.WithComponent("watch"),
		bindings: queues,
	}
}

// Start watches the source root and begins draining triggers. It returns
// once watching is established; work continues until ctx is done.
func (c *Coordinator) Start(ctx context.Context) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.started {
		return errors.New("coordinator already started")
	}

	fw, err := watcher.NewFileWatcher(c.delay, c.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		c.Dispatch(events)
		return nil
	})
	if err := fw.AddRecursive(c.registry.SourceRoot()); err != nil {
		_ = fw.Stop()
		return err
	}

	c.startLoops(ctx)
	if err := fw.Start(ctx); err != nil {
		_ = fw.Stop()
		return err
	}

	c.watcher = fw
	c.started = true

	for _, b := range c.bindings {
		c.logger.Debug(ctx, "Watching", "category", string(b.Category), "glob", c.registry.Entry(b.Category).WatchGlob)
	}

	return nil
}

func (c *Coordinator) startLoops(ctx context.Context) {
	for _, b := range c.bindings {
		c.wg.Add(1)
		go func(b *bindingQueue) {
			defer c.wg.Done()
			c.drain(ctx, b)
		}(b)
	}
}

// Dispatch enqueues one trigger on every binding that matches at least one
// event of the batch.
func (c *Coordinator) Dispatch(events []watcher.ChangeEvent) {
	for _, b := range c.bindings {
		var paths []string
		for _, e := range events {
			if c.registry.Match(b.Category, e.Path) {
				paths = append(paths, e.Path)
			}
		}
		if len(paths) == 0 {
			continue
		}

		b.mutex.Lock()
		b.pending = append(b.pending, paths)
		b.mutex.Unlock()

		select {
		case b.notify <- struct{}{}:
		default:
		}
	}
}

func (c *Coordinator) drain(ctx context.Context, b *bindingQueue) {
	for {
		paths, ok := b.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-b.notify:
				continue
			}
		}
		if ctx.Err() != nil {
			return
		}

		c.logger.Debug(ctx, "Change detected", "category", string(b.Category), "files", len(paths))
		if err := b.Task.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			// The binding survives a failed reaction; the next change retries.
			c.logger.Warn(ctx, err, "Watch reaction failed", "category", string(b.Category))
		}
	}
}

func (b *bindingQueue) pop() ([]string, bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	if len(b.pending) == 0 {
		return nil, false
	}
	paths := b.pending[0]
	b.pending[0] = nil
	b.pending = b.pending[1:]
	return paths, true
}

// Wait blocks until every binding goroutine has returned. Cancel the Start
// context first.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// Stop releases the file watcher.
func (c *Coordinator) Stop() error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.watcher == nil {
		return nil
	}
	return c.watcher.Stop()
}
