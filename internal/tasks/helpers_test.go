package tasks

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
	"github.com/conneroisu/assetpipe/internal/metrics"
	"github.com/conneroisu/assetpipe/internal/registry"
)

// passCompiler stands in for sass: it returns the entry contents, or a
// compile error when they contain "!error".
type passCompiler struct{}

func (passCompiler) Compile(_ context.Context, entry string) ([]byte, error) {
	data, err := os.ReadFile(entry)
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(data), "!error") {
		return nil, pipelineerrors.NewCompileError(pipelineerrors.ErrCodeCompileFailed, "expected \"{\"", nil).
			WithLocation(entry, 1, 1)
	}
	return data, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	full   int
	styles []string
}

func (n *recordingNotifier) FullReload() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.full++
}

func (n *recordingNotifier) StreamCSS(paths ...string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.styles = append(n.styles, paths...)
}

func (n *recordingNotifier) counts() (int, []string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.full, append([]string(nil), n.styles...)
}

type testProject struct {
	root     string
	registry *registry.Registry
	notifier *recordingNotifier
	stats    *metrics.Stats
	set      *Set
	runner   *Runner
}

func newTestProject(t *testing.T, mutate ...func(*config.Config)) *testProject {
	t.Helper()

	cfg := config.Default()
	cfg.Images.JpegTran = ""
	for _, m := range mutate {
		m(cfg)
	}

	root := t.TempDir()
	reg := registry.New(root, cfg.Paths)
	notifier := &recordingNotifier{}
	stats := metrics.NewStats()

	set, err := NewSet(Options{
		Config:   cfg,
		Registry: reg,
		Notifier: notifier,
		Logger:   logging.Discard(),
		Recorder: stats,
		Compiler: passCompiler{},
	})
	require.NoError(t, err)

	return &testProject{
		root:     root,
		registry: reg,
		notifier: notifier,
		stats:    stats,
		set:      set,
		runner:   NewRunner(logging.Discard(), stats),
	}
}

func (p *testProject) write(t *testing.T, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(p.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func (p *testProject) read(t *testing.T, rel string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(p.root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return data
}

func (p *testProject) exists(rel string) bool {
	_, err := os.Stat(filepath.Join(p.root, filepath.FromSlash(rel)))
	return err == nil
}

// listFiles returns the slash-separated files under rel.
func (p *testProject) listFiles(t *testing.T, rel string) []string {
	t.Helper()
	files, err := SourceSet{Dir: filepath.Join(p.root, filepath.FromSlash(rel)), Pattern: "**"}.Files()
	require.NoError(t, err)
	return files
}
