package build

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetpipe/internal/config"
	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

type fakeCompiler struct {
	css   string
	err   error
	calls []string
}

func (f *fakeCompiler) Compile(_ context.Context, entry string) ([]byte, error) {
	f.calls = append(f.calls, entry)
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.css), nil
}

func newTestChain(t *testing.T, compiler Compiler) *StyleChain {
	t.Helper()
	browsers, err := config.ParseBrowsers([]string{"safari 14", "chrome 90"})
	require.NoError(t, err)
	prefixer, err := NewPrefixer(browsers)
	require.NoError(t, err)
	return &StyleChain{Compiler: compiler, Prefixer: prefixer, Minifier: NewMinifier()}
}

func TestPrefixerAddsVendorPrefixes(t *testing.T) {
	browsers, err := config.ParseBrowsers([]string{"safari 14"})
	require.NoError(t, err)
	prefixer, err := NewPrefixer(browsers)
	require.NoError(t, err)

	out, err := prefixer.Prefix([]byte(".panel{backdrop-filter:blur(4px)}"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "-webkit-backdrop-filter")
	assert.Contains(t, string(out), "backdrop-filter: blur(4px)")
}

func TestPrefixerUnknownEngine(t *testing.T) {
	_, err := NewPrefixer([]config.Browser{{Name: "netscape", Version: "4"}})
	assert.Error(t, err)
}

func TestMinifierCSS(t *testing.T) {
	out, err := NewMinifier().CSS([]byte(".a {\n  color: #ff0000;\n  margin: 0px;\n}\n"))
	require.NoError(t, err)
	assert.Equal(t, ".a{color:red;margin:0}", string(out))
}

func TestStyleChainProcess(t *testing.T) {
	compiler := &fakeCompiler{
		css: ".panel{backdrop-filter:blur(4px)}" +
			"@media (min-width:768px){.a{color:blue}}" +
			".b{color:green}" +
			"@media (min-width:768px){.b{color:black}}",
	}
	chain := newTestChain(t, compiler)

	out, err := chain.Process(context.Background(), "src/scss/style.scss")
	require.NoError(t, err)

	css := string(out)
	assert.Equal(t, []string{"src/scss/style.scss"}, compiler.calls)
	assert.Contains(t, css, "-webkit-backdrop-filter")
	assert.Equal(t, 1, strings.Count(css, "@media"), "duplicate media blocks merged")
	assert.NotContains(t, css, "\n")
	assert.Less(t, strings.Index(css, ".b{color:green}"), strings.Index(css, "@media"))
}

func TestStyleChainIdempotent(t *testing.T) {
	chain := newTestChain(t, &fakeCompiler{
		css: "@media print{.a{user-select:none}}.b{color:#000}@media print{.c{display:none}}",
	})

	first, err := chain.Process(context.Background(), "style.scss")
	require.NoError(t, err)
	second, err := chain.Process(context.Background(), "style.scss")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestStyleChainCompileError(t *testing.T) {
	compileErr := pipelineerrors.NewCompileError(pipelineerrors.ErrCodeCompileFailed, "expected \"{\"", errors.New("exit status 65"))
	chain := newTestChain(t, &fakeCompiler{err: compileErr})

	out, err := chain.Process(context.Background(), "style.scss")
	assert.Nil(t, out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, compileErr))
	assert.True(t, pipelineerrors.IsType(err, pipelineerrors.ErrorTypeCompile))
}
