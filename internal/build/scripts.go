package build

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

var scriptTargets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ScriptOutput is the result of compiling one script.
type ScriptOutput struct {
	Code []byte
	// Map is the external source map, nil when maps are disabled.
	Map []byte
}

// ScriptCompiler lowers a script to a target syntax level and minifies it.
type ScriptCompiler struct {
	target     api.Target
	sourceMaps bool
}

// NewScriptCompiler creates a compiler for target, e.g. "es2015".
func NewScriptCompiler(target string, sourceMaps bool) (*ScriptCompiler, error) {
	t, ok := scriptTargets[strings.ToLower(target)]
	if !ok {
		return nil, fmt.Errorf("unsupported script target %q", target)
	}
	return &ScriptCompiler{target: t, sourceMaps: sourceMaps}, nil
}

// ScriptInput is one script to compile.
type ScriptInput struct {
	Code []byte
	// Path names the input in diagnostics and in the source map.
	Path string
	// SourceRoot is written to the source map so Path resolves from the
	// output directory.
	SourceRoot string
	// OutName is the output file name the map comment points at.
	OutName string
}

// Compile transpiles and minifies in.
func (sc *ScriptCompiler) Compile(in ScriptInput) (*ScriptOutput, error) {
	opts := api.TransformOptions{
		Loader:            api.LoaderJS,
		Target:            sc.target,
		MinifyWhitespace:  true,
		MinifyIdentifiers: true,
		MinifySyntax:      true,
		Sourcefile:        in.Path,
		SourceRoot:        in.SourceRoot,
		LogLevel:          api.LogLevelSilent,
	}
	if sc.sourceMaps {
		opts.Sourcemap = api.SourceMapExternal
	}

	result := api.Transform(string(in.Code), opts)
	if len(result.Errors) > 0 {
		return nil, messageError(result.Errors, func(msg string) *pipelineerrors.PipelineError {
			return pipelineerrors.NewTranspileError(pipelineerrors.ErrCodeTranspileFailed, msg, nil)
		})
	}

	out := &ScriptOutput{Code: result.Code}
	if sc.sourceMaps {
		out.Map = result.Map
		out.Code = append(out.Code, []byte("//# sourceMappingURL="+in.OutName+".map\n")...)
	}

	return out, nil
}
