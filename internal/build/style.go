package build

import (
	"context"
	"fmt"
)

// StyleChain is the ordered stylesheet transform: compile, prefix, merge
// media queries, minify.
type StyleChain struct {
	Compiler Compiler
	Prefixer *Prefixer
	Minifier *Minifier
}

// Process runs the chain on entry and returns the final CSS. A compile
// error is returned unchanged so callers can inspect its location.
func (sc *StyleChain) Process(ctx context.Context, entry string) ([]byte, error) {
	compiled, err := sc.Compiler.Compile(ctx, entry)
	if err != nil {
		return nil, err
	}

	prefixed, err := sc.Prefixer.Prefix(compiled)
	if err != nil {
		return nil, err
	}

	merged, err := MergeMediaQueries(prefixed)
	if err != nil {
		return nil, fmt.Errorf("merging media queries: %w", err)
	}

	return sc.Minifier.CSS(merged)
}
