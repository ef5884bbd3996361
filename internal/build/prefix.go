package build

import (
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetpipe/internal/config"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"safari":  api.EngineSafari,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"ie":      api.EngineIE,
}

// Prefixer adds vendor prefixes for a browser support range. It runs the
// CSS through esbuild with the range as target engines.
type Prefixer struct {
	engines []api.Engine
}

// NewPrefixer builds a prefixer for browsers.
func NewPrefixer(browsers []config.Browser) (*Prefixer, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		name, ok := engineNames[b.Name]
		if !ok {
			return nil, fmt.Errorf("no engine for browser %q", b.Name)
		}
		engines = append(engines, api.Engine{Name: name, Version: b.Version})
	}
	return &Prefixer{engines: engines}, nil
}

// Prefix returns css with the prefixed declarations the engines need.
func (p *Prefixer) Prefix(css []byte) ([]byte, error) {
	result := api.Transform(string(css), api.TransformOptions{
		Loader:   api.LoaderCSS,
		Engines:  p.engines,
		LogLevel: api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("prefixing failed: %s", formatMessages(result.Errors))
	}

	return result.Code, nil
}

func formatMessages(msgs []api.Message) string {
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		if msg.Location != nil {
			parts = append(parts, fmt.Sprintf("%s:%d:%d: %s",
				msg.Location.File, msg.Location.Line, msg.Location.Column, msg.Text))
			continue
		}
		parts = append(parts, msg.Text)
	}
	return strings.Join(parts, "; ")
}
