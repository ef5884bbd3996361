package build

import (
	"fmt"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"
)

const (
	mediaTypeCSS = "text/css"
	mediaTypeSVG = "image/svg+xml"
)

// Minifier minifies stylesheets and SVG documents.
type Minifier struct {
	m *minify.M
}

// NewMinifier creates a minifier with the default settings of each format.
func NewMinifier() *Minifier {
	m := minify.New()
	m.AddFunc(mediaTypeCSS, css.Minify)
	m.AddFunc(mediaTypeSVG, svg.Minify)
	return &Minifier{m: m}
}

// CSS minifies a stylesheet.
func (mn *Minifier) CSS(src []byte) ([]byte, error) {
	out, err := mn.m.Bytes(mediaTypeCSS, src)
	if err != nil {
		return nil, fmt.Errorf("minifying css: %w", err)
	}
	return out, nil
}

// SVG minifies an SVG document.
func (mn *Minifier) SVG(src []byte) ([]byte, error) {
	out, err := mn.m.Bytes(mediaTypeSVG, src)
	if err != nil {
		return nil, fmt.Errorf("minifying svg: %w", err)
	}
	return out, nil
}
