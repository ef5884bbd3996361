package build

import (
	"bytes"
	"context"
	"fmt"
	"image/gif"
	"image/jpeg"
	"image/png"
	"os/exec"
	"path/filepath"
	"strings"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

// ImageOptimizer reduces image size without changing pixels. The result is
// never larger than the input; formats it does not know pass through.
type ImageOptimizer struct {
	jpegtran string
	minifier *Minifier
}

// NewImageOptimizer creates an optimizer. jpegtran names the JPEG optimizer
// binary; when it is empty or not on PATH, JPEGs are validated and copied.
func NewImageOptimizer(jpegtran string, minifier *Minifier) *ImageOptimizer {
	o := &ImageOptimizer{minifier: minifier}
	if jpegtran != "" {
		if bin, err := exec.LookPath(jpegtran); err == nil {
			o.jpegtran = bin
		}
	}
	return o
}

// HasJpegTran reports whether JPEGs go through jpegtran.
func (o *ImageOptimizer) HasJpegTran() bool {
	return o.jpegtran != ""
}

// Optimize returns the optimized form of data, whose file name is name.
// Undecodable images return an optimize error so the caller can skip them.
func (o *ImageOptimizer) Optimize(ctx context.Context, name string, data []byte) ([]byte, error) {
	var (
		optimized []byte
		err       error
	)

	switch strings.ToLower(filepath.Ext(name)) {
	case ".png":
		optimized, err = optimizePNG(data)
	case ".gif":
		optimized, err = optimizeGIF(data)
	case ".jpg", ".jpeg":
		optimized, err = o.optimizeJPEG(ctx, data)
	case ".svg":
		optimized, err = o.minifier.SVG(data)
	default:
		return data, nil
	}

	if err != nil {
		return nil, pipelineerrors.NewOptimizeError(pipelineerrors.ErrCodeImageDecode,
			fmt.Sprintf("cannot optimize %s", filepath.Base(name)), err).
			WithLocation(name, 0, 0)
	}

	return smaller(optimized, data), nil
}

func optimizePNG(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func optimizeGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *ImageOptimizer) optimizeJPEG(ctx context.Context, data []byte) ([]byte, error) {
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		return nil, err
	}

	if o.jpegtran == "" {
		return data, nil
	}

	cmd := exec.CommandContext(ctx, o.jpegtran, "-copy", "none", "-optimize")
	cmd.Stdin = bytes.NewReader(data)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("jpegtran failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func smaller(optimized, original []byte) []byte {
	if len(optimized) == 0 || len(optimized) >= len(original) {
		return original
	}
	return optimized
}
