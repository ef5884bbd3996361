// Package registry maps asset categories to their source globs and output
// directories. It holds layout only; the transform tasks and the watch
// coordinator read it to know where to look and where to write.
package registry

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/assetpipe/internal/config"
)

// Category names one kind of asset.
type Category string

const (
	Styles  Category = "styles"
	Scripts Category = "scripts"
	Images  Category = "images"
	Fonts   Category = "fonts"
	Markup  Category = "markup"
)

// Categories lists every category in pipeline order.
var Categories = []Category{Styles, Scripts, Images, Fonts, Markup}

// Entry is the layout of one category. Paths are slash-separated and
// relative to the project root.
type Entry struct {
	Category Category `json:"category" yaml:"category"`
	// SourceDir is the directory the pattern is evaluated in, e.g. src/scss.
	SourceDir string `json:"source_dir" yaml:"source_dir"`
	// Pattern is relative to SourceDir, e.g. **/*.scss.
	Pattern string `json:"pattern" yaml:"pattern"`
	// WatchGlob is relative to the source root, e.g. scss/**/*.scss.
	WatchGlob string `json:"watch_glob" yaml:"watch_glob"`
	// OutputDir receives the category's outputs, e.g. app/css.
	OutputDir string `json:"output_dir" yaml:"output_dir"`
}

// Glob returns the full project-relative pattern, e.g. src/scss/**/*.scss.
func (e Entry) Glob() string {
	return path.Join(e.SourceDir, e.Pattern)
}

// Registry is the immutable path layout of one project.
type Registry struct {
	root       string
	sourceRoot string
	outputRoot string
	entries    map[Category]Entry
}

// New builds the layout for the project at root. A relative root is made
// absolute against the working directory.
func New(root string, paths config.PathsConfig) *Registry {
	source := cleanSlash(paths.Source)
	output := cleanSlash(paths.Output)

	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}

	r := &Registry{
		root:       filepath.Clean(root),
		sourceRoot: source,
		outputRoot: output,
		entries:    make(map[Category]Entry, len(Categories)),
	}

	for category, cat := range map[Category]config.CategoryPaths{
		Styles:  paths.Styles,
		Scripts: paths.Scripts,
		Images:  paths.Images,
		Fonts:   paths.Fonts,
		Markup:  paths.Markup,
	} {
		r.entries[category] = Entry{
			Category:  category,
			SourceDir: path.Join(source, cleanSlash(cat.Source)),
			Pattern:   cat.Pattern,
			WatchGlob: path.Join(cleanSlash(cat.Source), cat.Pattern),
			OutputDir: path.Join(output, cleanSlash(cat.Output)),
		}
	}

	return r
}

// Root returns the project root directory.
func (r *Registry) Root() string { return r.root }

// SourceRoot returns the absolute source directory.
func (r *Registry) SourceRoot() string { return r.Abs(r.sourceRoot) }

// OutputRoot returns the absolute output directory.
func (r *Registry) OutputRoot() string { return r.Abs(r.outputRoot) }

// Get returns the entry for category.
func (r *Registry) Get(category Category) (Entry, bool) {
	e, ok := r.entries[category]
	return e, ok
}

// Entry returns the entry for category and panics on an unknown category.
func (r *Registry) Entry(category Category) Entry {
	e, ok := r.entries[category]
	if !ok {
		panic("registry: unknown category " + string(category))
	}
	return e
}

// All returns every entry in pipeline order.
func (r *Registry) All() []Entry {
	entries := make([]Entry, 0, len(Categories))
	for _, c := range Categories {
		entries = append(entries, r.entries[c])
	}
	return entries
}

// Abs resolves a slash-separated project-relative path against the root.
func (r *Registry) Abs(rel string) string {
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// Relative converts an absolute or root-relative filesystem path to the
// slash-separated project-relative form. It reports false for paths outside
// the root.
func (r *Registry) Relative(p string) (string, bool) {
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, p)
	}
	rel, err := filepath.Rel(r.root, p)
	if err != nil {
		return "", false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return "", false
	}
	return rel, true
}

// Match reports whether the filesystem path p belongs to category.
func (r *Registry) Match(category Category, p string) bool {
	e, ok := r.entries[category]
	if !ok {
		return false
	}
	rel, ok := r.Relative(p)
	if !ok {
		return false
	}
	matched, err := doublestar.Match(e.Glob(), rel)
	return err == nil && matched
}

func cleanSlash(p string) string {
	return path.Clean(filepath.ToSlash(p))
}
