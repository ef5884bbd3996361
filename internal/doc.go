// Package internal contains the implementation packages of assetpipe.
//
// # Package Organization
//
//   - config: Configuration loading, defaults and validation
//   - registry: The path layout of each asset category
//   - build: Asset transforms (sass, prefixing, media query merging,
//     minification, bundling, transpiling, image optimization)
//   - tasks: Named tasks, fault policies and series/parallel composition
//   - watcher: Recursive file watching with debouncing
//   - pipeline: Default, build and single-task runs plus the watch coordinator
//   - websocket: The reload hub browsers connect to
//   - server: The development server serving the output folder
//   - errors: Structured pipeline errors and per-file error collection
//   - logging: Structured logging on top of log/slog
//   - metrics: Task and reload metrics, in memory or for Prometheus
//   - version: Build and version information
//
// # Data Flow
//
// The watcher reports batches of changed files. The pipeline coordinator
// routes each batch to the bindings whose category matches, and every
// binding runs its reaction strictly in order on its own goroutine. A
// reaction rebuilds its category into the output folder and then notifies
// the websocket hub, which tells connected pages to swap stylesheets or
// reload.
package internal
