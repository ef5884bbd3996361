package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
	"github.com/conneroisu/assetpipe/internal/logging"
)

// Browser is one entry of the declared style support range.
type Browser struct {
	Name    string
	Version string
}

// String renders the entry in configuration form.
func (b Browser) String() string {
	return b.Name + " " + b.Version
}

var (
	knownBrowsers = map[string]bool{
		"chrome":  true,
		"edge":    true,
		"firefox": true,
		"safari":  true,
		"ios":     true,
		"opera":   true,
		"ie":      true,
	}

	versionPattern = regexp.MustCompile(`^\d+(\.\d+){0,2}$`)

	// ScriptTargets lists the accepted scripts.target values.
	ScriptTargets = []string{
		"es5", "es2015", "es2016", "es2017", "es2018", "es2019",
		"es2020", "es2021", "es2022", "esnext",
	}

	dangerousChars = []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'"}

	errPathTraversal = errors.New("path contains traversal")
	errInvalidGlob   = errors.New("is not a valid glob")
)

// ParseBrowsers parses "name version" entries such as "safari 15".
func ParseBrowsers(entries []string) ([]Browser, error) {
	browsers := make([]Browser, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(strings.ToLower(entry))
		if len(fields) != 2 {
			return nil, fmt.Errorf("browser %q must be \"<name> <version>\"", entry)
		}
		if !knownBrowsers[fields[0]] {
			return nil, fmt.Errorf("unknown browser %q", fields[0])
		}
		if !versionPattern.MatchString(fields[1]) {
			return nil, fmt.Errorf("invalid version %q for browser %s", fields[1], fields[0])
		}
		browsers = append(browsers, Browser{Name: fields[0], Version: fields[1]})
	}
	return browsers, nil
}

// validateConfig validates configuration values for security and correctness.
// Failures are config PipelineErrors.
func validateConfig(config *Config) error {
	if err := validatePathsConfig(&config.Paths); err != nil {
		return configError("paths", err)
	}

	if err := validateStylesConfig(&config.Styles); err != nil {
		return configError("styles", err)
	}

	if err := validateScriptsConfig(&config.Scripts); err != nil {
		return configError("scripts", err)
	}

	if err := validateServerConfig(&config.Server); err != nil {
		return configError("server", err)
	}

	if config.Watch.Delay < 0 {
		return configError("watch", errors.New("delay must not be negative"))
	}

	if _, err := logging.ParseLevel(config.Log.Level); err != nil {
		return configError("log", err)
	}
	if config.Log.Format != "text" && config.Log.Format != "json" {
		return configError("log", fmt.Errorf("format %q must be text or json", config.Log.Format))
	}

	return nil
}

func configError(section string, err error) error {
	code := pipelineerrors.ErrCodeConfigInvalid
	switch {
	case errors.Is(err, errPathTraversal):
		code = pipelineerrors.ErrCodePathTraversal
	case errors.Is(err, errInvalidGlob):
		code = pipelineerrors.ErrCodeInvalidGlob
	}
	return pipelineerrors.NewConfigError(code, section+" config: "+err.Error())
}

func validatePathsConfig(config *PathsConfig) error {
	if err := validatePath(config.Source); err != nil {
		return fmt.Errorf("invalid source '%s': %w", config.Source, err)
	}
	if err := validatePath(config.Output); err != nil {
		return fmt.Errorf("invalid output '%s': %w", config.Output, err)
	}
	if filepath.Clean(config.Source) == filepath.Clean(config.Output) {
		return fmt.Errorf("source and output must differ (both %q)", config.Source)
	}

	categories := map[string]CategoryPaths{
		"styles":  config.Styles,
		"scripts": config.Scripts,
		"images":  config.Images,
		"fonts":   config.Fonts,
		"markup":  config.Markup,
	}

	outputs := make(map[string]string, len(categories))
	for name, cat := range categories {
		if err := validatePath(cat.Source); err != nil {
			return fmt.Errorf("%s source '%s': %w", name, cat.Source, err)
		}
		if err := validatePath(cat.Output); err != nil {
			return fmt.Errorf("%s output '%s': %w", name, cat.Output, err)
		}
		if cat.Pattern == "" || !doublestar.ValidatePattern(cat.Pattern) {
			return fmt.Errorf("%s pattern %q %w", name, cat.Pattern, errInvalidGlob)
		}

		out := path.Clean(filepath.ToSlash(cat.Output))
		if other, taken := outputs[out]; taken {
			return fmt.Errorf("%s and %s both write to output %q", other, name, cat.Output)
		}
		outputs[out] = name
	}

	return nil
}

func validateStylesConfig(config *StylesConfig) error {
	if config.Entry == "" {
		return fmt.Errorf("entry must be set")
	}
	if err := validatePath(config.Entry); err != nil {
		return fmt.Errorf("invalid entry '%s': %w", config.Entry, err)
	}
	if strings.TrimSpace(config.Compiler) == "" {
		return fmt.Errorf("compiler must be set")
	}
	for _, char := range dangerousChars {
		if strings.Contains(config.Compiler, char) {
			return fmt.Errorf("compiler contains dangerous character: %s", char)
		}
	}
	if _, err := ParseBrowsers(config.Browsers); err != nil {
		return err
	}
	return nil
}

func validateScriptsConfig(config *ScriptsConfig) error {
	if err := validatePath(config.Entry); err != nil {
		return fmt.Errorf("invalid entry '%s': %w", config.Entry, err)
	}
	if err := validatePath(config.Bundle); err != nil {
		return fmt.Errorf("invalid bundle '%s': %w", config.Bundle, err)
	}
	if filepath.Ext(config.Bundle) == "" {
		return fmt.Errorf("bundle %q needs a file extension", config.Bundle)
	}

	target := strings.ToLower(config.Target)
	for _, allowed := range ScriptTargets {
		if target == allowed {
			return nil
		}
	}
	return fmt.Errorf("unsupported target %q (supported: %s)", config.Target, strings.Join(ScriptTargets, ", "))
}

// validateServerConfig validates server configuration values
func validateServerConfig(config *ServerConfig) error {
	// 0 lets the system pick a port, used by tests.
	if config.Port < 0 || config.Port > 65535 {
		return fmt.Errorf("port %d is not in valid range 0-65535", config.Port)
	}
	if config.PortAttempts < 1 {
		return fmt.Errorf("port_attempts must be at least 1")
	}

	for _, char := range append(dangerousChars, "\\") {
		if strings.Contains(config.Host, char) {
			return fmt.Errorf("host contains dangerous character: %s", char)
		}
	}

	return nil
}

// validatePath validates a relative project path for security
func validatePath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(p)

	if filepath.IsAbs(cleanPath) {
		return fmt.Errorf("path must be relative to the project root: %s", p)
	}

	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) ||
		strings.Contains(cleanPath, string(filepath.Separator)+".."+string(filepath.Separator)) {
		return fmt.Errorf("%w: %s", errPathTraversal, p)
	}

	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}
