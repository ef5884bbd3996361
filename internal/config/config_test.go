package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipelineerrors "github.com/conneroisu/assetpipe/internal/errors"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setup       func()
		expectError bool
		check       func(t *testing.T, config *Config)
	}{
		{
			name: "defaults when nothing is set",
			setup: func() {
				viper.Reset()
			},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, Default(), config)
			},
		},
		{
			name: "custom output and port",
			setup: func() {
				viper.Reset()
				viper.Set("paths.output", "public")
				viper.Set("server.port", 8080)
			},
			check: func(t *testing.T, config *Config) {
				assert.Equal(t, "public", config.Paths.Output)
				assert.Equal(t, 8080, config.Server.Port)
				assert.Equal(t, "css", config.Paths.Styles.Output)
			},
		},
		{
			name: "no-open flag override",
			setup: func() {
				viper.Reset()
				viper.Set("server.open", true)
				viper.Set("server.no-open", true)
			},
			check: func(t *testing.T, config *Config) {
				assert.False(t, config.Server.Open)
			},
		},
		{
			name: "invalid viper config",
			setup: func() {
				viper.Reset()
				viper.Set("server.port", "invalid_port")
			},
			expectError: true,
		},
		{
			name: "validation failure",
			setup: func() {
				viper.Reset()
				viper.Set("scripts.target", "es3")
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()
			defer viper.Reset()

			config, err := Load()

			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, config)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, config)
			tt.check(t, config)
		})
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ASSETPIPE_SERVER_PORT", "4100")
	t.Setenv("ASSETPIPE_SCRIPTS_TARGET", "es2017")
	t.Setenv("ASSETPIPE_WATCH_DELAY", "50ms")

	v := viper.New()
	BindEnv(v)

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, 4100, config.Server.Port)
	assert.Equal(t, "es2017", config.Scripts.Target)
	assert.Equal(t, 50*time.Millisecond, config.Watch.Delay)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, DefaultFileName)
	content := `
paths:
  source: assets
  output: dist
  images:
    pattern: "**/*.{png,jpg}"
styles:
  browsers:
    - safari 14
scripts:
  sourcemaps: false
`
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, "assets", config.Paths.Source)
	assert.Equal(t, "dist", config.Paths.Output)
	assert.Equal(t, "**/*.{png,jpg}", config.Paths.Images.Pattern)
	assert.Equal(t, "img", config.Paths.Images.Source)
	assert.Equal(t, []string{"safari 14"}, config.Styles.Browsers)
	assert.False(t, config.Scripts.SourceMaps)
	assert.Equal(t, "scripts", config.Scripts.Entry)
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	file := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, WriteDefault(file, false))

	err := WriteDefault(file, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
	require.NoError(t, WriteDefault(file, true))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	config, err := LoadFrom(v)
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "port zero allowed", mutate: func(c *Config) { c.Server.Port = 0 }},
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantErr: "not in valid range",
		},
		{
			name:    "port attempts",
			mutate:  func(c *Config) { c.Server.PortAttempts = 0 },
			wantErr: "port_attempts",
		},
		{
			name:    "dangerous host",
			mutate:  func(c *Config) { c.Server.Host = "localhost;rm" },
			wantErr: "dangerous character",
		},
		{
			name:    "traversal in output",
			mutate:  func(c *Config) { c.Paths.Output = "../outside" },
			wantErr: "traversal",
		},
		{
			name:    "absolute source",
			mutate:  func(c *Config) { c.Paths.Source = "/etc" },
			wantErr: "relative",
		},
		{
			name:    "source equals output",
			mutate:  func(c *Config) { c.Paths.Output = "src" },
			wantErr: "must differ",
		},
		{
			name:    "colliding category outputs",
			mutate:  func(c *Config) { c.Paths.Fonts.Output = "img" },
			wantErr: "both write to output",
		},
		{
			name:    "bad glob",
			mutate:  func(c *Config) { c.Paths.Styles.Pattern = "[" },
			wantErr: "not a valid glob",
		},
		{
			name:    "unknown browser",
			mutate:  func(c *Config) { c.Styles.Browsers = []string{"netscape 4"} },
			wantErr: "unknown browser",
		},
		{
			name:    "compiler injection",
			mutate:  func(c *Config) { c.Styles.Compiler = "sass; rm -rf /" },
			wantErr: "dangerous character",
		},
		{
			name:    "bundle without extension",
			mutate:  func(c *Config) { c.Scripts.Bundle = "scripts" },
			wantErr: "extension",
		},
		{
			name:    "unsupported target",
			mutate:  func(c *Config) { c.Scripts.Target = "es3" },
			wantErr: "unsupported target",
		},
		{
			name:    "negative delay",
			mutate:  func(c *Config) { c.Watch.Delay = -time.Second },
			wantErr: "delay",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "log config",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: "format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)

			err := validateConfig(c)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateConfigErrorCodes(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		code   string
	}{
		{
			name:   "traversal",
			mutate: func(c *Config) { c.Paths.Fonts.Output = "../fonts" },
			code:   pipelineerrors.ErrCodePathTraversal,
		},
		{
			name:   "bad glob",
			mutate: func(c *Config) { c.Paths.Images.Pattern = "[" },
			code:   pipelineerrors.ErrCodeInvalidGlob,
		},
		{
			name:   "bad port",
			mutate: func(c *Config) { c.Server.Port = 70000 },
			code:   pipelineerrors.ErrCodeConfigInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)

			err := validateConfig(c)
			require.Error(t, err)
			assert.True(t, pipelineerrors.IsType(err, pipelineerrors.ErrorTypeConfig))

			var pe *pipelineerrors.PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
		})
	}
}

func TestDefaultScriptTarget(t *testing.T) {
	// esbuild cannot lower let, const or classes to es5.
	assert.Equal(t, "es2015", Default().Scripts.Target)
	require.NoError(t, validateConfig(Default()))
}

func TestParseBrowsers(t *testing.T) {
	browsers, err := ParseBrowsers([]string{"Safari 14.1", "chrome 90"})
	require.NoError(t, err)
	assert.Equal(t, []Browser{{Name: "safari", Version: "14.1"}, {Name: "chrome", Version: "90"}}, browsers)
	assert.Equal(t, "safari 14.1", browsers[0].String())

	_, err = ParseBrowsers([]string{"chrome"})
	assert.Error(t, err)

	_, err = ParseBrowsers([]string{"chrome latest"})
	assert.Error(t, err)
}
