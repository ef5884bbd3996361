package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newProjectDir moves into an empty project with fresh configuration state.
func newProjectDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	prevWD, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prevWD) })

	viper.Reset()
	cfgFile = ""
	initForce = false
	t.Cleanup(viper.Reset)

	return dir
}

func writeFile(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.FromSlash(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func newTestCommand() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	return cmd, buf
}

func TestInitCommand(t *testing.T) {
	newProjectDir(t)

	cmd, out := newTestCommand()
	require.NoError(t, runInit(cmd, nil))

	assert.FileExists(t, ".assetpipe.yml")
	for _, dir := range []string{"src", "src/scss", "src/js", "src/img", "src/fonts"} {
		assert.DirExists(t, dir)
	}
	assert.Contains(t, out.String(), "Wrote .assetpipe.yml")
	assert.Contains(t, out.String(), "Created src/scss/")

	data, err := os.ReadFile(".assetpipe.yml")
	require.NoError(t, err)
	assert.Contains(t, string(data), "entry: style.scss")
}

func TestInitCommandRefusesToOverwrite(t *testing.T) {
	newProjectDir(t)
	writeFile(t, ".assetpipe.yml", "custom: true\n")

	cmd, _ := newTestCommand()
	err := runInit(cmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--force")

	data, err := os.ReadFile(".assetpipe.yml")
	require.NoError(t, err)
	assert.Equal(t, "custom: true\n", string(data))

	initForce = true
	require.NoError(t, runInit(cmd, nil))
	data, err = os.ReadFile(".assetpipe.yml")
	require.NoError(t, err)
	assert.NotContains(t, string(data), "custom: true")
}

func TestListCommandJSON(t *testing.T) {
	newProjectDir(t)
	listFlags.OutputFormat = "json"
	t.Cleanup(func() { listFlags.OutputFormat = "table" })

	cmd, out := newTestCommand()
	require.NoError(t, runList(cmd, nil))

	var entries []listEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entries))
	require.Len(t, entries, 5)

	assert.Equal(t, "styles", entries[0].Category)
	assert.Equal(t, "src/scss/**/*.scss", entries[0].Sources)
	assert.Equal(t, "app/css", entries[0].Output)
	assert.Contains(t, entries[0].Reaction, "stream css")
	for _, e := range entries[1:] {
		assert.Contains(t, e.Reaction, "full reload", e.Category)
	}
}

func TestListCommandFormats(t *testing.T) {
	newProjectDir(t)
	t.Cleanup(func() { listFlags.OutputFormat = "table" })

	tests := []struct {
		format string
		want   string
	}{
		{format: "table", want: "Styles"},
		{format: "yaml", want: "category: fonts"},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			listFlags.OutputFormat = tt.format
			cmd, out := newTestCommand()
			require.NoError(t, runList(cmd, nil))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestTaskCommand(t *testing.T) {
	newProjectDir(t)
	writeFile(t, "src/fonts/sub/a.woff2", "font")

	cmd, _ := newTestCommand()
	require.NoError(t, runTask(cmd, []string{"fonts"}))
	assert.FileExists(t, filepath.Join("app", "fonts", "sub", "a.woff2"))

	err := runTask(cmd, []string{"sprites"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown task")
}

func TestBuildCommand(t *testing.T) {
	newProjectDir(t)
	writeFile(t, "src/index.html", "<html><body>hi</body></html>")
	writeFile(t, "src/fonts/a.woff", "font")

	cmd, out := newTestCommand()
	require.NoError(t, runBuild(cmd, nil))

	assert.FileExists(t, filepath.Join("app", "index.html"))
	assert.FileExists(t, filepath.Join("app", "fonts", "a.woff"))
	assert.Contains(t, out.String(), "TASK")
	assert.Contains(t, out.String(), "markup")
	assert.Contains(t, out.String(), "Build finished in")
}

func TestBuildUsesConfigFileDirectory(t *testing.T) {
	dir := newProjectDir(t)
	writeFile(t, "site/.assetpipe.yml", "paths:\n  output: dist\n")
	writeFile(t, "site/src/index.html", "<p>x</p>")

	viper.SetConfigFile(filepath.Join(dir, "site", ".assetpipe.yml"))
	require.NoError(t, viper.ReadInConfig())

	cmd, _ := newTestCommand()
	require.NoError(t, runBuild(cmd, nil))
	assert.FileExists(t, filepath.Join(dir, "site", "dist", "index.html"))
}

func TestVersionCommandJSON(t *testing.T) {
	versionFormat = "json"
	t.Cleanup(func() { versionFormat = "text" })

	cmd, out := newTestCommand()
	require.NoError(t, runVersionCommand(cmd, nil))

	var info map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &info))
	assert.Contains(t, info, "version")
	assert.Contains(t, info, "go_version")
}

func TestVersionCommandUnsupportedFormat(t *testing.T) {
	versionFormat = "xml"
	t.Cleanup(func() { versionFormat = "text" })

	cmd, _ := newTestCommand()
	assert.Error(t, runVersionCommand(cmd, nil))
}

func TestValidatePort(t *testing.T) {
	tests := []struct {
		port    string
		wantErr bool
	}{
		{"0", false},
		{"3000", false},
		{"65535", false},
		{"65536", true},
		{"-1", true},
		{"http", true},
	}

	for _, tt := range tests {
		t.Run(tt.port, func(t *testing.T) {
			err := ValidatePort(tt.port)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFlagValidation(t *testing.T) {
	cmd := &cobra.Command{}
	flags := AddStandardFlags(cmd, "server", "output")

	require.NoError(t, cmd.Flags().Set("output", "JSON"))
	assert.Equal(t, "JSON", flags.OutputFormat)

	err := cmd.Flags().Set("output", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table, json, yaml")

	require.NoError(t, cmd.Flags().Set("port", "8080"))
	assert.Equal(t, 8080, flags.Port)
	assert.Error(t, cmd.Flags().Set("port", "99999"))
}

func TestServerFlagsOverrideConfig(t *testing.T) {
	newProjectDir(t)

	cmd := &cobra.Command{}
	AddStandardFlags(cmd, "server")
	require.NoError(t, cmd.Flags().Set("port", "4100"))
	require.NoError(t, cmd.Flags().Set("no-open", "true"))

	require.NoError(t, bindServerFlags(cmd))
	cfg, err := loadConfig()
	require.NoError(t, err)
	applyNoOpen(cmd, cfg)

	assert.Equal(t, 4100, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.False(t, cfg.Server.Open)
}

func TestEnvironmentOverridesConfig(t *testing.T) {
	newProjectDir(t)
	t.Setenv("ASSETPIPE_SERVER_PORT", "4200")
	initConfig()

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 4200, cfg.Server.Port)
}
