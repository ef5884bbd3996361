// Package config provides configuration management for the asset pipeline
// using Viper for loading from files, environment variables, and
// command-line flags.
//
// The configuration system supports YAML files, environment variable
// overrides with the ASSETPIPE_ prefix, and validation. It holds the source
// and output layout for every asset category, transform options for styles,
// scripts and images, and the dev server and watcher settings. Defaults
// reproduce the conventional src/ to app/ layout, so a project without a
// config file builds as-is.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Styles  StylesConfig  `mapstructure:"styles" yaml:"styles"`
	Scripts ScriptsConfig `mapstructure:"scripts" yaml:"scripts"`
	Images  ImagesConfig  `mapstructure:"images" yaml:"images"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Watch   WatchConfig   `mapstructure:"watch" yaml:"watch"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// PathsConfig is the project layout. Category paths are relative to Source
// and Output respectively.
type PathsConfig struct {
	Source  string        `mapstructure:"source" yaml:"source"`
	Output  string        `mapstructure:"output" yaml:"output"`
	Styles  CategoryPaths `mapstructure:"styles" yaml:"styles"`
	Scripts CategoryPaths `mapstructure:"scripts" yaml:"scripts"`
	Images  CategoryPaths `mapstructure:"images" yaml:"images"`
	Fonts   CategoryPaths `mapstructure:"fonts" yaml:"fonts"`
	Markup  CategoryPaths `mapstructure:"markup" yaml:"markup"`
}

type CategoryPaths struct {
	Source  string `mapstructure:"source" yaml:"source"`
	Pattern string `mapstructure:"pattern" yaml:"pattern"`
	Output  string `mapstructure:"output" yaml:"output"`
}

type StylesConfig struct {
	Entry     string   `mapstructure:"entry" yaml:"entry"`
	Compiler  string   `mapstructure:"compiler" yaml:"compiler"`
	Browsers  []string `mapstructure:"browsers" yaml:"browsers"`
	LoadPaths []string `mapstructure:"load_paths" yaml:"load_paths,omitempty"`
}

type ScriptsConfig struct {
	Entry      string `mapstructure:"entry" yaml:"entry"`
	Bundle     string `mapstructure:"bundle" yaml:"bundle"`
	Target     string `mapstructure:"target" yaml:"target"`
	SourceMaps bool   `mapstructure:"sourcemaps" yaml:"sourcemaps"`
}

type ImagesConfig struct {
	// JpegTran names the lossless JPEG optimizer binary; empty disables it.
	JpegTran string `mapstructure:"jpegtran" yaml:"jpegtran"`
}

type ServerConfig struct {
	Host           string   `mapstructure:"host" yaml:"host"`
	Port           int      `mapstructure:"port" yaml:"port"`
	PortAttempts   int      `mapstructure:"port_attempts" yaml:"port_attempts"`
	Open           bool     `mapstructure:"open" yaml:"open"`
	Metrics        bool     `mapstructure:"metrics" yaml:"metrics"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

type WatchConfig struct {
	Delay time.Duration `mapstructure:"delay" yaml:"delay"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Paths: PathsConfig{
			Source:  "src",
			Output:  "app",
			Styles:  CategoryPaths{Source: "scss", Pattern: "**/*.scss", Output: "css"},
			Scripts: CategoryPaths{Source: "js", Pattern: "**/*.js", Output: "js"},
			Images:  CategoryPaths{Source: "img", Pattern: "**/*.*", Output: "img"},
			Fonts:   CategoryPaths{Source: "fonts", Pattern: "**/*.*", Output: "fonts"},
			Markup:  CategoryPaths{Source: ".", Pattern: "**/*.html", Output: "."},
		},
		Styles: StylesConfig{
			Entry:    "style.scss",
			Compiler: "sass",
			// Roughly "last 2 versions, > 1%".
			Browsers: []string{
				"chrome 109",
				"edge 109",
				"firefox 115",
				"safari 15",
				"ios 15",
				"opera 95",
			},
		},
		Scripts: ScriptsConfig{
			Entry:      "scripts",
			Bundle:     "scripts.js",
			Target:     "es2015",
			SourceMaps: true,
		},
		Images: ImagesConfig{
			JpegTran: "jpegtran",
		},
		Server: ServerConfig{
			Host:         "localhost",
			Port:         3000,
			PortAttempts: 20,
			Open:         true,
		},
		Watch: WatchConfig{
			Delay: 200 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers Default() on v so that unset keys fall back to it.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("paths.source", d.Paths.Source)
	v.SetDefault("paths.output", d.Paths.Output)
	for name, cat := range map[string]CategoryPaths{
		"styles":  d.Paths.Styles,
		"scripts": d.Paths.Scripts,
		"images":  d.Paths.Images,
		"fonts":   d.Paths.Fonts,
		"markup":  d.Paths.Markup,
	} {
		v.SetDefault("paths."+name+".source", cat.Source)
		v.SetDefault("paths."+name+".pattern", cat.Pattern)
		v.SetDefault("paths."+name+".output", cat.Output)
	}

	v.SetDefault("styles.entry", d.Styles.Entry)
	v.SetDefault("styles.compiler", d.Styles.Compiler)
	v.SetDefault("styles.browsers", d.Styles.Browsers)

	v.SetDefault("scripts.entry", d.Scripts.Entry)
	v.SetDefault("scripts.bundle", d.Scripts.Bundle)
	v.SetDefault("scripts.target", d.Scripts.Target)
	v.SetDefault("scripts.sourcemaps", d.Scripts.SourceMaps)

	v.SetDefault("images.jpegtran", d.Images.JpegTran)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.port_attempts", d.Server.PortAttempts)
	v.SetDefault("server.open", d.Server.Open)
	v.SetDefault("server.metrics", d.Server.Metrics)

	v.SetDefault("watch.delay", d.Watch.Delay)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
}

// EnvPrefix prefixes every environment override, e.g. ASSETPIPE_SERVER_PORT.
const EnvPrefix = "ASSETPIPE"

// BindEnv enables ASSETPIPE_* environment overrides on v.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// --no-open is bound separately so it can win over a config file's open: true.
	if v.IsSet("server.no-open") && v.GetBool("server.no-open") {
		config.Server.Open = false
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
