// Package config loads CLI configuration from defaults, an optional YAML
// config file, environment variables, and command-line flags, in that
// order of increasing priority.
package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix for environment overrides, e.g.
// CPGSCAN_ON_ERROR=skip.
const EnvPrefix = "CPGSCAN_"

// Config holds everything the scanner binary needs.
type Config struct {
	Target string `koanf:"target"`

	JSONOut   string `koanf:"json"`
	YAMLOut   string `koanf:"yaml"`
	DOTOut    string `koanf:"dot"`
	SQLiteOut string `koanf:"sqlite"`

	Findings string `koanf:"findings"`

	Recursive      bool   `koanf:"recursive"`
	FollowSymlinks bool   `koanf:"follow-symlinks"`
	OnError        string `koanf:"on-error"`
	LinkImports    bool   `koanf:"link-imports"`
	Workers        int    `koanf:"workers"`

	Verbose bool `koanf:"verbose"`
}

// Flags returns the flag set the binary parses. Defaults here mirror the
// defaults map in Load so --help shows the effective values.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("cpgscan", pflag.ContinueOnError)
	f.String("target", ".", "file or directory to scan")
	f.String("config", "", "path to a YAML config file")
	f.String("json", "", "write the graph as JSON to this path")
	f.String("yaml", "", "write the graph as YAML to this path")
	f.String("dot", "", "write the graph as Graphviz DOT to this path")
	f.String("sqlite", "", "write the graph into this SQLite database")
	f.String("findings", "", "JSON file of analyzer issues to attach")
	f.Bool("recursive", true, "descend into subdirectories")
	f.Bool("follow-symlinks", false, "follow directory symlinks during discovery")
	f.String("on-error", "raise", "per-file failure policy: raise or skip")
	f.Bool("link-imports", true, "resolve cross-file imports")
	f.Int("workers", 0, "parallel workers for the symbol-index phase (0 = all CPUs)")
	f.BoolP("verbose", "v", false, "enable debug logging")
	return f
}

// Load merges defaults, the optional config file, CPGSCAN_* environment
// variables, and parsed flags.
func Load(f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	defaults := map[string]any{
		"target":          ".",
		"json":            "",
		"yaml":            "",
		"dot":             "",
		"sqlite":          "",
		"findings":        "",
		"recursive":       true,
		"follow-symlinks": false,
		"on-error":        "raise",
		"link-imports":    true,
		"workers":         0,
		"verbose":         false,
	}
	if err := k.Load(mapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if f != nil {
		if path, _ := f.GetString("config"); path != "" {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", "-")
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// HasOutput reports whether any output sink was configured.
func (c *Config) HasOutput() bool {
	return c.JSONOut != "" || c.YAMLOut != "" || c.DOTOut != "" || c.SQLiteOut != ""
}

type rawMap map[string]any

func mapProvider(m map[string]any) rawMap { return rawMap(m) }

func (m rawMap) Read() (map[string]any, error) { return m, nil }

func (m rawMap) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
