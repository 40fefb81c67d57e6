package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/roach88/swizzle/internal/engine"
)

// DefaultConfigFile is read from the working directory when --config is not
// given.
const DefaultConfigFile = "swizzle.yaml"

// EnvPrefix is the prefix of environment overrides: SWIZZLE_MAX_DEPTH sets
// max_depth.
const EnvPrefix = "SWIZZLE_"

// Config holds settings shared by every command.
type Config struct {
	Format   string `koanf:"format"`
	Verbose  bool   `koanf:"verbose"`
	DB       string `koanf:"db"`
	MaxDepth int    `koanf:"max_depth"`
}

// LoadConfig layers configuration sources.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
//
// Only flags the user set are applied, so a flag default never hides a value
// from the file or the environment. An explicit cfgFile must exist; the
// default swizzle.yaml is optional. Returns the config and the file used, if
// any.
func LoadConfig(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]any{
		"format":    "text",
		"verbose":   false,
		"db":        "",
		"max_depth": engine.DefaultMaxDepth,
	}, "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	used := cfgFile
	if used == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			used = DefaultConfigFile
		}
	}
	if used != "" {
		if err := k.Load(file.Provider(used), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", used, err)
		}
	}

	// SWIZZLE_MAX_DEPTH -> max_depth
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed || f.Name == "config" {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}
	if !isValidFormat(cfg.Format) {
		return nil, "", fmt.Errorf("invalid format %q: must be one of %v", cfg.Format, ValidFormats)
	}
	if cfg.MaxDepth < 1 {
		return nil, "", fmt.Errorf("invalid max_depth %d: must be at least 1", cfg.MaxDepth)
	}
	return &cfg, used, nil
}
