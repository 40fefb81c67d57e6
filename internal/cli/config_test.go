package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/swizzle/internal/engine"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "swizzle.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// rootFlags returns the root command's persistent flags parsed from args.
func rootFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	flags := NewRootCommand().PersistentFlags()
	require.NoError(t, flags.Parse(args))
	return flags
}

func TestLoadConfig_Defaults(t *testing.T) {
	chdir(t, t.TempDir()) // no ./swizzle.yaml

	cfg, used, err := LoadConfig("", rootFlags(t))
	require.NoError(t, err)

	assert.Empty(t, used)
	assert.Equal(t, &Config{Format: "text", MaxDepth: engine.DefaultMaxDepth}, cfg)
}

func TestLoadConfig_Precedence(t *testing.T) {
	file := writeConfig(t, "format: json\nmax_depth: 8\ndb: file.db\nverbose: true\n")

	tests := []struct {
		name  string
		env   map[string]string
		flags []string
		want  Config
	}{
		{
			name: "file_over_defaults",
			want: Config{Format: "json", Verbose: true, DB: "file.db", MaxDepth: 8},
		},
		{
			name: "env_over_file",
			env:  map[string]string{"SWIZZLE_MAX_DEPTH": "16", "SWIZZLE_DB": "env.db"},
			want: Config{Format: "json", Verbose: true, DB: "env.db", MaxDepth: 16},
		},
		{
			name:  "flags_over_env",
			env:   map[string]string{"SWIZZLE_MAX_DEPTH": "16"},
			flags: []string{"--max-depth", "4", "--format", "text"},
			want:  Config{Format: "text", Verbose: true, DB: "file.db", MaxDepth: 4},
		},
		{
			name:  "unset_flag_defaults_do_not_override",
			flags: []string{"--db", "flag.db"},
			want:  Config{Format: "json", Verbose: true, DB: "flag.db", MaxDepth: 8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			cfg, used, err := LoadConfig(file, rootFlags(t, tt.flags...))
			require.NoError(t, err)
			assert.Equal(t, file, used)
			assert.Equal(t, tt.want, *cfg)
		})
	}
}

func TestLoadConfig_DefaultFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("max_depth: 3\n"), 0o644))
	chdir(t, dir)

	cfg, used, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfigFile, used)
	assert.Equal(t, 3, cfg.MaxDepth)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		flags   []string
		wantErr string
	}{
		{
			name:    "missing_explicit_file",
			file:    filepath.Join(t.TempDir(), "nope.yaml"),
			wantErr: "error reading config file",
		},
		{
			name:    "invalid_format",
			flags:   []string{"--format", "xml"},
			wantErr: "invalid format",
		},
		{
			name:    "zero_depth",
			file:    writeConfig(t, "max_depth: 0\n"),
			wantErr: "invalid max_depth",
		},
		{
			name:    "malformed_yaml",
			file:    writeConfig(t, "format: [json\n"),
			wantErr: "error reading config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chdir(t, t.TempDir())
			_, _, err := LoadConfig(tt.file, rootFlags(t, tt.flags...))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// chdir changes the working directory for the duration of the test.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { require.NoError(t, os.Chdir(prev)) })
}
