package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapcheck/pkg/adapter"
)

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// configIn returns the config file in dir, or "".
func configIn(dir string) string {
	for _, name := range []string{FileName, FileNameAlt} {
		p := filepath.Join(dir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if p := configIn(dir); p != "" {
			return p
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey turns LEAPCHECK_TARGET__URL into target.url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Load reads configuration. Precedence (highest to lowest):
// flags > env vars > config file > defaults.
//
// Without an explicit cfgFile the working directory and its parents are
// searched for leapcheck.yaml. Relative paths in the file are resolved
// against the file's directory; relative path flags against the working
// directory.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	}
	projectRoot := cwd
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment (LEAPCHECK_ prefix, __ for nesting)
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags that were explicitly set
	flagPaths := map[string]string{}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			val := posflag.FlagVal(flags, f)
			if pathFlags[f.Name] {
				if s, ok := val.(string); ok && s != "" {
					if abs, err := filepath.Abs(s); err == nil {
						flagPaths[key] = abs
					}
				}
			}
			return key, val
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot
	if canonical, ok := adapter.Resolve(cfg.Target.Type); ok {
		cfg.Target.Type = canonical
	}
	cfg.File = cfgFile

	resolve := func(key string, p *string) {
		if abs, ok := flagPaths[key]; ok {
			*p = abs
			return
		}
		*p = resolvePathRelativeTo(*p, projectRoot)
	}
	resolve("output_dir", &cfg.OutputDir)
	resolve("manifest", &cfg.Manifest)
	resolve("state_path", &cfg.StatePath)
	resolve("target.path", &cfg.Target.Path)
	resolve("metrics.textfile", &cfg.Metrics.Textfile)
	resolve("publish.fs.root", &cfg.Publish.FS.Root)

	expandTargetEnvVars(&cfg.Target)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns with environment variable values.
// Unset variables are left as is.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandTargetEnvVars expands environment variables in sensitive target fields.
func expandTargetEnvVars(t *TargetConfig) {
	t.URL = expandEnvVars(t.URL)
	t.Host = expandEnvVars(t.Host)
	t.Database = expandEnvVars(t.Database)
	t.User = expandEnvVars(t.User)
	t.Password = expandEnvVars(t.Password)
	t.Path = expandEnvVars(t.Path)
}
