package config

import "github.com/leapstack-labs/leapcheck/internal/engine"

// Default configuration values.
const (
	FileName    = "leapcheck.yaml"
	FileNameAlt = "leapcheck.yml"
	EnvPrefix   = "LEAPCHECK_"

	DefaultOutputDir = "./validation_runs"
	DefaultManifest  = "rules.yaml"
	DefaultStateFile = ".leapcheck/state.db"
	DefaultTarget    = "postgres"
	DefaultLogLevel  = "info"
	DefaultLogFormat = "text"
	DefaultOutput    = "auto" // TTY=text, non-TTY=markdown
	DefaultPrefix    = "leapcheck"
)

func defaults() map[string]any {
	return map[string]any{
		"output_dir":            DefaultOutputDir,
		"manifest":              DefaultManifest,
		"state_path":            DefaultStateFile,
		"workers":               engine.DefaultWorkers,
		"strict":                false,
		"verbose":               false,
		"output":                DefaultOutput,
		"retry.max_attempts":    engine.DefaultMaxAttempts,
		"retry.base_delay":      engine.DefaultBaseDelay.String(),
		"retry.max_delay":       engine.DefaultMaxDelay.String(),
		"target.type":           DefaultTarget,
		"log.level":             DefaultLogLevel,
		"log.format":            DefaultLogFormat,
		"publish.enabled":       false,
		"publish.driver":        "fs",
		"publish.prefix":        DefaultPrefix,
		"publish.fs.root":       "./published",
		"publish.s3.region":     "us-east-1",
		"publish.s3.path_style": false,
	}
}

// flagKeys maps flag names to config keys. Flags absent from the map are
// command arguments, not configuration.
var flagKeys = map[string]string{
	"output-dir": "output_dir",
	"manifest":   "manifest",
	"state":      "state_path",
	"workers":    "workers",
	"strict":     "strict",
	"verbose":    "verbose",
	"output":     "output",
	"log-level":  "log.level",
	"log-format": "log.format",
	"target-url": "target.url",
}

// pathFlags are resolved against the working directory rather than the
// project root.
var pathFlags = map[string]bool{
	"output-dir": true,
	"manifest":   true,
	"state":      true,
}
