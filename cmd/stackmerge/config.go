package main

import (
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	// OutputDir is where results are written when no bucket is configured,
	// a dated directory under the temporary directory by default.
	OutputDir string `yaml:"output_dir" env:"STACKMERGE_OUTPUT_DIR"`
	// Bucket is a gocloud.dev bucket URL such as gs://name or file:///path.
	Bucket string `yaml:"bucket" env:"STACKMERGE_BUCKET"`

	TruncateMarker string `yaml:"truncate_marker" env:"STACKMERGE_TRUNCATE_MARKER"`
	Compact        bool   `yaml:"compact" env:"STACKMERGE_COMPACT"`

	Timeout        time.Duration `yaml:"timeout" env:"STACKMERGE_TIMEOUT" env-default:"10s"`
	RetryCount     int           `yaml:"retries" env:"STACKMERGE_RETRIES" env-default:"2"`
	MaxConcurrency int           `yaml:"max_concurrency" env:"STACKMERGE_MAX_CONCURRENCY" env-default:"64"`
	Path           string        `yaml:"path" env:"STACKMERGE_CALLSTACK_PATH" env-default:"/apis/pythonext/callstack"`
}

// loadConfig reads the configuration from the environment, on top of a YAML
// file when path is set.
func loadConfig(path string) (Config, error) {
	var cfg Config
	if path != "" {
		err := cleanenv.ReadConfig(path, &cfg)
		return cfg, err
	}
	err := cleanenv.ReadEnv(&cfg)
	return cfg, err
}
