package internal

import (
	"fmt"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/blob"
	"github.com/clipforge/clipforge/internal/database"
	"github.com/ilyakaznacheev/cleanenv"
	homedir "github.com/mitchellh/go-homedir"
)

// Config is the top-level configuration for the service, populated
// from a YAML file and/or environment variables.
type Config struct {
	Pipeline PipelineConfig  `yaml:"pipeline"`
	Database database.Config `yaml:"database" env-required:"true"`
	Blob     blob.Config     `yaml:"object_storage" env-required:"true"`
	API      api.Config      `yaml:"api"`
}

// PipelineConfig holds the scheduler and executor tunables. The
// concurrency budget is shared policy: the foreground and background
// queues each run their own counter capped at MaxConcurrentTasks.
type PipelineConfig struct {
	MaxConcurrentTasks int    `yaml:"max_concurrent_tasks" env:"MAX_CONCURRENT_TASKS" env-default:"4"`
	FfmpegBinaryPath   string `yaml:"ffmpeg_binary_path" env:"FFMPEG_BINARY_PATH" env-default:"/usr/bin/ffmpeg"`
	FfprobeBinaryPath  string `yaml:"ffprobe_binary_path" env:"FFPROBE_BINARY_PATH" env-default:"/usr/bin/ffprobe"`
	TempDirPath        string `yaml:"temp_dir" env:"TEMP_DIR" env-default:"/tmp/clipforge/work"`
	MetaDirPath        string `yaml:"meta_dir" env:"META_DIR" env-default:"/tmp/clipforge/meta"`
}

// LoadFromFile reads the YAML config at the path provided, applying any
// environment variable overrides on top.
func (config *Config) LoadFromFile(configPath string) error {
	if err := cleanenv.ReadConfig(configPath, config); err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	return config.expandPaths()
}

// LoadFromEnv populates the config purely from the environment, for
// deployments which do not ship a config file.
func (config *Config) LoadFromEnv() error {
	if err := cleanenv.ReadEnv(config); err != nil {
		return fmt.Errorf("failed to load configuration from environment: %w", err)
	}

	return config.expandPaths()
}

func (config *Config) expandPaths() error {
	for _, p := range []*string{&config.Pipeline.TempDirPath, &config.Pipeline.MetaDirPath} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand configured path %s: %w", *p, err)
		}
		*p = expanded
	}

	return nil
}
