package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides, e.g. DDGLM_TR
const EnvPrefix = "DDGLM"

// Defaults
const (
	DefaultTR             = 0.68
	DefaultHPFilterCutoff = 1.0 / 450
	DefaultOversampling   = 10
	DefaultConfigFile     = "config.yaml"
)

// ErrConfigNotFound is returned when the config file does not exist
var ErrConfigNotFound = errors.New("config file not found")

// Config holds the paths and acquisition parameters of one study
type Config struct {
	DataRoot     string `yaml:"data_root" envconfig:"DATA_ROOT" validate:"required"`
	FmriprepDir  string `yaml:"fmriprep_dir" envconfig:"FMRIPREP_DIR" validate:"required"`
	BIDSDir      string `yaml:"bids_dir" envconfig:"BIDS_DIR" validate:"required"`
	BehaviorDir  string `yaml:"behavior_dir" envconfig:"BEHAVIOR_DIR"`
	OutputRoot   string `yaml:"output_root" envconfig:"OUTPUT_ROOT"`
	OutputDir    string `yaml:"output_dir" envconfig:"OUTPUT_DIR"`
	MasksDir     string `yaml:"masks_dir" envconfig:"MASKS_DIR" validate:"required"`
	TaskName     string `yaml:"task_name" envconfig:"TASK_NAME" validate:"required"`
	BoldFuncGlob string `yaml:"bold_func_glob" envconfig:"BOLD_FUNC_GLOB" validate:"required"`
	BoldSuffix   string `yaml:"bold_data_suffix" envconfig:"BOLD_DATA_SUFFIX" validate:"required"`
	BehavGlob    string `yaml:"behav_file_glob" envconfig:"BEHAV_FILE_GLOB" validate:"required"`

	CoreMaskFiles     map[string]string `yaml:"core_mask_files" ignored:"true"`
	OptionalMaskFiles map[string]string `yaml:"optional_mask_files" ignored:"true"`

	TR             float64 `yaml:"tr" envconfig:"TR" validate:"gt=0"`
	HPFilterCutoff float64 `yaml:"hp_filter_cutoff" envconfig:"HP_FILTER_CUTOFF" validate:"gte=0"`
	Oversampling   int     `yaml:"oversampling" envconfig:"OVERSAMPLING" validate:"gte=1"`
	Workers        int     `yaml:"workers" envconfig:"WORKERS" validate:"gte=1"`

	// Derived
	BoldFileGlob          string            `yaml:"-" ignored:"true"`
	BoldMaskFileGlob      string            `yaml:"-" ignored:"true"`
	ResolvedCoreMasks     map[string]string `yaml:"-" ignored:"true"`
	ResolvedOptionalMasks map[string]string `yaml:"-" ignored:"true"`
}

// Default returns a Config carrying only default parameters
func Default() *Config {
	return &Config{
		TR:             DefaultTR,
		HPFilterCutoff: DefaultHPFilterCutoff,
		Oversampling:   DefaultOversampling,
		Workers:        runtime.NumCPU(),
	}
}

// Load reads the YAML file, applies environment overrides, derives the glob
// patterns and validates the result
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Finalize derives the glob patterns and mask paths and validates cfg
func (c *Config) Finalize() error {
	if c.BoldFuncGlob != "" && !strings.HasSuffix(c.BoldFuncGlob, "/") {
		c.BoldFuncGlob += "/"
	}

	c.BoldFileGlob = c.BoldFuncGlob + "*" + c.TaskName + c.BoldSuffix
	c.BoldMaskFileGlob = c.BoldFuncGlob + "*" + c.TaskName + "*desc-brain_mask.nii.gz"

	c.ResolvedCoreMasks = resolveMasks(c.MasksDir, c.CoreMaskFiles)
	c.ResolvedOptionalMasks = resolveMasks(c.MasksDir, c.OptionalMaskFiles)

	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	return nil
}

// ExclusionsFile is the suggested exclusions table shipped with the BIDS data
func (c *Config) ExclusionsFile() string {
	return filepath.Join(c.DataRoot, "BIDS", "suggested_exclusions.csv")
}

// BrainMaskFile is the group brain mask used for unscaled estimates
func (c *Config) BrainMaskFile() string {
	return filepath.Join(c.MasksDir, "brain_mask.nii.gz")
}

func resolveMasks(dir string, files map[string]string) map[string]string {
	resolved := make(map[string]string, len(files))
	for roi, name := range files {
		resolved[roi] = filepath.Join(dir, name)
	}
	return resolved
}
