package app

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes environment variables that override settings, e.g.
// CONNECTOME_OUT_DIRECTORY.
const EnvPrefix = "CONNECTOME_"

// Cache backends.
const (
	CacheSQLite = "sqlite"
	CacheMemory = "memory"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	BaseDirectory string `koanf:"base_directory"`
	// SubjectList is the raw comma separated list; Subjects is derived from it.
	SubjectList           string   `koanf:"subject_list"`
	Subjects              []string `koanf:"-"`
	TemplateDirectory     string   `koanf:"template_directory"`
	OutDirectory          string   `koanf:"out_directory"`
	ParcellationDirectory string   `koanf:"parcellation_directory"`
	AcquisitionParameters string   `koanf:"acquisition_parameters"`
	IndexFile             string   `koanf:"index_file"`

	// Study protocol. Only settable from the settings file or environment.
	SourceSubject    string    `koanf:"source_subject"`
	ParcellationName string    `koanf:"parcellation_name"`
	Models           []string  `koanf:"models"`
	Thresholds       []float64 `koanf:"thresholds"`
	SplineStepLength float64   `koanf:"spline_step_length"`

	ModulesPath     string `koanf:"modules_path"` // extra hcl tool manifests
	LogFormat       string `koanf:"log_format"`
	LogLevel        string `koanf:"log_level"`
	HealthcheckPort int    `koanf:"healthcheck_port"`
	Workers         int    `koanf:"workers"`
	DryRun          bool   `koanf:"dry_run"`
	FailFast        bool   `koanf:"fail_fast"`
	TraceFile       string `koanf:"trace_file"`
	Cache           string `koanf:"cache"`
}

var defaults = map[string]any{
	"source_subject":     "fsaverage",
	"parcellation_name":  "aparc",
	"models":             []string{"CSA", "CSD"},
	"thresholds":         []float64{0, 10},
	"spline_step_length": 0.5,
	"log_format":         "text",
	"log_level":          "info",
	"workers":            4,
	"cache":              CacheSQLite,
}

// listKeys are settings that take a comma separated list in the environment,
// e.g. CONNECTOME_THRESHOLDS=0,10.
var listKeys = map[string]bool{
	"models":     true,
	"thresholds": true,
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// LoadSettings merges built-in defaults, the YAML settings file (when path is
// set), CONNECTOME_* environment variables and finally overrides, in that
// order of precedence. Override keys use the koanf tags of Config.
func LoadSettings(path string, overrides map[string]any) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load settings file %s: %w", path, err)
		}
	}

	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
		if listKeys[key] {
			return key, splitList(value)
		}
		return key, value
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	for key, val := range overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to apply %s: %w", key, err)
		}
	}

	for key, val := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, val); err != nil {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode settings: %w", err)
	}
	return &cfg, nil
}

// NewConfig validates cfg and returns a copy ready for NewApp.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	if cfg.BaseDirectory == "" {
		errs = append(errs, errors.New("base_directory is required"))
	}
	if len(cfg.Subjects) == 0 {
		errs = append(errs, errors.New("subject_list is required and must name at least one subject"))
	}
	if cfg.OutDirectory == "" {
		errs = append(errs, errors.New("out_directory is required"))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers))
	}
	switch cfg.Cache {
	case CacheSQLite, CacheMemory:
	default:
		errs = append(errs, fmt.Errorf("invalid cache %q: must be '%s' or '%s'", cfg.Cache, CacheSQLite, CacheMemory))
	}
	for _, dir := range []struct{ name, path string }{
		{"base_directory", cfg.BaseDirectory},
		{"template_directory", cfg.TemplateDirectory},
		{"parcellation_directory", cfg.ParcellationDirectory},
	} {
		if dir.path == "" {
			continue
		}
		if info, err := os.Stat(dir.path); err != nil || !info.IsDir() {
			errs = append(errs, fmt.Errorf("%s %s is not a directory", dir.name, dir.path))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &cfg, nil
}
