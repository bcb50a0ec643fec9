package conf

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

const (
	// DefaultPath is the main settings file.
	DefaultPath = "/etc/envconfig/config.toml"
	// DefaultDropInDir holds drop-in settings files.
	DefaultDropInDir = "/etc/envconfig/config.toml.d/"
	// EnvPrefix prefixes the environment variables that override settings.
	EnvPrefix = "ENVCONFIG_"
)

// defaultConfig contains the embedded default settings file.
// It is compiled into the binary and serves as the base layer
// before /etc/envconfig/config.toml and drop-in files are applied.
//
//go:embed config.toml
var defaultConfig string

// Config represents the resolved envconfig settings.
type Config struct {
	Bundle   string
	TempDir  string
	LogLevel slog.Level
}

// Update applies non-nil values from a configDTO.
func (c *Config) Update(dto configDTO) {
	if dto.Bundle != nil {
		c.Bundle = *dto.Bundle
	}
	if dto.TempDir != nil {
		c.TempDir = *dto.TempDir
	}
	if dto.LogLevel != nil {
		switch strings.ToUpper(*dto.LogLevel) {
		case "DEBUG":
			c.LogLevel = slog.LevelDebug
		case "INFO":
			c.LogLevel = slog.LevelInfo
		case "WARN":
			c.LogLevel = slog.LevelWarn
		case "ERROR":
			c.LogLevel = slog.LevelError
		}
	}
}

// ConfigSource orchestrates loading settings from multiple sources.
// See the Read method.
type ConfigSource struct {
	Path      string
	DropInDir string

	// Environment replaces the process environment when not nil.
	Environment map[string]string
}

// DefaultSource returns the ConfigSource for the system-wide locations.
func DefaultSource() *ConfigSource {
	return &ConfigSource{Path: DefaultPath, DropInDir: DefaultDropInDir}
}

// Read loads and returns the complete Config by merging all layers:
// 1. Embedded defaults
// 2. Main configuration file
// 3. Drop-in files
// 4. ENVCONFIG_* environment variables
func (cs *ConfigSource) Read() (Config, error) {
	resolved := Config{}

	dto, err := parseConfigDTO(defaultConfig)
	if err != nil {
		slog.Error("failed to parse embedded defaults", "error", err)
		return resolved, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}
	resolved.Update(dto)

	data, err := os.ReadFile(cs.Path)
	if err != nil {
		if !os.IsNotExist(err) {
			return resolved, fmt.Errorf("failed to load %s: %w", cs.Path, err)
		}
	} else {
		mainDTO, err := parseConfigDTO(string(data))
		if err != nil {
			// An existing but malformed file is a failure, not a silent fallback.
			return resolved, fmt.Errorf("failed to parse %s: %w", cs.Path, err)
		}
		resolved.Update(mainDTO)
	}

	dropInDTOs, err := cs.parseDropInFiles()
	if err != nil {
		slog.Error("failed to load drop-in files", "error", err, "dir", cs.DropInDir)
		return resolved, err
	}
	for _, dropInDTO := range dropInDTOs {
		resolved.Update(dropInDTO)
	}

	envDTO, err := cs.parseEnv()
	if err != nil {
		return resolved, err
	}
	resolved.Update(envDTO)

	return resolved, nil
}

type configDTO struct {
	Bundle   *string `toml:"bundle"`
	TempDir  *string `toml:"temp-dir"`
	LogLevel *string `toml:"log-level"`
}

// environmentDTO mirrors configDTO for environment variables. Empty values
// count as unset.
type environmentDTO struct {
	Bundle   string `env:"BUNDLE"`
	TempDir  string `env:"TEMP_DIR"`
	LogLevel string `env:"LOG_LEVEL"`
}

// parseConfigDTO parses a TOML string into a configDTO.
func parseConfigDTO(data string) (configDTO, error) {
	var dto configDTO

	if err := toml.Unmarshal([]byte(data), &dto); err != nil {
		return dto, fmt.Errorf("failed to parse TOML: %w", err)
	}

	return dto, nil
}

// parseEnv reads the ENVCONFIG_* variables into a configDTO.
func (cs *ConfigSource) parseEnv() (configDTO, error) {
	var dto configDTO

	vars, err := env.ParseAsWithOptions[environmentDTO](env.Options{
		Prefix:      EnvPrefix,
		Environment: cs.Environment,
	})
	if err != nil {
		return dto, fmt.Errorf("error getting env configs: %w", err)
	}

	if vars.Bundle != "" {
		dto.Bundle = &vars.Bundle
	}
	if vars.TempDir != "" {
		dto.TempDir = &vars.TempDir
	}
	if vars.LogLevel != "" {
		dto.LogLevel = &vars.LogLevel
	}

	return dto, nil
}

// findDropInFiles finds and returns sorted paths to drop-in configuration files.
// Returns nil if the drop-in directory doesn't exist (not an error).
func (cs *ConfigSource) findDropInFiles() ([]string, error) {
	if _, err := os.Stat(cs.DropInDir); os.IsNotExist(err) {
		return nil, nil
	}

	entries, err := os.ReadDir(cs.DropInDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read drop-in directory %s: %w", cs.DropInDir, err)
	}

	var filenames []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.HasSuffix(entry.Name(), ".toml") {
			filenames = append(filenames, filepath.Join(cs.DropInDir, entry.Name()))
		}
	}

	sort.Strings(filenames)

	return filenames, nil
}

// parseDropInFiles loads .toml files.
func (cs *ConfigSource) parseDropInFiles() ([]configDTO, error) {
	paths, err := cs.findDropInFiles()
	if err != nil {
		return nil, err
	}

	var dtos []configDTO
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		dto, err := parseConfigDTO(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}

		dtos = append(dtos, dto)
	}

	return dtos, nil
}
