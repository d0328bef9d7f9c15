// Package config provides configuration management for hsp, including
// loading configuration with precedence, environment variable overrides,
// and get/set/list operations for configuration values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/prompt"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
)

const (
	EnvPrefix          = "HSP"
	EnvHome            = "HSP_HOME"
	DefaultHomeDirName = ".hsp"
	UserConfigName     = "config.yaml"
	ProjectConfigName  = "hsp.yaml"
	DefaultPort        = 8080
)

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
	LogLevelFatal LogLevel = "fatal"
)

func ValidLogLevels() map[LogLevel]struct{} {
	return map[LogLevel]struct{}{
		LogLevelDebug: {},
		LogLevelInfo:  {},
		LogLevelWarn:  {},
		LogLevelError: {},
		LogLevelFatal: {},
	}
}

func IsValidLogLevel(level LogLevel) bool {
	_, ok := ValidLogLevels()[level]
	return ok
}

type LogFormat string

const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

func ValidLogFormats() map[LogFormat]struct{} {
	return map[LogFormat]struct{}{
		LogFormatPretty: {},
		LogFormatJSON:   {},
	}
}

func IsValidLogFormat(format LogFormat) bool {
	_, ok := ValidLogFormats()[format]
	return ok
}

func ValidArgStyles() map[registry.ArgStyle]struct{} {
	return map[registry.ArgStyle]struct{}{
		registry.ArgStyleMixed: {},
		registry.ArgStyleNamed: {},
	}
}

// Config is the hsp configuration: where the toolkit lives, how tasks are
// listed, the default invocation controls and logging.
type Config struct {
	Headas            string    `yaml:"headas,omitempty" mapstructure:"headas"`                           // toolkit installation root
	Pfiles            string    `yaml:"pfiles,omitempty" mapstructure:"pfiles"`                           // parameter search path, "user;sys"
	Manifest          string    `yaml:"manifest,omitempty" mapstructure:"manifest"`                       // optional YAML task manifest
	LogFormat         LogFormat `yaml:"log_format,omitempty" mapstructure:"log_format"`                   // "pretty" or "json"
	LogLevel          string    `yaml:"log_level,omitempty" mapstructure:"log_level"`                     // "debug", "info", "warn", "error", "fatal"
	LogFile           string    `yaml:"log_file,omitempty" mapstructure:"log_file"`                       // optional log file path
	Verbose           int       `yaml:"verbose" mapstructure:"verbose"`                                   // default verbosity: 0, 1, 2 or 20
	NoPrompt          bool      `yaml:"noprompt" mapstructure:"noprompt"`                                 // never ask for missing values
	PromptRetries     int       `yaml:"prompt_retries,omitempty" mapstructure:"prompt_retries"`           // attempts per prompted parameter
	Learn             bool      `yaml:"learn" mapstructure:"learn"`                                       // write learned values back to parameter files
	ArgStyle          string    `yaml:"arg_style,omitempty" mapstructure:"arg_style"`                     // default command line style of external tasks
	MinToolkitVersion string    `yaml:"min_toolkit_version,omitempty" mapstructure:"min_toolkit_version"` // oldest toolkit release accepted
	Port              int       `yaml:"port,omitempty" mapstructure:"port"`                               // port of the MCP HTTP server
}

// Environment returns the toolkit environment described by the configuration.
func (cfg *Config) Environment() (*state.Environment, error) {
	env, err := state.NewEnvironment(cfg.Headas, cfg.Pfiles)
	if err != nil {
		return nil, err
	}
	if cfg.MinToolkitVersion != "" {
		if err := env.RequireToolkitVersion(cfg.MinToolkitVersion); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Controls returns the default invocation controls.
func (cfg *Config) Controls() (task.Controls, error) {
	verbose, err := task.ParseVerbosity(cfg.Verbose)
	if err != nil {
		return task.Controls{}, err
	}
	return task.Controls{Verbose: verbose, NoPrompt: cfg.NoPrompt}, nil
}

// ConfigValue represents a configuration value with its source
type ConfigValue struct {
	Value  any
	Source string // "env", "project", "user", or "default"
}

// GetHomeDir returns the hsp home directory, $HSP_HOME or ~/.hsp.
func GetHomeDir() (string, error) {
	if home := os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(userHome, DefaultHomeDirName), nil
}

// GetUserConfigPath returns the path to the user-specific config file (~/.hsp/config.yaml)
func GetUserConfigPath() (string, error) {
	home, err := GetHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get hsp home directory: %w", err)
	}
	return filepath.Join(home, UserConfigName), nil
}

// GetProjectConfigPath returns the path to the project-specific config file (./hsp.yaml)
// relative to the current working directory
func GetProjectConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}
	return filepath.Join(cwd, ProjectConfigName), nil
}

// toolkitEnvKeys are read from the plain toolkit variables as well as the
// prefixed ones.
var toolkitEnvKeys = map[string]string{
	"headas": state.EnvHeadas,
	"pfiles": state.EnvPfiles,
}

// setupViper configures Viper with defaults, config file locations, and environment variables
// If configPath is provided (non-empty), loads from that specific path instead of using precedence
func setupViper(configPath string) error {
	viper.Reset()
	setViperDefaults()
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()
	for key, raw := range toolkitEnvKeys {
		if err := viper.BindEnv(key, envKey(key), raw); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	// If specific path provided, load only that file
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		return nil
	}

	// Otherwise use precedence: user config first, then project config
	userPath, userErr := GetUserConfigPath()
	if userErr == nil {
		if _, userStatErr := os.Stat(userPath); userStatErr == nil {
			viper.SetConfigFile(userPath)
			if userReadErr := viper.ReadInConfig(); userReadErr != nil {
				zap.L().Debug("Failed to read user config file", zap.String("path", userPath), zap.Error(userReadErr))
			}
		}
	}

	projectPath, projectErr := GetProjectConfigPath()
	if projectErr == nil {
		if _, projectStatErr := os.Stat(projectPath); projectStatErr == nil {
			viper.SetConfigFile(projectPath)
			if projectReadErr := viper.MergeInConfig(); projectReadErr != nil {
				zap.L().Debug("Failed to merge project config file", zap.String("path", projectPath), zap.Error(projectReadErr))
			}
		}
	}

	return nil
}

// defaults are the value of every known key when nothing sets it.
var defaults = map[string]any{
	"headas":              "",
	"pfiles":              "",
	"manifest":            "",
	"log_format":          string(LogFormatPretty),
	"log_level":           string(LogLevelWarn),
	"log_file":            "",
	"verbose":             int(task.VerboseEcho),
	"noprompt":            false,
	"prompt_retries":      prompt.DefaultMaxAttempts,
	"learn":               true,
	"arg_style":           string(registry.ArgStyleMixed),
	"min_toolkit_version": "",
	"port":                DefaultPort,
}

// setViperDefaults sets default values in Viper
func setViperDefaults() {
	for key, value := range defaults {
		viper.SetDefault(key, value)
	}
}

func envKey(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
}

// LoadConfig loads configuration with precedence: project config > user config > defaults
// Environment variables override config file values
// If configPath is provided, loads from that specific path instead
func LoadConfig(configPath string) (*Config, error) {
	if err := setupViper(configPath); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var configFileDir string
	if configPath != "" {
		configFileDir = filepath.Dir(configPath)
	} else {
		projectPath, err := GetProjectConfigPath()
		if err == nil {
			if _, err := os.Stat(projectPath); err == nil {
				configFileDir = filepath.Dir(projectPath)
			}
		}
	}

	if err := postProcessConfig(cfg, configFileDir); err != nil {
		return nil, err
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// postProcessConfig resolves a relative manifest path against the directory of
// the config file that named it.
func postProcessConfig(cfg *Config, configFileDir string) error {
	if cfg.Manifest == "" || filepath.IsAbs(cfg.Manifest) {
		return nil
	}

	base := configFileDir
	if base == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current working directory: %w", err)
		}
		base = cwd
	}

	manifest, err := filepath.Abs(filepath.Join(base, cfg.Manifest))
	if err != nil {
		return fmt.Errorf("failed to resolve manifest path: %w", err)
	}
	cfg.Manifest = manifest
	return nil
}

// validateConfig validates the configuration
func validateConfig(cfg *Config) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535, got %d", cfg.Port)
	}

	if cfg.LogFormat != "" && !IsValidLogFormat(cfg.LogFormat) {
		return fmt.Errorf("log_format must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogFormats()), cfg.LogFormat)
	}
	if cfg.LogLevel != "" && !IsValidLogLevel(LogLevel(cfg.LogLevel)) {
		return fmt.Errorf("log_level must be one of: %s, got '%s'", core.JoinMapKeys(ValidLogLevels()), cfg.LogLevel)
	}

	if _, err := task.ParseVerbosity(cfg.Verbose); err != nil {
		return fmt.Errorf("verbose must be one of: 0, 1, 2, 20, got %d", cfg.Verbose)
	}

	if cfg.PromptRetries < 1 {
		return fmt.Errorf("prompt_retries must be at least 1, got %d", cfg.PromptRetries)
	}

	if _, ok := ValidArgStyles()[registry.ArgStyle(cfg.ArgStyle)]; cfg.ArgStyle != "" && !ok {
		return fmt.Errorf("arg_style must be one of: %s, got '%s'", core.JoinMapKeys(ValidArgStyles()), cfg.ArgStyle)
	}

	if cfg.MinToolkitVersion != "" && state.CanonicalVersion(cfg.MinToolkitVersion) == "" {
		return fmt.Errorf("min_toolkit_version must look like 6.34 or 6.34.1, got '%s'", cfg.MinToolkitVersion)
	}

	return nil
}

// getValueSource determines the source of a config value
func getValueSource(key string) string {
	if os.Getenv(envKey(key)) != "" {
		return "env"
	}
	if raw, ok := toolkitEnvKeys[key]; ok && os.Getenv(raw) != "" {
		return "env"
	}

	projectPath, err := GetProjectConfigPath()
	if err == nil {
		if _, projectStatErr := os.Stat(projectPath); projectStatErr == nil {
			if viper.IsSet(key) {
				// Viper doesn't track sources, so check whether the project file has the key
				projectViper := viper.New()
				projectViper.SetConfigFile(projectPath)
				if projectReadErr := projectViper.ReadInConfig(); projectReadErr == nil {
					if projectViper.IsSet(key) {
						return "project"
					}
				}
			}
		}
	}

	userPath, userErr := GetUserConfigPath()
	if userErr == nil {
		if _, userStatErr := os.Stat(userPath); userStatErr == nil {
			userViper := viper.New()
			userViper.SetConfigFile(userPath)
			if userReadErr := userViper.ReadInConfig(); userReadErr == nil {
				if userViper.IsSet(key) {
					return "user"
				}
			}
		}
	}

	return "default"
}

// GetConfigValue retrieves a configuration value by key, checking environment variables first
// Returns the value and its source ("env", "project", "user", or "default")
func GetConfigValue(key string) (*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	value := viper.Get(key)
	if value == nil {
		return nil, fmt.Errorf("unknown config key: %s", key)
	}

	return &ConfigValue{Value: value, Source: getValueSource(key)}, nil
}

// SetConfigValue sets a configuration value and saves it to the appropriate config file
func SetConfigValue(key, value string) error {
	if !isKnownKey(key) {
		return fmt.Errorf("unknown config key: %s", key)
	}

	projectPath, projectErr := GetProjectConfigPath()
	var configPath string

	if projectErr == nil {
		if _, projectStatErr := os.Stat(projectPath); projectStatErr == nil {
			configPath = projectPath
		}
	}

	if configPath == "" {
		userPath, userErr := GetUserConfigPath()
		if userErr != nil {
			return fmt.Errorf("failed to get user config path: %w", userErr)
		}
		// #nosec G301 -- config directory permissions 0755 are acceptable for user config directory
		if err := os.MkdirAll(filepath.Dir(userPath), 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
		if _, err := os.Stat(userPath); os.IsNotExist(err) {
			// #nosec G306 -- config file permissions 0644 are acceptable for user config files
			if err := os.WriteFile(userPath, nil, 0644); err != nil {
				return fmt.Errorf("failed to create config file: %w", err)
			}
		}
		configPath = userPath
	}

	if err := setupViper(configPath); err != nil {
		return fmt.Errorf("failed to load existing config: %w", err)
	}

	viper.Set(key, value)

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// #nosec G306 -- config file permissions 0644 are acceptable for user config files
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func isKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// ListConfig returns all configuration keys and values with their sources
func ListConfig() (map[string]*ConfigValue, error) {
	if err := setupViper(""); err != nil {
		return nil, err
	}

	result := make(map[string]*ConfigValue)
	for key, value := range viper.AllSettings() {
		result[key] = &ConfigValue{Value: value, Source: getValueSource(key)}
	}

	return result, nil
}
