package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dorcha-inc/hsp/internal/core"
	"github.com/dorcha-inc/hsp/internal/prompt"
	"github.com/dorcha-inc/hsp/internal/registry"
	"github.com/dorcha-inc/hsp/internal/state"
	"github.com/dorcha-inc/hsp/internal/task"
)

const invalidValue = "invalid"

// isolate points the hsp home at a temporary directory, clears the toolkit
// variables and changes into an empty working directory.
func isolate(t *testing.T) (workDir string) {
	t.Helper()
	t.Setenv(EnvHome, t.TempDir())
	for _, key := range []string{state.EnvHeadas, state.EnvPfiles, "HSP_HEADAS", "HSP_PFILES", "HSP_VERBOSE", "HSP_PORT"} {
		t.Setenv(key, "")
	}

	workDir = t.TempDir()
	originalDir, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(workDir))
	t.Cleanup(func() { core.LogDeferredError(func() error { return os.Chdir(originalDir) }) })
	return workDir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	// #nosec G301 -- test directory permissions are acceptable for temporary test files
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	// #nosec G306 -- test file permissions are acceptable for temporary test files
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestLoadConfig_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, LogFormatPretty, cfg.LogFormat)
	assert.Equal(t, string(LogLevelWarn), cfg.LogLevel)
	assert.Equal(t, int(task.VerboseEcho), cfg.Verbose)
	assert.Equal(t, prompt.DefaultMaxAttempts, cfg.PromptRetries)
	assert.True(t, cfg.Learn)
	assert.False(t, cfg.NoPrompt)
	assert.Equal(t, string(registry.ArgStyleMixed), cfg.ArgStyle)
	assert.Empty(t, cfg.Headas)
}

func TestLoadConfig_WithSpecificPath(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, configPath, "port: 9000\nverbose: 20\nmanifest: tasks.yaml\n")

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 20, cfg.Verbose)
	assert.Equal(t, filepath.Join(filepath.Dir(configPath), "tasks.yaml"), cfg.Manifest)
}

func TestLoadConfig_ProjectConfigPrecedence(t *testing.T) {
	workDir := isolate(t)

	userPath, err := GetUserConfigPath()
	require.NoError(t, err)
	writeFile(t, userPath, "port: 7000\nprompt_retries: 5\n")
	writeFile(t, filepath.Join(workDir, ProjectConfigName), "port: 9000\n")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port, "project config overrides user config")
	assert.Equal(t, 5, cfg.PromptRetries, "user config still applies")
}

func TestLoadConfig_EnvironmentVariableOverride(t *testing.T) {
	workDir := isolate(t)
	writeFile(t, filepath.Join(workDir, ProjectConfigName), "port: 9000\n")
	t.Setenv("HSP_PORT", "9100")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Port)
}

func TestLoadConfig_ToolkitVariables(t *testing.T) {
	isolate(t)
	t.Setenv(state.EnvHeadas, "/opt/heasoft")
	t.Setenv(state.EnvPfiles, "/home/me/pfiles;/opt/heasoft/syspfiles")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/opt/heasoft", cfg.Headas)
	assert.Equal(t, "/home/me/pfiles;/opt/heasoft/syspfiles", cfg.Pfiles)

	t.Setenv("HSP_HEADAS", "/opt/other")
	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "/opt/other", cfg.Headas, "the prefixed variable wins")

	env, err := cfg.Environment()
	require.NoError(t, err)
	assert.Equal(t, []string{"/home/me/pfiles"}, env.UserDirs)
	assert.Equal(t, []string{"/opt/heasoft/syspfiles"}, env.SysDirs)
}

func TestLoadConfig_InvalidConfigFile(t *testing.T) {
	isolate(t)
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	isolate(t)
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	writeFile(t, configPath, "port: [unclosed\n")

	_, err := LoadConfig(configPath)
	require.Error(t, err)
}

func TestValidateConfig_BadValues(t *testing.T) {
	valid := func() *Config {
		return &Config{Port: 8080, LogFormat: LogFormatJSON, LogLevel: "info", Verbose: 1, PromptRetries: 3, ArgStyle: "mixed"}
	}
	require.NoError(t, validateConfig(valid()))

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Port = 70000 }, "port must be between"},
		{"log format", func(c *Config) { c.LogFormat = invalidValue }, "log_format must be one of: json, pretty"},
		{"log level", func(c *Config) { c.LogLevel = invalidValue }, "log_level must be one of"},
		{"verbose", func(c *Config) { c.Verbose = 3 }, "verbose must be one of"},
		{"retries", func(c *Config) { c.PromptRetries = 0 }, "prompt_retries must be at least 1"},
		{"arg style", func(c *Config) { c.ArgStyle = invalidValue }, "arg_style must be one of: mixed, named"},
		{"toolkit version", func(c *Config) { c.MinToolkitVersion = "six" }, "min_toolkit_version"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateConfig(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestConfig_Controls(t *testing.T) {
	cfg := &Config{Verbose: 20, NoPrompt: true}
	c, err := cfg.Controls()
	require.NoError(t, err)
	assert.Equal(t, task.Controls{Verbose: task.VerboseLog, NoPrompt: true}, c)

	cfg.Verbose = 5
	_, err = cfg.Controls()
	require.Error(t, err)
}

func TestConfig_EnvironmentRequiresHeadas(t *testing.T) {
	cfg := &Config{}
	_, err := cfg.Environment()
	var cfgErr *state.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestConfig_EnvironmentChecksToolkitVersion(t *testing.T) {
	headas := t.TempDir()
	writeFile(t, filepath.Join(headas, state.VersionFile), "6.30\n")

	cfg := &Config{Headas: headas, Pfiles: "/tmp/pfiles;" + headas, MinToolkitVersion: "6.34"}
	_, err := cfg.Environment()
	var cfgErr *state.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	cfg.MinToolkitVersion = "6.29.1"
	_, err = cfg.Environment()
	require.NoError(t, err)
}

func TestGetUserConfigPath(t *testing.T) {
	home := t.TempDir()
	t.Setenv(EnvHome, home)

	path, err := GetUserConfigPath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, UserConfigName), path)
}

func TestGetProjectConfigPath(t *testing.T) {
	workDir := isolate(t)

	path, err := GetProjectConfigPath()
	require.NoError(t, err)

	want, err := filepath.EvalSymlinks(filepath.Join(workDir, ProjectConfigName))
	if err != nil {
		want = filepath.Join(workDir, ProjectConfigName)
	}
	got, err := filepath.EvalSymlinks(path)
	if err != nil {
		got = path
	}
	assert.Equal(t, filepath.Base(want), filepath.Base(got))
}

func TestGetConfigValue(t *testing.T) {
	workDir := isolate(t)

	value, err := GetConfigValue("port")
	require.NoError(t, err)
	assert.Equal(t, "default", value.Source)

	writeFile(t, filepath.Join(workDir, ProjectConfigName), "port: 9000\n")
	value, err = GetConfigValue("port")
	require.NoError(t, err)
	assert.Equal(t, 9000, value.Value)
	assert.Equal(t, "project", value.Source)

	t.Setenv(state.EnvHeadas, "/opt/heasoft")
	value, err = GetConfigValue("headas")
	require.NoError(t, err)
	assert.Equal(t, "/opt/heasoft", value.Value)
	assert.Equal(t, "env", value.Source)
}

func TestGetConfigValue_UnknownKey(t *testing.T) {
	isolate(t)
	_, err := GetConfigValue("no_such_key")
	require.Error(t, err)
}

func TestSetConfigValue_UserConfig(t *testing.T) {
	isolate(t)

	require.NoError(t, SetConfigValue("verbose", "2"))

	userPath, err := GetUserConfigPath()
	require.NoError(t, err)
	// #nosec G304 -- test file
	data, err := os.ReadFile(userPath)
	require.NoError(t, err)

	var saved Config
	require.NoError(t, yaml.Unmarshal(data, &saved))
	assert.Equal(t, 2, saved.Verbose)

	value, err := GetConfigValue("verbose")
	require.NoError(t, err)
	assert.Equal(t, "user", value.Source)
}

func TestSetConfigValue_ProjectConfigPreservesOtherFields(t *testing.T) {
	workDir := isolate(t)
	projectPath := filepath.Join(workDir, ProjectConfigName)
	writeFile(t, projectPath, "port: 9000\n")

	require.NoError(t, SetConfigValue("noprompt", "true"))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.NoPrompt)
	assert.Equal(t, 9000, cfg.Port)
}

func TestSetConfigValue_Rejects(t *testing.T) {
	isolate(t)

	require.Error(t, SetConfigValue("no_such_key", "1"))

	err := SetConfigValue("verbose", "7")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verbose must be one of")
}

func TestListConfig(t *testing.T) {
	isolate(t)

	values, err := ListConfig()
	require.NoError(t, err)
	for key := range defaults {
		require.Contains(t, values, key)
		assert.Equal(t, "default", values[key].Source, key)
	}
}
