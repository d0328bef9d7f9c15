package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/semver"
)

// VersionFile is the file under HEADAS recording the installed toolkit version.
const VersionFile = "version"

// ToolkitVersion reads the installed toolkit version, e.g. "6.34".
func (e *Environment) ToolkitVersion() (string, error) {
	path := filepath.Join(e.Headas, VersionFile)
	// #nosec G304 -- path is derived from HEADAS
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read toolkit version: %w", err)
	}
	version := strings.TrimSpace(string(data))
	if CanonicalVersion(version) == "" {
		return "", NewConfigurationError(VersionFile, fmt.Sprintf("unrecognized toolkit version %q in %s", version, path))
	}
	return version, nil
}

// CanonicalVersion maps a toolkit version made of digits and dots ("6.32.1",
// "6.9", "v6") onto semver syntax. Parts beyond the third are dropped. It returns
// "" for anything else.
func CanonicalVersion(version string) string {
	v := strings.TrimPrefix(strings.TrimSpace(version), "v")
	parts := strings.Split(v, ".")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return semver.Canonical("v" + strings.Join(parts, "."))
}

// RequireToolkitVersion fails with a ConfigurationError when the installed
// toolkit is older than minimum. An empty minimum always passes.
func (e *Environment) RequireToolkitVersion(minimum string) error {
	if minimum == "" {
		return nil
	}
	want := CanonicalVersion(minimum)
	if want == "" {
		return NewConfigurationError("min_toolkit_version", fmt.Sprintf("invalid version %q", minimum))
	}
	installed, err := e.ToolkitVersion()
	if err != nil {
		return err
	}
	if semver.Compare(CanonicalVersion(installed), want) < 0 {
		return NewConfigurationError(VersionFile, fmt.Sprintf("toolkit %s is older than the required %s", installed, minimum))
	}
	return nil
}
