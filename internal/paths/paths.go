// Package paths centralizes home-directory expansion and default locations
// used by rulesync.
package paths

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

const (
	// AppDirName is the directory name used under XDG base directories.
	AppDirName = "rulesync"

	// ConfigFileName is the name of the YAML configuration file.
	ConfigFileName = "config.yaml"

	// DefaultSharedDir is the default shared rules directory, before expansion.
	DefaultSharedDir = "~/.cursor-rules"

	// EnvHome is the standard home directory variable.
	EnvHome = "HOME"
)

// HomeDir returns the user's home directory, falling back to $HOME.
func HomeDir() (string, error) {
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return home, nil
	}
	if home = os.Getenv(EnvHome); home != "" {
		return home, nil
	}
	return "", fmt.Errorf("paths: unable to determine home directory")
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// Other forms such as "~user" are returned unchanged.
func ExpandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	if len(path) > 1 && path[1] != '/' && path[1] != filepath.Separator {
		return path, nil
	}
	home, err := HomeDir()
	if err != nil {
		return "", fmt.Errorf("paths: expand %q: %w", path, err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[2:]), nil
}

// Resolve expands a leading "~" and makes path absolute.
func Resolve(path string) (string, error) {
	expanded, err := ExpandHome(path)
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return "", fmt.Errorf("paths: resolve %q: %w", path, err)
	}
	return abs, nil
}

// DefaultConfigFile returns $XDG_CONFIG_HOME/rulesync/config.yaml.
func DefaultConfigFile() string {
	return filepath.Join(xdg.ConfigHome, AppDirName, ConfigFileName)
}
