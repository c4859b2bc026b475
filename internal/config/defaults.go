package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "kanaime"

// PlatformDataDir returns the directory for the dictionary and persisted
// state. KANAIME_DATA_DIR overrides it.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   $XDG_DATA_HOME/kanaime/ or ~/.local/share/kanaime/
//   - Windows: %LOCALAPPDATA%\kanaime\
func PlatformDataDir() string {
	if v := os.Getenv("KANAIME_DATA_DIR"); v != "" {
		return v
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, appName)
		}
		return filepath.Join(homeDir(), "AppData", "Local", appName)
	default:
		if v := os.Getenv("XDG_DATA_HOME"); v != "" {
			return filepath.Join(v, appName)
		}
		return filepath.Join(homeDir(), ".local", "share", appName)
	}
}

// PlatformConfigDir returns the directory holding config.toml.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/kanaime/
//   - Linux:   $XDG_CONFIG_HOME/kanaime/ or ~/.config/kanaime/
//   - Windows: %APPDATA%\kanaime\
func PlatformConfigDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Application Support", appName)
	case "windows":
		if v := os.Getenv("APPDATA"); v != "" {
			return filepath.Join(v, appName)
		}
		return filepath.Join(homeDir(), "AppData", "Roaming", appName)
	default:
		if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
			return filepath.Join(v, appName)
		}
		return filepath.Join(homeDir(), ".config", appName)
	}
}

// PlatformLogDir returns the log directory.
//
// Platform paths:
//   - macOS:   ~/Library/Logs/kanaime/
//   - Linux:   $XDG_STATE_HOME/kanaime/ or ~/.local/state/kanaime/
//   - Windows: %LOCALAPPDATA%\kanaime\logs\
func PlatformLogDir() string {
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(homeDir(), "Library", "Logs", appName)
	case "windows":
		return filepath.Join(PlatformDataDir(), "logs")
	default:
		if v := os.Getenv("XDG_STATE_HOME"); v != "" {
			return filepath.Join(v, appName)
		}
		return filepath.Join(homeDir(), ".local", "state", appName)
	}
}

func homeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	home, _ := os.UserHomeDir()
	return home
}

// SupportedConfigFormats lists the file names FindConfigFile looks for, in
// order.
var SupportedConfigFormats = []string{"config.toml", "config.yaml", "config.yml", "config.json"}

// FindConfigFile returns the first existing config file in dir, or the
// TOML path when none exists.
func FindConfigFile(dir string) string {
	for _, name := range SupportedConfigFormats {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return filepath.Join(dir, SupportedConfigFormats[0])
}
