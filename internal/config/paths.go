package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// appName names the per-user directories on every platform.
const appName = "flashsync"

const configFileName = "config.toml"

// dirKind describes one per-user directory: the XDG variable that overrides
// it, its fallback under $HOME elsewhere than macOS, and its macOS location.
type dirKind struct {
	xdgVar   string
	fallback []string
	darwin   []string
}

var (
	configDirKind = dirKind{"XDG_CONFIG_HOME", []string{".config"}, []string{"Library", "Application Support"}}

	// Collections, media and tokens. macOS keeps data next to config.
	dataDirKind = dirKind{"XDG_DATA_HOME", []string{".local", "share"}, []string{"Library", "Application Support"}}

	// Sync temp files. Safe to delete between runs.
	cacheDirKind = dirKind{"XDG_CACHE_HOME", []string{".cache"}, []string{"Library", "Caches"}}
)

// resolve returns the directory for goos given home. XDG variables apply
// everywhere except macOS.
func (k dirKind) resolve(goos, home string) string {
	if goos == "darwin" {
		return filepath.Join(append(append([]string{home}, k.darwin...), appName)...)
	}

	if xdg := os.Getenv(k.xdgVar); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(append(append([]string{home}, k.fallback...), appName)...)
}

func (k dirKind) current() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return k.resolve(runtime.GOOS, home)
}

// DefaultConfigDir is where config.toml lives: $XDG_CONFIG_HOME/flashsync
// (~/.config/flashsync), or ~/Library/Application Support/flashsync on macOS.
func DefaultConfigDir() string {
	return configDirKind.current()
}

// DefaultDataDir holds the collection, media, indexes and the OneDrive token:
// $XDG_DATA_HOME/flashsync (~/.local/share/flashsync), or the macOS
// Application Support folder.
func DefaultDataDir() string {
	return dataDirKind.current()
}

// DefaultCacheDir is the default temp_dir: $XDG_CACHE_HOME/flashsync
// (~/.cache/flashsync), or ~/Library/Caches/flashsync on macOS.
func DefaultCacheDir() string {
	return cacheDirKind.current()
}

// DefaultConfigPath is used when neither FLASHSYNC_CONFIG nor --config is
// given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}
