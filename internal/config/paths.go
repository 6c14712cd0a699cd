package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const appName = "chatrelay"

// Paths contains the standard paths for chat relay data.
type Paths struct {
	Config string // ~/.config/chatrelay
	State  string // ~/.local/state/chatrelay
}

// GetPaths returns the standard paths, honouring XDG overrides.
func GetPaths() *Paths {
	return &Paths{
		Config: xdgDir("XDG_CONFIG_HOME", ".config"),
		State:  xdgDir("XDG_STATE_HOME", filepath.Join(".local", "state")),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Config, p.State} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// LogPath returns the default log file location.
func (p *Paths) LogPath() string {
	return filepath.Join(p.State, appName+".log")
}

// GlobalConfigPath returns the path to the global config file.
func GlobalConfigPath() string {
	return filepath.Join(GetPaths().Config, appName+".json")
}

// xdgDir resolves $env/chatrelay, falling back to $HOME/rel/chatrelay or,
// on Windows, %APPDATA%/chatrelay.
func xdgDir(env, rel string) string {
	if dir := os.Getenv(env); dir != "" {
		return filepath.Join(dir, appName)
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), appName)
	}
	return filepath.Join(os.Getenv("HOME"), rel, appName)
}
