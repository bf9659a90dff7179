package session

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.maxd.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".maxd")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// WorkDir returns the runtime working directory for a profile. The embedded
// runtime keeps its own session artifacts under this path.
func WorkDir(name string) string {
	return filepath.Join(Dir(name), "runtime")
}

// EventsDir returns the default file-drop directory for push events.
func EventsDir(name string) string {
	return filepath.Join(WorkDir(name), "events")
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// CredDBPath returns the credential store path for a profile.
func CredDBPath(name string) string {
	return filepath.Join(Dir(name), "cred.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "maxd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		WorkDir(name),
		EventsDir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
