// Package utils contains utility types for logging and filesystem path
// management used throughout rosdash.
package utils

import (
	"os"
	"path/filepath"
)

// Paths resolves the filesystem locations rosdash reads and writes.
type Paths struct {
	RootPath string `json:"root_path"`
}

// NewPaths constructs Paths rooted at the specified directory.
func NewPaths(rootPath string) *Paths {
	return &Paths{RootPath: rootPath}
}

// DefaultPaths roots next to the running executable, falling back to a
// temp directory when the executable path cannot be resolved.
func DefaultPaths() *Paths {
	exe, err := os.Executable()
	if err != nil {
		return NewPaths(filepath.Join(os.TempDir(), "rosdash"))
	}
	if resolved, rerr := filepath.EvalSymlinks(exe); rerr == nil && resolved != "" {
		exe = resolved
	}
	return NewPaths(filepath.Dir(exe))
}

// LogsDir returns the global logs directory.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.RootPath, "logs")
}

// LogFile returns the main rosdash log file path.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogsDir(), "rosdash.log")
}

// ConfigFile returns the default panel configuration file path.
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.RootPath, "rosdash.yaml")
}

// TemplatesDir returns the HTML template directory served by the panel.
func (p *Paths) TemplatesDir() string {
	return filepath.Join(p.RootPath, "templates")
}

// EnsureDirs creates the directories rosdash writes into.
func (p *Paths) EnsureDirs() error {
	return os.MkdirAll(p.LogsDir(), 0o755)
}
