package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultAppName names the per-user data directory.
	DefaultAppName = "osm"

	// DefaultProjectName is used when a caller passes an empty project name.
	DefaultProjectName = "DefaultProject"

	projectsDir = "projects"
	dbExt       = ".db"
)

// BaseFunc returns a candidate data directory, or "" when it is unavailable.
type BaseFunc func() string

// Locator resolves per-project database paths. Bases are tried in order and
// the first one that can host a projects directory wins.
type Locator struct {
	AppName string
	Bases   []BaseFunc
	Log     zerolog.Logger
}

// NewLocator returns a Locator that tries override (if set), then the XDG
// data home, then the legacy ~/.<app> directory.
func NewLocator(appName, override string) *Locator {
	if appName == "" {
		appName = DefaultAppName
	}

	var bases []BaseFunc
	if override != "" {
		bases = append(bases, func() string { return override })
	}
	bases = append(bases, xdgDataHome, legacyDataHome(appName))

	return &Locator{
		AppName: appName,
		Bases:   bases,
		Log:     log.Logger,
	}
}

func xdgDataHome() string {
	return xdg.DataHome
}

// legacyDataHome is the deprecated pre-XDG location.
func legacyDataHome(appName string) BaseFunc {
	return func() string {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return ""
		}
		return filepath.Join(home, "."+appName)
	}
}

// ProjectDBPath returns <base>/projects/<project>.db, creating the projects
// directory when needed.
func (l *Locator) ProjectDBPath(project string) (string, error) {
	if project == "" {
		project = DefaultProjectName
	}
	if err := validateProjectName(project); err != nil {
		return "", err
	}

	for _, base := range l.Bases {
		dir := base()
		if dir == "" {
			continue
		}
		if !l.isAppDir(dir) {
			dir = filepath.Join(dir, l.AppName)
		}

		projects := filepath.Join(dir, projectsDir)
		if err := os.MkdirAll(projects, 0o755); err != nil {
			l.Log.Debug().Err(err).Str("dir", projects).Msg("data location not writable")
			continue
		}
		return filepath.Join(projects, project+dbExt), nil
	}

	l.Log.Warn().Str("project", project).Msg("no writable app data path")
	return "", ErrNoWritableLocation
}

// DefaultProjectDBPath resolves the default location for project. It returns
// "" when no writable location exists; callers must treat that as failure.
func DefaultProjectDBPath(project string) string {
	path, err := NewLocator(DefaultAppName, "").ProjectDBPath(project)
	if err != nil {
		return ""
	}
	return path
}

// isAppDir reports whether dir is already the app's own directory, either
// <base>/<app> or the legacy <home>/.<app>.
func (l *Locator) isAppDir(dir string) bool {
	last := filepath.Base(filepath.Clean(dir))
	return last == l.AppName || last == "."+l.AppName
}

func validateProjectName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidProjectName, name)
	}
	return nil
}
