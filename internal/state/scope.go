package state

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dorcha-inc/hsp/internal/core"
)

// Scope is a private parameter-file directory. Invocations bound to
// Scope.Environment() read and learn parameters there instead of in the shared
// user directory, so concurrent runs of the same task cannot clobber each other.
type Scope struct {
	base    *Environment
	dir     string
	created bool

	once       sync.Once
	releaseErr error
}

// AcquirePrivateScope prepares a private parameter directory for env. With an
// empty dir a temporary directory is created. A dir that does not exist yet is
// created. In both cases the user parameter files of env are copied in, keeping
// their modification times. An existing dir is used as it is. Release removes
// only directories the scope created.
func AcquirePrivateScope(env *Environment, dir string) (*Scope, error) {
	s := &Scope{base: env, dir: dir}

	switch info, err := os.Stat(dir); {
	case dir == "":
		tmp, err := os.MkdirTemp("", "hsp-*.pfiles")
		if err != nil {
			return nil, fmt.Errorf("failed to create private pfiles directory: %w", err)
		}
		s.dir, s.created = tmp, true
	case err == nil && !info.IsDir():
		return nil, fmt.Errorf("%s is not a directory and cannot hold parameter files", dir)
	case err == nil:
		zap.L().Debug("Using existing private pfiles directory", zap.String("dir", dir))
		return s, nil
	case os.IsNotExist(err):
		// #nosec G301 -- parameter files are not secret
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create private pfiles directory: %w", err)
		}
		s.created = true
	default:
		return nil, fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	// Later user directories are copied first so earlier ones win on name clashes.
	for i := len(env.UserDirs) - 1; i >= 0; i-- {
		src := env.UserDirs[i]
		if info, err := os.Stat(src); err != nil || !info.IsDir() {
			continue
		}
		if err := core.CopyDirectory(src, s.dir, isParFile); err != nil {
			_ = s.Release()
			return nil, fmt.Errorf("failed to copy parameter files from %s: %w", src, err)
		}
	}

	zap.L().Debug("Acquired private pfiles scope", zap.String("dir", s.dir), zap.Bool("created", s.created))
	return s, nil
}

func isParFile(name string) bool {
	return strings.HasSuffix(name, ".par")
}

// Dir returns the private directory.
func (s *Scope) Dir() string {
	return s.dir
}

// Environment returns the environment whose user directory is the private one.
func (s *Scope) Environment() *Environment {
	return s.base.WithUserDir(s.dir)
}

// Release removes the private directory if the scope created it. It is safe to
// call more than once; later calls return the first result.
func (s *Scope) Release() error {
	s.once.Do(func() {
		if !s.created {
			return
		}
		if err := os.RemoveAll(s.dir); err != nil {
			s.releaseErr = fmt.Errorf("failed to remove private pfiles directory: %w", err)
			return
		}
		zap.L().Debug("Released private pfiles scope", zap.String("dir", s.dir))
	})
	return s.releaseErr
}
