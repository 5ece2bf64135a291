package safety

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// ErrWorkspaceLocked means another patcher run holds the workspace lock.
var ErrWorkspaceLocked = errors.New("workspace is locked by another run")

// RunLock is an advisory lock serializing runs against one workspace.
// The edit pipeline itself assumes exclusive access; callers that cannot
// guarantee it take this lock around a run.
type RunLock struct {
	fl   *flock.Flock
	path string
}

// AcquireRunLock takes the advisory lock for the workspace, failing
// immediately if another process holds it.
func AcquireRunLock(root string) (*RunLock, error) {
	path := filepath.Join(root, ".patchsmith.lock")
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", root, ErrWorkspaceLocked)
	}
	return &RunLock{fl: fl, path: path}, nil
}

// Release drops the lock.
func (l *RunLock) Release() error {
	if err := l.fl.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", l.path, err)
	}
	return nil
}
