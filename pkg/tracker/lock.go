package tracker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danjacques/gofslock/fslock"
)

// ErrLocked means another process is running the same job.
var ErrLocked = errors.New("job is already running")

// Lock takes the exclusive lock file for job under dir. Release the handle
// with Unlock when the run ends.
func Lock(dir, job string) (fslock.Handle, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create lock dir: %w", err)
	}
	path := filepath.Join(dir, job+".lock")
	h, err := fslock.Lock(path)
	switch {
	case errors.Is(err, fslock.ErrLockHeld):
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	case err != nil:
		return nil, fmt.Errorf("failed to lock %s: %w", path, err)
	}
	return h, nil
}
