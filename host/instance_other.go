//go:build !unix

package host

import (
	"os"

	"github.com/wippyai/wasm-hotreload/errors"
)

// InstanceLock marks a running host with an exclusively created file. A
// crashed host leaves the file behind; delete it to start again.
type InstanceLock struct {
	path string
	held bool
}

// AcquireInstanceLock creates the instance lock in dir, creating dir if needed.
// It returns an AlreadyRunning error when the file already exists.
func AcquireInstanceLock(dir string) (*InstanceLock, error) {
	path := InstanceLockPath(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "create reload directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.AlreadyRunning(path)
		}
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "create instance lock")
	}
	_ = f.Close()
	return &InstanceLock{path: path, held: true}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release removes the lock file. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false
	return os.Remove(l.path)
}
