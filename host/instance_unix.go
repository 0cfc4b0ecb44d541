//go:build unix

package host

import (
	stderrors "errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/wippyai/wasm-hotreload/errors"
)

// InstanceLock is an exclusive advisory lock held for the lifetime of a host
// process. The kernel drops it if the process dies.
type InstanceLock struct {
	f    *os.File
	path string
}

// AcquireInstanceLock takes the instance lock in dir, creating dir if needed.
// It returns an AlreadyRunning error when another process holds it.
func AcquireInstanceLock(dir string) (*InstanceLock, error) {
	path := InstanceLockPath(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "create reload directory")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "open instance lock")
	}

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		_ = f.Close()
		if stderrors.Is(err, unix.EWOULDBLOCK) {
			return nil, errors.AlreadyRunning(path)
		}
		return nil, errors.Wrap(errors.PhaseRuntime, errors.KindIO, err, "lock instance file")
	}
	return &InstanceLock{f: f, path: path}, nil
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string {
	return l.path
}

// Release drops the lock. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if l.f == nil {
		return nil
	}
	err := unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	l.f = nil
	return err
}
