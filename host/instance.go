package host

import (
	"path/filepath"
)

// InstanceLockName is the lock file created in the reload directory.
const InstanceLockName = "host.lock"

// InstanceLockPath returns the instance lock path for dir.
func InstanceLockPath(dir string) string {
	return filepath.Join(dir, InstanceLockName)
}
