//go:build !linux && !freebsd && !darwin

package hostinfo

import "runtime"

// OSRelease returns the platform name on systems without uname
func OSRelease() (string, error) {
	return runtime.GOOS, nil
}
