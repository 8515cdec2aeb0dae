//go:build linux || freebsd || darwin

package hostinfo

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const osReleasePath = "/etc/os-release"

// OSRelease describes the running system as "<distribution>, <sysname>
// <release> <machine>". The distribution part is omitted when
// /etc/os-release is missing.
func OSRelease() (string, error) {
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err != nil {
		return "", fmt.Errorf("uname failed: %w", err)
	}

	kernel := strings.Join([]string{
		unix.ByteSliceToString(utsname.Sysname[:]),
		unix.ByteSliceToString(utsname.Release[:]),
		unix.ByteSliceToString(utsname.Machine[:]),
	}, " ")

	data, err := os.ReadFile(osReleasePath)
	if err != nil {
		return kernel, nil
	}
	if distro := ParseOSRelease(string(data)); distro != "" {
		return distro + ", " + kernel, nil
	}
	return kernel, nil
}
