//go:build darwin

package runtime

import (
	"golang.org/x/sys/unix"
)

// detectOSVersion detects macOS version and kernel.
func detectOSVersion() (string, string) {
	osVersion := "macOS (unknown)"
	if v, err := unix.Sysctl("kern.osproductversion"); err == nil {
		osVersion = "macOS " + v
	}

	kernel := "unknown"
	if v, err := unix.Sysctl("kern.osrelease"); err == nil {
		kernel = "Darwin " + v
	}
	return osVersion, kernel
}
