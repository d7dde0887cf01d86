//go:build linux

package runtime

import (
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// detectOSVersion detects Linux OS version and kernel.
func detectOSVersion() (string, string) {
	return detectLinuxOSVersion("/etc/os-release"), detectKernel()
}

// detectLinuxOSVersion reads the distribution name from os-release.
func detectLinuxOSVersion(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return "Linux (unknown)"
	}

	var name, version string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "NAME=") {
			name = strings.Trim(strings.TrimPrefix(line, "NAME="), "\"")
		} else if strings.HasPrefix(line, "VERSION=") {
			version = strings.Trim(strings.TrimPrefix(line, "VERSION="), "\"")
		}
	}
	switch {
	case name == "":
		return "Linux (unknown)"
	case version == "":
		return name
	default:
		return name + " " + version
	}
}

func detectKernel() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return "unknown"
	}
	return unix.ByteSliceToString(u.Release[:])
}
