//go:build !linux && !darwin

package runtime

import "runtime"

func detectOSVersion() (string, string) {
	return runtime.GOOS + " (unknown)", "unknown"
}
