//go:build !linux && !darwin && !freebsd

package detour

import (
	"fmt"
	"runtime"
)

// CheckPatchable reports that code patching is unavailable on this OS.
func CheckPatchable() error {
	return fmt.Errorf("%w: code patching on %s", ErrUnsupportedArch, runtime.GOOS)
}
