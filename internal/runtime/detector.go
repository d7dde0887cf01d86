// Package runtime reports whether the current process can install hooks:
// platform, architecture support, and the kernel policies that decide
// whether function entries may be rewritten.
package runtime

import (
	"runtime"

	"github.com/rs/zerolog"

	"github.com/coral-mesh/hookchain/internal/detour"
)

const procStatusPath = "/proc/self/status"

// Report is the outcome of Detect.
type Report struct {
	OS        string `json:"os"`
	OSVersion string `json:"os_version"`
	Kernel    string `json:"kernel"`
	Arch      string `json:"arch"`

	// ArchSupported reports a prologue decoder for Arch.
	ArchSupported bool `json:"arch_supported"`
	// Patchable reports that write+exec mappings are permitted.
	Patchable     bool   `json:"patchable"`
	PatchableNote string `json:"patchable_note,omitempty"`

	// Status is nil outside Linux.
	Status *ProcStatus `json:"status,omitempty"`
}

// Ready reports whether hooks can be installed in this process.
func (r *Report) Ready() bool { return r.ArchSupported && r.Patchable }

// Detector detects the hooking capabilities of the running process.
type Detector struct {
	logger     zerolog.Logger
	statusPath string
	patchable  func() error
}

// NewDetector creates a new detector.
func NewDetector(logger zerolog.Logger) *Detector {
	return &Detector{
		logger:     logger.With().Str("component", "runtime_detector").Logger(),
		statusPath: procStatusPath,
		patchable:  detour.CheckPatchable,
	}
}

// Detect probes the process. Probe failures are recorded in the report
// rather than returned.
func (d *Detector) Detect() *Report {
	r := &Report{OS: runtime.GOOS, Arch: runtime.GOARCH}
	r.OSVersion, r.Kernel = detectOSVersion()

	r.ArchSupported = detour.Supported(r.Arch)

	if err := d.patchable(); err != nil {
		r.PatchableNote = err.Error()
	} else {
		r.Patchable = true
	}

	if runtime.GOOS == "linux" {
		st, err := readProcStatus(d.statusPath)
		if err != nil {
			d.logger.Debug().Err(err).Msg("Failed to read process status")
		} else {
			r.Status = st
			if st.Seccomp == 2 && r.Patchable {
				r.PatchableNote = "seccomp filter active; mprotect may be restricted for other mappings"
			}
		}
	}

	d.logger.Debug().
		Str("os", r.OS).
		Str("arch", r.Arch).
		Bool("arch_supported", r.ArchSupported).
		Bool("patchable", r.Patchable).
		Msg("Detected hooking capabilities")
	return r
}
