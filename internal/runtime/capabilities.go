package runtime

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Linux capability bit positions (from include/uapi/linux/capability.h).
const (
	capSysPtrace = 19 // CAP_SYS_PTRACE
	capSysAdmin  = 21 // CAP_SYS_ADMIN
)

// ProcStatus is the part of /proc/self/status that affects code patching.
type ProcStatus struct {
	// Seccomp is 0 (disabled), 1 (strict) or 2 (filter).
	Seccomp      int
	NoNewPrivs   bool
	CapSysPtrace bool
	CapSysAdmin  bool
}

// readProcStatus parses the fields of ProcStatus from path.
func readProcStatus(path string) (*ProcStatus, error) {
	fields, err := readStatusFields(path, "Seccomp", "NoNewPrivs", "CapEff")
	if err != nil {
		return nil, err
	}

	st := &ProcStatus{}
	if v, ok := fields["Seccomp"]; ok {
		if st.Seccomp, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("failed to parse Seccomp: %w", err)
		}
	}
	st.NoNewPrivs = fields["NoNewPrivs"] == "1"

	capEff, ok := fields["CapEff"]
	if !ok {
		return nil, fmt.Errorf("CapEff not found in %s", path)
	}
	// Format: "CapEff:\t00000000a80435fb"
	bitmask, err := strconv.ParseUint(capEff, 16, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CapEff bitmask: %w", err)
	}
	st.CapSysPtrace = hasCapability(bitmask, capSysPtrace)
	st.CapSysAdmin = hasCapability(bitmask, capSysAdmin)
	return st, nil
}

// readStatusFields returns the first value of each named "Key:\tvalue" line.
func readStatusFields(path string, names ...string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close() // nolint:errcheck

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	out := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !want[key] {
			continue
		}
		if parts := strings.Fields(value); len(parts) > 0 {
			out[key] = parts[0]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", path, err)
	}
	return out, nil
}

// hasCapability checks if a specific capability bit is set in the bitmask.
func hasCapability(bitmask uint64, capBit int) bool {
	return (bitmask & (1 << uint(capBit))) != 0
}
