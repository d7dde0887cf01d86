// Package doctor implements the `hookchain doctor` command.
package doctor

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/cli/helpers"
	hookruntime "github.com/coral-mesh/hookchain/internal/runtime"
)

// Check is one line of the doctor report.
type Check struct {
	Name   string `header:"CHECK" json:"name"`
	Status string `header:"STATUS" json:"status"`
	Detail string `header:"DETAIL" json:"detail"`
}

// Checks turns a report into display rows.
func Checks(r *hookruntime.Report) []Check {
	status := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "fail"
	}

	checks := []Check{
		{Name: "platform", Status: "info", Detail: fmt.Sprintf("%s/%s, %s, kernel %s", r.OS, r.Arch, r.OSVersion, r.Kernel)},
		{Name: "prologue decoder", Status: status(r.ArchSupported), Detail: r.Arch},
		{Name: "code patching", Status: status(r.Patchable), Detail: r.PatchableNote},
	}
	if st := r.Status; st != nil {
		checks = append(checks, Check{
			Name:   "process status",
			Status: "info",
			Detail: fmt.Sprintf("seccomp=%d no_new_privs=%t cap_sys_ptrace=%t", st.Seccomp, st.NoNewPrivs, st.CapSysPtrace),
		})
	}
	return checks
}

// NewDoctorCmd creates the doctor command.
func NewDoctorCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check whether hooks can be installed on this machine",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := helpers.RuntimeFrom(cmd)
			formatter, err := rt.Output(format)
			if err != nil {
				return err
			}

			report := hookruntime.NewDetector(rt.Logger).Detect()
			if err := render(formatter, report, cmd.OutOrStdout()); err != nil {
				return err
			}
			if !report.Ready() {
				return fmt.Errorf("hooks cannot be installed in processes like this one")
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.AllFormats)
	return cmd
}

func render(f helpers.Formatter, r *hookruntime.Report, w io.Writer) error {
	if _, ok := f.(*helpers.JSONFormatter); ok {
		return f.Format(r, w)
	}
	return f.Format(Checks(r), w)
}
