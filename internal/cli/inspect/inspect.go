// Package inspect implements the `hookchain inspect` command.
package inspect

import (
	"encoding/hex"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/cli/helpers"
	"github.com/coral-mesh/hookchain/internal/detour"
	clierrors "github.com/coral-mesh/hookchain/internal/errors"
	"github.com/coral-mesh/hookchain/pkg/binder"
)

// Instruction is one stolen prologue instruction.
type Instruction struct {
	Offset int    `header:"OFFSET" json:"offset"`
	Len    int    `header:"LEN" json:"len"`
	Text   string `header:"INSTRUCTION" json:"text"`
	PCRel  int    `header:"PCREL" json:"pcrel"`
}

// Report is the outcome of analyzing one function entry.
type Report struct {
	Function     string        `json:"function"`
	Address      helpers.Hex   `json:"address"`
	Arch         string        `json:"arch"`
	Hookable     bool          `json:"hookable"`
	Reason       string        `json:"reason,omitempty"`
	Stolen       int           `json:"stolen"`
	Relocated    bool          `json:"relocated"`
	Prologue     string        `json:"prologue"`
	Jump         string        `json:"jump,omitempty"`
	Instructions []Instruction `json:"instructions"`
}

// Analyze builds the report for fn using code read from the binary.
func Analyze(arch string, fn *binder.Function, code []byte) Report {
	r := Report{
		Function: fn.Name,
		Address:  helpers.Hex(fn.Address),
		Arch:     arch,
		Prologue: hex.EncodeToString(code),
	}
	if fn.Synthesized {
		r.Reason = "compiler-synthesized function"
		return r
	}

	plan, err := detour.Analyze(arch, code, uintptr(fn.Address))
	if err != nil {
		r.Reason = err.Error()
		return r
	}

	r.Hookable = true
	r.Stolen = plan.Stolen
	r.Relocated = plan.Relocatable()
	for _, in := range plan.Instructions {
		r.Instructions = append(r.Instructions, Instruction{
			Offset: in.Offset,
			Len:    in.Len,
			Text:   in.Text,
			PCRel:  in.PCRel,
		})
	}
	// Placeholder destination; only the shape of the patch matters here.
	if jump, err := plan.Jump(uintptr(fn.Address)); err == nil {
		r.Jump = hex.EncodeToString(jump)
	}
	return r
}

// NewInspectCmd creates the inspect command.
func NewInspectCmd() *cobra.Command {
	var (
		format  string
		arch    string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "inspect <binary> <function>",
		Short: "Check whether a function's entry can be redirected",
		Long: `Decode the first instructions of a function and report how many bytes
a redirection would overwrite, which instructions move to the trampoline,
and why the function cannot be hooked when it cannot.

Exits non-zero when the function is not hookable.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := helpers.RuntimeFrom(cmd)
			formatter, err := rt.Output(format)
			if err != nil {
				return err
			}

			b, err := binder.Open(args[0], rt.Logger)
			if err != nil {
				return err
			}
			defer clierrors.DeferClose(rt.Logger, b, "failed to close binary")

			fn, err := b.Function(args[1])
			if err != nil {
				return err
			}
			code, err := b.Code(fn, detour.ProbeLen)
			if err != nil {
				return err
			}

			if arch == "" {
				arch = rt.Config.Inspect.Arch
			}
			if arch == "" {
				arch = b.Arch()
			}

			report := Analyze(arch, fn, code)
			rt.Logger.Debug().
				Str("function", report.Function).
				Bool("hookable", report.Hookable).
				Int("stolen", report.Stolen).
				Msg("Analyzed function prologue")

			out := cmd.OutOrStdout()
			if _, ok := formatter.(*helpers.JSONFormatter); ok {
				if err := formatter.Format(report, out); err != nil {
					return err
				}
			} else {
				if _, ok := formatter.(*helpers.TableFormatter); ok {
					_, _ = fmt.Fprintf(out, "Function: %s at %s (%s)\n", report.Function, report.Address, report.Arch)
					if report.Hookable {
						_, _ = fmt.Fprintf(out, "Hookable: yes, %d bytes stolen, relocation needed: %t\n", report.Stolen, report.Relocated)
					}
					if verbose {
						_, _ = fmt.Fprintf(out, "Prologue: %s\n", report.Prologue)
						if report.Jump != "" {
							_, _ = fmt.Fprintf(out, "Patch:    %s\n", report.Jump)
						}
					}
					_, _ = fmt.Fprintln(out)
				}
				if err := formatter.Format(report.Instructions, out); err != nil {
					return err
				}
			}

			if !report.Hookable {
				return fmt.Errorf("%s is not hookable: %s", report.Function, report.Reason)
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.AllFormats)
	helpers.AddVerboseFlag(cmd, &verbose)
	cmd.Flags().StringVar(&arch, "arch", "", "Decode as amd64 or arm64 (defaults to the binary's machine type)")

	return cmd
}
