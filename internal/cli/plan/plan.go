// Package plan implements the `hookchain plan` and `hookchain check`
// commands.
package plan

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/cli/helpers"
	"github.com/coral-mesh/hookchain/internal/manifest"
)

// Row is one position in a target's dispatch order.
type Row struct {
	Target   string `header:"TARGET" json:"target"`
	Position int    `header:"#" json:"position"`
	Owner    string `header:"OWNER" json:"owner"`
	Priority int    `header:"PRIORITY" json:"priority"`
}

// Rows flattens per-target plans.
func Rows(plans []manifest.TargetPlan) []Row {
	var rows []Row
	for _, p := range plans {
		for i, owner := range p.Owners {
			rows = append(rows, Row{Target: p.Target, Position: i + 1, Owner: owner, Priority: p.Priorities[i]})
		}
	}
	return rows
}

// Warnings describes the ambiguities and cycles found while ordering.
func Warnings(plans []manifest.TargetPlan) []string {
	var out []string
	for _, p := range plans {
		for _, a := range p.Ambiguities {
			out = append(out, fmt.Sprintf("%s: %s and %s both %s each other at priority %d; insertion order kept",
				p.Target, a.First, a.Second, a.Kind, a.Priority))
		}
		for _, c := range p.Cycles {
			out = append(out, fmt.Sprintf("%s: ordering cycle among %s; forced by priority",
				p.Target, strings.Join(c.Owners, ", ")))
		}
	}
	return out
}

// NewPlanCmd creates the plan command.
func NewPlanCmd() *cobra.Command {
	var (
		format string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "plan <manifest>",
		Short: "Show the callback order a hook manifest produces",
		Long: `Validate a hook manifest and print, for every target, the order in
which its owners' callbacks will run. Ambiguous precede/follow pairs and
constraint cycles are reported on stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := helpers.RuntimeFrom(cmd)
			formatter, err := rt.Output(format)
			if err != nil {
				return err
			}

			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			plans, err := m.Plan(rt.Logger)
			if err != nil {
				return err
			}

			if err := formatter.Format(Rows(plans), cmd.OutOrStdout()); err != nil {
				return err
			}

			warnings := Warnings(plans)
			for _, w := range warnings {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "warning:", w)
			}
			if strict && len(warnings) > 0 {
				return fmt.Errorf("%d ordering warning(s)", len(warnings))
			}
			return nil
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.AllFormats)
	cmd.Flags().BoolVar(&strict, "strict", false, "Fail when the order is ambiguous or cyclic")

	return cmd
}

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <manifest>",
		Short: "Validate a hook manifest and compile its rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt := helpers.RuntimeFrom(cmd)

			m, err := manifest.Load(args[0])
			if err != nil {
				return err
			}
			rules, err := m.Compile()
			if err != nil {
				return err
			}

			targets := make(map[string]struct{})
			for _, r := range rules {
				targets[r.Hook.Target.String()] = struct{}{}
			}
			rt.Logger.Debug().Int("hooks", len(rules)).Int("targets", len(targets)).Msg("Compiled manifest rules")

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d hook(s) on %d target(s) OK\n", args[0], len(rules), len(targets))
			return nil
		},
	}
}
