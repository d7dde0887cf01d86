// Package symbols implements the `hookchain symbols` command.
package symbols

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/cli/helpers"
	clierrors "github.com/coral-mesh/hookchain/internal/errors"
	"github.com/coral-mesh/hookchain/pkg/binder"
)

// Row is one listed function.
type Row struct {
	Name        string      `header:"FUNCTION" json:"name"`
	Address     helpers.Hex `header:"ADDRESS" json:"address"`
	Size        uint64      `header:"SIZE" json:"size"`
	Synthesized bool        `header:"SYNTHESIZED" json:"synthesized"`
	Return      string      `json:"return,omitempty"`
	Params      []string    `json:"params,omitempty"`
}

// NewSymbolsCmd creates the symbols command.
func NewSymbolsCmd() *cobra.Command {
	var (
		format      string
		hookable    bool
		withDetails bool
	)

	cmd := &cobra.Command{
		Use:   "symbols <binary> [pattern]",
		Short: "List the functions of a binary that can be hooked",
		Long: `List function symbols of an ELF or Mach-O binary.

Patterns support a trailing "*" ("main.*", "libgame/*"). Without a pattern
the symbol_patterns from the global config are used, and everything when
none are configured.`,
		Args: cobra.RangeArgs(1, 2),
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

			patterns := rt.Config.Inspect.SymbolPatterns
			if len(args) == 2 {
				patterns = []string{args[1]}
			}
			if len(patterns) == 0 {
				patterns = []string{"*"}
			}

			var rows []Row
			seen := make(map[string]bool)
			for _, p := range patterns {
				syms, err := b.Symbols(p)
				if err != nil {
					return fmt.Errorf("failed to list symbols: %w", err)
				}
				for _, s := range syms {
					if seen[s.Name] {
						continue
					}
					seen[s.Name] = true
					row := Row{
						Name:        s.Name,
						Address:     helpers.Hex(s.Value),
						Size:        s.Size,
						Synthesized: binder.IsSynthesized(s.Name),
					}
					if hookable && row.Synthesized {
						continue
					}
					if withDetails {
						if fn, err := b.Function(s.Name); err == nil {
							row.Return = fn.Return
							for _, p := range fn.Params {
								row.Params = append(row.Params, p.Type)
							}
						}
					}
					rows = append(rows, row)
				}
			}

			if len(rows) == 0 {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No matching functions.")
				return nil
			}
			return formatter.Format(rows, cmd.OutOrStdout())
		},
	}

	helpers.AddFormatFlag(cmd, &format, helpers.AllFormats)
	cmd.Flags().BoolVar(&hookable, "hookable", false, "Hide compiler-synthesized functions")
	cmd.Flags().BoolVar(&withDetails, "details", false, "Include DWARF parameter and return types (json output)")

	return cmd
}
