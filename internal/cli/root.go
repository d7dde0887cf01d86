// Package cli wires the hookchain commands.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/coral-mesh/hookchain/internal/cli/doctor"
	"github.com/coral-mesh/hookchain/internal/cli/helpers"
	"github.com/coral-mesh/hookchain/internal/cli/inspect"
	"github.com/coral-mesh/hookchain/internal/cli/plan"
	"github.com/coral-mesh/hookchain/internal/cli/symbols"
	"github.com/coral-mesh/hookchain/pkg/version"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "hookchain",
		Short: "hookchain - ordered multi-owner hooks for native functions",
		Long: `Inspect binaries and hook manifests for hookchain.

hookchain redirects native functions to a dispatcher that runs the
callbacks of several independent owners in a deterministic order. This
tool answers the questions asked before hooking anything:

- symbols: which functions does a binary expose?
- inspect: can a function's entry be redirected, and how?
- plan:    in what order will a manifest's callbacks run?
- check:   do a manifest's rules compile?
- doctor:  may this machine rewrite function entries at all?`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			rt, err := helpers.LoadRuntime(logLevel)
			if err != nil {
				return err
			}
			cmd.SetContext(helpers.WithRuntime(cmd.Context(), rt))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); overrides the config")

	rootCmd.AddCommand(symbols.NewSymbolsCmd())
	rootCmd.AddCommand(inspect.NewInspectCmd())
	rootCmd.AddCommand(plan.NewPlanCmd())
	rootCmd.AddCommand(plan.NewCheckCmd())
	rootCmd.AddCommand(doctor.NewDoctorCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("hookchain version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
			cmd.Printf("Platform: %s\n", version.Platform())
		},
	}
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
