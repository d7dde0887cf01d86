package helpers

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	clierrors "github.com/coral-mesh/hookchain/internal/errors"
)

// AddFormatFlag adds a standard --format/-o flag to a command. An empty
// value means the format configured in the global config.
func AddFormatFlag(cmd *cobra.Command, formatVar *string, supportedFormats []OutputFormat) {
	formatNames := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		formatNames[i] = string(f)
	}

	description := fmt.Sprintf("Output format (%s); defaults to the configured format", strings.Join(formatNames, ", "))
	cmd.Flags().StringVarP(formatVar, "format", "o", "", description)

	clierrors.Must(cmd.RegisterFlagCompletionFunc("format", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return formatNames, cobra.ShellCompDirectiveNoFileComp
	}), "register format completion")
}

// AddVerboseFlag adds a standard --verbose/-v flag.
func AddVerboseFlag(cmd *cobra.Command, verboseVar *bool) {
	cmd.Flags().BoolVarP(verboseVar, "verbose", "v", false, "Verbose output (show additional details)")
}

// ValidateFormat checks if the format is in the supported list.
func ValidateFormat(format string, supported []OutputFormat) error {
	for _, s := range supported {
		if format == string(s) {
			return nil
		}
	}

	supportedNames := make([]string, len(supported))
	for i, s := range supported {
		supportedNames[i] = string(s)
	}

	return fmt.Errorf("unsupported format %q, must be one of: %s",
		format, strings.Join(supportedNames, ", "))
}
