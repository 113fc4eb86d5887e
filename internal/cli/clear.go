package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// ClearResult is the clear command output.
type ClearResult struct {
	Removed int `json:"removed"`
}

// NewClearCommand creates the clear command.
func NewClearCommand(rootOpts *RootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return NewExitError(ExitCommandError, "clear discards undelivered orders; pass --yes to confirm")
			}

			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			removed, err := a.manager.PendingCount(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "pending count", err)
			}
			if err := a.manager.ClearAll(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "clear", err)
			}
			a.logger.Warn("outbox cleared", "removed", removed)

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(ClearResult{Removed: removed}, func(w io.Writer) {
				fmt.Fprintf(w, "removed %d entries\n", removed)
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm removal")

	return cmd
}
