package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox"
)

// FlushResult is the flush command output.
type FlushResult struct {
	Delivered       int     `json:"delivered"`
	Rejected        int     `json:"rejected"`
	Processed       int     `json:"processed"`
	Pending         int     `json:"pending"`
	TransportFailed bool    `json:"transport_failed"`
	Error           string  `json:"error,omitempty"`
	DurationMillis  float64 `json:"duration_ms"`
}

// NewFlushCommand creates the flush command.
func NewFlushCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Replay queued entries once",
		Long: `Deliver queued entries in order. Accepted entries are removed, rejected
ones stay queued, and the pass stops at the first unreachable request.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}

			res, err := a.manager.Flush(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "flush", err)
			}
			pending, err := a.manager.PendingCount(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "pending count", err)
			}

			result := newFlushResult(res, pending)
			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			if err := out.print(result, func(w io.Writer) {
				fmt.Fprintf(w, "delivered %d, rejected %d, %d pending\n", res.Delivered, res.Rejected, pending)
				if res.TransportFailed {
					fmt.Fprintf(w, "stopped early: %v\n", res.Err)
				}
			}); err != nil {
				return err
			}

			if res.TransportFailed {
				return WrapExitError(ExitFailure, "server unreachable", res.Err)
			}
			return nil
		},
	}
}

func newFlushResult(res outbox.FlushResult, pending int) FlushResult {
	out := FlushResult{
		Delivered:       res.Delivered,
		Rejected:        res.Rejected,
		Processed:       res.Processed,
		Pending:         pending,
		TransportFailed: res.TransportFailed,
		DurationMillis:  float64(res.Duration.Microseconds()) / 1000,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}
