package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox"
)

// SubmitResult is the submit command output.
type SubmitResult struct {
	Delivered bool   `json:"delivered"`
	Queued    bool   `json:"queued"`
	ID        int64  `json:"id,omitempty"`
	Key       string `json:"key"`
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &orderFlags{}

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Send an order now, queueing it if the server is unreachable",
		Long: `Send an order to the server. When the request cannot be completed the order
is queued and replayed later. A rejected order is reported and not queued.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			payload, err := flags.payload(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.ensureSession(cmd.Context()); err != nil {
				return err
			}

			res, err := a.manager.Submit(cmd.Context(), payload)
			if outbox.IsRejection(err) {
				return WrapExitError(ExitFailure, "order rejected", err)
			}
			if err != nil {
				return saveError(err)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(SubmitResult(res), func(w io.Writer) {
				if res.Delivered {
					fmt.Fprintf(w, "delivered (key %s)\n", res.Key)
					return
				}
				fmt.Fprintf(w, "server unreachable, queued entry %d (key %s)\n", res.ID, res.Key)
			})
		},
	}
	flags.register(cmd)

	return cmd
}
