package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox"
)

const payloadPreview = 60

// ListResult is the list command output.
type ListResult struct {
	Count   int            `json:"count"`
	Entries []outbox.Entry `json:"entries"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show queued entries in replay order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.manager.ListPending(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list pending", err)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(ListResult{Count: len(entries), Entries: entries}, func(w io.Writer) {
				writeEntries(w, entries)
			})
		},
	}
}

func writeEntries(w io.Writer, entries []outbox.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "outbox is empty")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tATTEMPTS\tLAST ERROR\tPAYLOAD")
	for _, e := range entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\n",
			e.ID, e.CreatedAt.Format(time.RFC3339), e.Attempts, e.LastError, preview(string(e.Payload)))
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "%d pending\n", len(entries))
}

func preview(s string) string {
	if len(s) <= payloadPreview {
		return s
	}
	return s[:payloadPreview-3] + "..."
}
