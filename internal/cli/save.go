package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox"
)

// SaveResult is the save command output.
type SaveResult struct {
	ID int64 `json:"id"`
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &orderFlags{}

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Queue an order without contacting the server",
		Long: `Queue an order for later delivery. The order comes from flags or, with
--file, from a JSON document that is queued as-is.`,
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

			id, err := a.manager.Save(cmd.Context(), payload)
			if err != nil {
				return saveError(err)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(SaveResult{ID: id}, func(w io.Writer) {
				fmt.Fprintf(w, "queued entry %d\n", id)
			})
		},
	}
	flags.register(cmd)

	return cmd
}

func saveError(err error) error {
	if errors.Is(err, outbox.ErrPayloadRequired) || errors.Is(err, outbox.ErrInvalidPayload) {
		return WrapExitError(ExitCommandError, "save", err)
	}
	return WrapExitError(ExitFailure, "save", err)
}
