package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/waterdesk/outbox/mysql"
)

// SchemaResult is the schema command output.
type SchemaResult struct {
	Table      string   `json:"table"`
	Statements []string `json:"statements"`
	Applied    bool     `json:"applied"`
}

// NewSchemaCommand creates the schema command.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		table  string
		binary bool
		apply  bool
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the MySQL outbox DDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := rootOpts.Config
			if !cmd.Flags().Changed("table") {
				table = cfg.MySQL.Table
			}
			if !cmd.Flags().Changed("binary") {
				binary = cfg.MySQL.Binary
			}

			stmts, err := mysql.SchemaStatements(table, binary)
			if err != nil {
				return WrapExitError(ExitCommandError, "schema", err)
			}

			if apply {
				if cfg.MySQL.DSN == "" {
					return NewExitError(ExitCommandError, "--apply needs mysql.dsn in the config")
				}
				store, err := mysql.Open(cfg.MySQL.DSN, mysql.WithTable(table), mysql.WithBinaryPayload(binary))
				if err != nil {
					return WrapExitError(ExitCommandError, "open mysql", err)
				}
				defer store.Close()

				if err := store.Migrate(cmd.Context()); err != nil {
					return WrapExitError(ExitFailure, "migrate", err)
				}
				rootOpts.Logger.Info("outbox schema applied", "table", table)
			}

			out := printer{format: rootOpts.Format, w: cmd.OutOrStdout()}
			return out.print(SchemaResult{Table: table, Statements: stmts, Applied: apply}, func(w io.Writer) {
				fmt.Fprintln(w, strings.Join(stmts, "\n\n"))
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "outbox", "outbox table name")
	cmd.Flags().BoolVar(&binary, "binary", false, "store payloads in a LONGBLOB column")
	cmd.Flags().BoolVar(&apply, "apply", false, "create the tables on the configured MySQL server")

	return cmd
}
