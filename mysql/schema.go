package mysql

import (
	"fmt"
	"strings"
)

const entriesTemplate = `CREATE TABLE IF NOT EXISTS %s (
	id BIGINT NOT NULL AUTO_INCREMENT,
	idem_key VARCHAR(64) NOT NULL,
	payload %s NOT NULL,
	created_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
	PRIMARY KEY (id),
	UNIQUE KEY uq_idem_key (idem_key)
);`

const failuresTemplate = `CREATE TABLE IF NOT EXISTS %s (
	entry_id BIGINT NOT NULL,
	attempt_count INT NOT NULL DEFAULT 0,
	last_error VARCHAR(1024) NULL,
	updated_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
	PRIMARY KEY (entry_id),
	FOREIGN KEY (entry_id) REFERENCES %s (id) ON DELETE CASCADE
);`

const (
	payloadJSON   = "JSON"
	payloadBinary = "LONGBLOB"
)

// Schema returns the DDL for an outbox table with a JSON payload and its failures table.
func Schema(table string) (string, error) {
	return buildSchema(table, payloadJSON)
}

// SchemaBinary returns the DDL with a LONGBLOB payload, which keeps payload bytes verbatim.
func SchemaBinary(table string) (string, error) {
	return buildSchema(table, payloadBinary)
}

// SchemaStatements returns the DDL as separate statements, for connections without multiStatements.
func SchemaStatements(table string, binary bool) ([]string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return nil, err
	}

	payloadType := payloadJSON
	if binary {
		payloadType = payloadBinary
	}

	return []string{
		fmt.Sprintf(entriesTemplate, name, payloadType),
		fmt.Sprintf(failuresTemplate, failuresTable(name), name),
	}, nil
}

func buildSchema(table, payloadType string) (string, error) {
	stmts, err := SchemaStatements(table, payloadType == payloadBinary)
	if err != nil {
		return "", err
	}

	return strings.Join(stmts, "\n\n"), nil
}
