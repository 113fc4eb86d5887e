package mysql

import "fmt"

type queries struct {
	insert        string
	selectAll     string
	deleteOne     string
	clearEntries  string
	clearFailures string
	countPending  string
	recordFailure string
}

func newQueries(table string) queries {
	failures := failuresTable(table)

	insert := fmt.Sprintf("INSERT INTO %s (idem_key, payload, created_at) VALUES (?, ?, ?)", table)
	selectAll := fmt.Sprintf(
		"SELECT e.id, e.idem_key, e.payload, e.created_at, COALESCE(f.attempt_count, 0), COALESCE(f.last_error, '') "+
			"FROM %s AS e LEFT JOIN %s AS f ON f.entry_id = e.id ORDER BY e.id ASC",
		table,
		failures,
	)
	recordFailure := fmt.Sprintf(
		"INSERT INTO %s (entry_id, attempt_count, last_error) "+
			"SELECT id, 1, ? FROM %s WHERE id = ? "+
			"ON DUPLICATE KEY UPDATE attempt_count = attempt_count + 1, last_error = VALUES(last_error)",
		failures,
		table,
	)

	return queries{
		insert:        insert,
		selectAll:     selectAll,
		deleteOne:     fmt.Sprintf("DELETE FROM %s WHERE id = ?", table),
		clearEntries:  fmt.Sprintf("DELETE FROM %s", table),
		clearFailures: fmt.Sprintf("DELETE FROM %s", failures),
		countPending:  fmt.Sprintf("SELECT COUNT(*) FROM %s", table),
		recordFailure: recordFailure,
	}
}
