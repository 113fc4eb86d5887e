// Package mysql provides a MySQL 8.0+ outbox store for back offices that share
// one queue between several terminals.
//
// Entries live in an AUTO_INCREMENT table, so ascending id is insertion order and
// ids are never reused, including after Clear. Rejection diagnostics are kept in
// a companion "<table>_failures" table that cascades on delete.
//
// See Schema (JSON payloads, normalized by MySQL) or SchemaBinary (payload bytes
// kept verbatim). Store.Migrate applies either one.
package mysql
