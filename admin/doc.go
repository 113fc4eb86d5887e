// Package admin serves the outbox debug panel: pending entries, manual flush,
// clear and counters, over HTTP.
package admin
