// Package redisstore keeps the outbox in Redis so several processes on one
// counter can share a queue.
//
// Keys, for prefix p. The prefix is wrapped in a hash tag, {p}, unless it
// already carries one, so a cluster client keeps them in a single slot:
//
//	p:seq       INCR counter assigning entry ids
//	p:entries   sorted set of ids, score = id
//	p:payloads  hash id -> payload bytes
//	p:meta      hash id -> {"key","created_at"}
//	p:attempts  hash id -> rejection count
//	p:errors    hash id -> last rejection message
//
// Clear never resets p:seq, so ids are not reused.
package redisstore
