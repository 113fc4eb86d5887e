// Package outbox provides a durable client-side outbox for order submissions.
//
// Typical flow:
//  1. A live order submission fails at the transport level; the payload is saved with Manager.Save
//     (or Manager.Submit does the live attempt and the fallback in one call).
//  2. A Trigger watches connectivity and calls Manager.Flush at startup and whenever the link comes back.
//  3. Flush replays entries in ascending id order; an entry is deleted only after a 2xx response,
//     rejected entries stay queued, and a transport failure ends the pass early.
//
// Storage backends live in the sqlite, mysql and redisstore packages; MemoryStore is the in-process variant.
package outbox
