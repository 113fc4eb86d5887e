// Package remote is the HTTP client for the back-office API: order submission,
// session login and the reachability probe used for connectivity.
package remote
