// Package client is the Go client for the book-club API. It owns the session
// core on the caller's side: attaching the access token to outgoing requests,
// coordinating a single refresh when the token expires while many requests are
// in flight, replaying failed requests exactly once with the renewed token,
// and tearing the session down when the server declares it terminal.
//
// The refresh credential itself never passes through this package's hands: it
// lives in an HttpOnly cookie carried by the underlying cookie jar.
package client
