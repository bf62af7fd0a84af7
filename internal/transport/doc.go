// Package transport provides the HTTP client shared by every probe of a run.
//
// A Client owns one connection pool. Requests go out directly, through a
// SOCKS5 proxy (golang.org/x/net/proxy), or through an embedded Tor daemon
// started with tornago. Create one Client per run and pass its HTTP client
// to the prober and the AI analyst rather than using global state.
package transport
