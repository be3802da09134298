// Package connection provides the transports of tidekv-cli: a RESP
// client, a pool of RESP clients for concurrent load, and an HTTP client
// for the admin API.
package connection
