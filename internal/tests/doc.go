// Package tests holds end-to-end tests that run the RESP server, the
// dispatcher, the keyspace and the storage engine together over real TCP
// connections.
package tests
