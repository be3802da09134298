// Package output renders replies and admin data for tidekv-cli.
//
// The raw format prints RESP replies the way redis-cli does ("(integer) 1",
// numbered array items, quoted bulk strings). json and yaml convert replies
// to plain values first.
package output
