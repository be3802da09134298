// Package repl implements the interactive mode of tidekv-cli: it reads
// lines, splits them into arguments with redis-cli quoting rules and
// hands them to an executor.
//
// Local commands: help [PREFIX], history, exit, quit.
package repl
