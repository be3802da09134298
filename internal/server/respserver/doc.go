// Package respserver serves the RESP2 protocol over TCP and TLS.
//
// Each connection runs two goroutines: a reader that decodes commands and
// executes them in arrival order, and a writer that drains the outbound
// buffer. A client that stops reading its replies stops being read from
// once its buffer passes the high water mark.
//
// QUIT, AUTH, CLIENT, INFO, SAVE, BGSAVE and LASTSAVE are handled here;
// every other command goes to the command.Dispatcher. The server also
// enforces max_clients, a per-IP command rate, timeouts and requirepass.
package respserver
