// Package shutdown coordinates graceful process shutdown.
//
// A Handler waits for SIGINT/SIGTERM (or an explicit Trigger) and then
// runs the registered hooks in reverse order under one timeout. The
// server registers its listeners last so they stop accepting before the
// storage engine takes its final snapshot.
package shutdown
