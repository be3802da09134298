// Package resp implements the RESP2 wire protocol.
//
// The server side decodes streams of client commands with DecodeCommands,
// which is restartable: an incomplete trailing frame is handed back to the
// caller and completed by the next read. Replies are built as Value frames
// and serialized with Encode or AppendValue. Parse and Reader decode reply
// frames of any type for clients and tests.
//
// Supported frames:
//   - simple strings  +OK\r\n
//   - errors          -ERR message\r\n
//   - integers        :42\r\n
//   - bulk strings    $3\r\nfoo\r\n, nil as $-1\r\n
//   - arrays          *2\r\n..., nil as *-1\r\n
package resp
