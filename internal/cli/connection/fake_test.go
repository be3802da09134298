package connection

import (
	"net"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

// fakeServer answers PING, AUTH, ECHO and SET over real TCP.
type fakeServer struct {
	ln       net.Listener
	password string
	accepted atomic.Int64
}

func newFakeServer(t *testing.T, password string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &fakeServer{ln: ln, password: password}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) addr() string { return s.ln.Addr().String() }

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.accepted.Add(1)
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	authed := s.password == ""
	var pending []byte
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		pending = append(pending, buf[:n]...)
		cmds, rest, err := resp.DecodeCommands(pending)
		if err != nil {
			return
		}
		pending = rest
		for _, cmd := range cmds {
			var reply resp.Value
			switch {
			case cmd.Name == "AUTH" && len(cmd.Args) == 1:
				if string(cmd.Args[0]) == s.password {
					authed = true
					reply = resp.OK()
				} else {
					reply = resp.Error("ERR invalid password")
				}
			case !authed:
				reply = resp.Error("NOAUTH Authentication required.")
			case cmd.Name == "PING":
				reply = resp.SimpleString("PONG")
			case cmd.Name == "ECHO" && len(cmd.Args) == 1:
				reply = resp.Bulk(cmd.Args[0])
			case cmd.Name == "SET":
				reply = resp.OK()
			default:
				reply = resp.Error("ERR unknown command '" + strings.ToLower(cmd.Name) + "'")
			}
			if _, err := conn.Write(resp.Encode(reply)); err != nil {
				return
			}
		}
	}
}
