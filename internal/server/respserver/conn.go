package respserver

import (
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// Conn is one client connection. The reader goroutine decodes and executes
// commands and appends replies to the outbound buffer; the writer goroutine
// drains it to the socket.
type Conn struct {
	id      int64
	connID  string
	netConn net.Conn
	ip      string
	created time.Time

	state    atomic.Int32
	authed   atomic.Bool
	name     atomic.Pointer[string]
	lastCmd  atomic.Pointer[string]
	lastSeen atomic.Int64
	commands atomic.Uint64

	// kill asks the reader to stop before the next command.
	kill atomic.Bool

	out *outbound
}

func newConn(id int64, nc net.Conn) *Conn {
	c := &Conn{
		id:      id,
		connID:  ulid.Make().String(),
		netConn: nc,
		ip:      remoteIP(nc.RemoteAddr()),
		created: time.Now(),
		out:     newOutbound(),
	}
	c.lastSeen.Store(c.created.UnixMilli())
	return c
}

// ID returns the numeric client ID reported by CLIENT ID.
func (c *Conn) ID() int64 { return c.id }

// ConnID returns the unique ID used in logs.
func (c *Conn) ConnID() string { return c.connID }

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.netConn.RemoteAddr() }

// State returns the current connection state.
func (c *Conn) State() State { return State(c.state.Load()) }

// setState moves to next if the transition is legal.
func (c *Conn) setState(next State) bool {
	for {
		cur := State(c.state.Load())
		if !cur.canMove(next) {
			return false
		}
		if c.state.CompareAndSwap(int32(cur), int32(next)) {
			return true
		}
	}
}

// Name returns the name set by CLIENT SETNAME.
func (c *Conn) Name() string {
	if p := c.name.Load(); p != nil {
		return *p
	}
	return ""
}

func (c *Conn) setName(name string) {
	c.name.Store(&name)
}

func (c *Conn) touch(cmd string) {
	c.lastCmd.Store(&cmd)
	c.lastSeen.Store(time.Now().UnixMilli())
	c.commands.Add(1)
}

// info renders one CLIENT LIST line.
func (c *Conn) info(now time.Time) string {
	cmd := "NULL"
	if p := c.lastCmd.Load(); p != nil {
		cmd = strings.ToLower(*p)
	}
	var b strings.Builder
	b.WriteString("id=")
	b.WriteString(strconv.FormatInt(c.id, 10))
	b.WriteString(" addr=")
	b.WriteString(c.RemoteAddr().String())
	b.WriteString(" laddr=")
	b.WriteString(c.netConn.LocalAddr().String())
	b.WriteString(" name=")
	b.WriteString(c.Name())
	b.WriteString(" age=")
	b.WriteString(strconv.FormatInt(int64(now.Sub(c.created)/time.Second), 10))
	b.WriteString(" idle=")
	b.WriteString(strconv.FormatInt((now.UnixMilli()-c.lastSeen.Load())/1000, 10))
	b.WriteString(" state=")
	b.WriteString(c.State().String())
	b.WriteString(" omem=")
	b.WriteString(strconv.Itoa(c.out.pending()))
	b.WriteString(" cmds=")
	b.WriteString(strconv.FormatUint(c.commands.Load(), 10))
	b.WriteString(" cmd=")
	b.WriteString(cmd)
	b.WriteString(" conn=")
	b.WriteString(c.connID)
	return b.String()
}

func remoteIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

// ============================================================================
// Outbound buffer
// ============================================================================

// outbound is the reply buffer shared by the reader and writer goroutines.
type outbound struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      []byte
	spare    []byte
	inflight int
	closing  bool
	dead     bool
}

func newOutbound() *outbound {
	o := &outbound{}
	o.cond = sync.NewCond(&o.mu)
	return o
}

// append queues reply bytes. It reports false once the writer has failed.
func (o *outbound) append(fn func([]byte) []byte) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.dead {
		return false
	}
	o.buf = fn(o.buf)
	o.cond.Broadcast()
	return true
}

// pending counts queued and in-flight bytes.
func (o *outbound) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.buf) + o.inflight
}

// waitBelow blocks while more than high bytes are pending, until the
// writer drains the buffer to low. It reports false if the writer died.
func (o *outbound) waitBelow(high, low int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.buf)+o.inflight <= high {
		return !o.dead
	}
	for len(o.buf)+o.inflight > low && !o.dead {
		o.cond.Wait()
	}
	return !o.dead
}

// next blocks until there is something to write. It returns nil when the
// buffer is closing and fully drained.
func (o *outbound) next() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	for len(o.buf) == 0 && !o.closing && !o.dead {
		o.cond.Wait()
	}
	if len(o.buf) == 0 || o.dead {
		return nil
	}
	out := o.buf
	o.buf = o.spare[:0]
	o.spare = nil
	o.inflight = len(out)
	return out
}

// done returns a written chunk for reuse.
func (o *outbound) done(chunk []byte) {
	o.mu.Lock()
	o.inflight = 0
	if cap(chunk) <= DefaultOutboundLowWater {
		o.spare = chunk[:0]
	}
	o.cond.Broadcast()
	o.mu.Unlock()
}

// close stops accepting replies once the buffer drains.
func (o *outbound) close() {
	o.mu.Lock()
	o.closing = true
	o.cond.Broadcast()
	o.mu.Unlock()
}

// fail discards pending output after a write error.
func (o *outbound) fail() {
	o.mu.Lock()
	o.dead = true
	o.buf = nil
	o.inflight = 0
	o.cond.Broadcast()
	o.mu.Unlock()
}
