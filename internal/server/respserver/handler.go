package respserver

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/tidekv/internal/core/domain"
	"github.com/yndnr/tidekv/internal/protocol/resp"
	"github.com/yndnr/tidekv/internal/telemetry/logger"
)

// handle routes a command. Connection-scoped verbs are served here; the
// rest go to the dispatcher once authentication and rate limiting pass.
// quit reports that the connection closes after the reply.
func (s *Server) handle(c *Conn, cmd resp.Command) (reply resp.Value, quit bool, err error) {
	start := time.Now()

	// Only QUIT and AUTH are served before authentication.
	switch cmd.Name {
	case "QUIT":
		return resp.OK(), true, nil
	case "AUTH":
		reply, err = s.auth(c, cmd.Args)
		s.metrics.ObserveCommand(cmd.Name, time.Since(start), err)
		return reply, false, err
	}

	if s.cfg.RequirePass != "" && !c.authed.Load() {
		s.metrics.ObserveCommand(cmd.Name, 0, domain.ErrNoAuth)
		return resp.Err(domain.ErrNoAuth), false, domain.ErrNoAuth
	}

	if !s.limiter.allow(c.ip) {
		s.metrics.RateLimited()
		return resp.Err(domain.ErrRateLimited), false, domain.ErrRateLimited
	}

	var handler func(*Conn, [][]byte) (resp.Value, error)
	switch cmd.Name {
	case "CLIENT":
		handler = s.client
	case "INFO":
		handler = s.info
	case "SAVE":
		handler = s.save
	case "BGSAVE":
		handler = s.bgsave
	case "LASTSAVE":
		handler = s.lastsave
	default:
		reply, err = s.disp.Execute(cmd)
		return reply, false, err
	}

	reply, err = handler(c, cmd.Args)
	s.metrics.ObserveCommand(cmd.Name, time.Since(start), err)
	if err != nil {
		return resp.Err(err), false, err
	}
	return reply, false, nil
}

// auth implements AUTH password and AUTH default password.
func (s *Server) auth(c *Conn, args [][]byte) (resp.Value, error) {
	var pass []byte
	switch len(args) {
	case 1:
		pass = args[0]
	case 2:
		if !strings.EqualFold(string(args[0]), "default") {
			return resp.Err(domain.ErrInvalidPassword), domain.ErrInvalidPassword
		}
		pass = args[1]
	default:
		err := domain.Arity("auth")
		return resp.Err(err), err
	}

	if s.cfg.RequirePass == "" {
		return resp.Err(domain.ErrNoPasswordSet), domain.ErrNoPasswordSet
	}
	if subtle.ConstantTimeCompare(pass, []byte(s.cfg.RequirePass)) != 1 {
		c.authed.Store(false)
		return resp.Err(domain.ErrInvalidPassword), domain.ErrInvalidPassword
	}
	c.authed.Store(true)
	return resp.OK(), nil
}

// client implements CLIENT ID | SETNAME name | GETNAME | LIST.
func (s *Server) client(c *Conn, args [][]byte) (resp.Value, error) {
	if len(args) == 0 {
		return resp.Value{}, domain.Arity("client")
	}
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "ID":
		if len(args) != 1 {
			return resp.Value{}, domain.Arity("client|id")
		}
		return resp.Integer(c.id), nil
	case "SETNAME":
		if len(args) != 2 {
			return resp.Value{}, domain.Arity("client|setname")
		}
		name := string(args[1])
		if strings.ContainsAny(name, " \n\r") {
			return resp.Value{}, domain.New(domain.KindFormat, "Client names cannot contain spaces, newlines or special characters.")
		}
		c.setName(name)
		return resp.OK(), nil
	case "GETNAME":
		if len(args) != 1 {
			return resp.Value{}, domain.Arity("client|getname")
		}
		if name := c.Name(); name != "" {
			return resp.BulkString(name), nil
		}
		return resp.NilBulk(), nil
	case "LIST":
		now := time.Now()
		var b strings.Builder
		for _, cc := range s.clients() {
			b.WriteString(cc.info(now))
			b.WriteByte('\n')
		}
		return resp.BulkString(b.String()), nil
	default:
		return resp.Value{}, domain.UnknownSubcommand("client", sub)
	}
}

// save implements SAVE.
func (s *Server) save(c *Conn, args [][]byte) (resp.Value, error) {
	if len(args) != 0 {
		return resp.Value{}, domain.Arity("save")
	}
	if s.persist == nil {
		return resp.Value{}, domain.ErrPersistenceDisabled
	}
	if _, err := s.persist.Save(logger.WithConnID(context.Background(), c.connID)); err != nil {
		return resp.Value{}, persistenceError(err)
	}
	return resp.OK(), nil
}

// bgsave implements BGSAVE [SCHEDULE]. SCHEDULE is accepted and ignored.
func (s *Server) bgsave(_ *Conn, args [][]byte) (resp.Value, error) {
	if len(args) > 1 || (len(args) == 1 && !strings.EqualFold(string(args[0]), "schedule")) {
		return resp.Value{}, domain.ErrSyntax
	}
	if s.persist == nil {
		return resp.Value{}, domain.ErrPersistenceDisabled
	}
	if err := s.persist.BackgroundSave(); err != nil {
		return resp.Value{}, persistenceError(err)
	}
	return resp.SimpleString("Background saving started"), nil
}

// lastsave implements LASTSAVE.
func (s *Server) lastsave(_ *Conn, args [][]byte) (resp.Value, error) {
	if len(args) != 0 {
		return resp.Value{}, domain.Arity("lastsave")
	}
	if s.persist == nil {
		return resp.Integer(0), nil
	}
	t := s.persist.LastSave()
	if t.IsZero() {
		return resp.Integer(0), nil
	}
	return resp.Integer(t.Unix()), nil
}

// persistenceError keeps storage failures from closing the connection.
func persistenceError(err error) error {
	var de *domain.DomainError
	if errors.As(err, &de) {
		return de
	}
	return domain.Newf(domain.KindFormat, "snapshot failed: %v", err)
}

// ============================================================================
// INFO
// ============================================================================

var infoSections = []string{"server", "clients", "memory", "persistence", "stats", "keyspace"}

// info implements INFO [section ...].
func (s *Server) info(_ *Conn, args [][]byte) (resp.Value, error) {
	want := make(map[string]bool)
	for _, a := range args {
		name := strings.ToLower(string(a))
		switch name {
		case "all", "everything", "default":
			for _, sec := range infoSections {
				want[sec] = true
			}
		default:
			want[name] = true
		}
	}
	if len(want) == 0 {
		for _, sec := range infoSections {
			want[sec] = true
		}
	}

	var b strings.Builder
	for _, sec := range infoSections {
		if !want[sec] {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\r\n")
		}
		fmt.Fprintf(&b, "# %s\r\n", strings.ToUpper(sec[:1])+sec[1:])
		for _, kv := range s.infoSection(sec) {
			b.WriteString(kv[0])
			b.WriteByte(':')
			b.WriteString(kv[1])
			b.WriteString("\r\n")
		}
	}
	return resp.BulkString(b.String()), nil
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func boolInt(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
