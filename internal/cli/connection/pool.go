package connection

import (
	"context"
	"errors"

	pool "github.com/jolestar/go-commons-pool/v2"

	"github.com/yndnr/tidekv/internal/protocol/resp"
)

var errTypeMismatch = errors.New("connection: pooled object is not a *Client")

// Pool shares RESP clients between goroutines.
type Pool struct {
	p *pool.ObjectPool
}

// NewPool creates a pool of at most size clients. Connections are dialed
// lazily and checked with PING when borrowed.
func NewPool(ctx context.Context, opts Options, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	cfg := pool.NewDefaultPoolConfig()
	cfg.MaxTotal = size
	cfg.MaxIdle = size
	cfg.TestOnBorrow = true
	return &Pool{p: pool.NewObjectPool(ctx, &clientFactory{opts: opts}, cfg)}
}

// Do borrows a client, runs one command and returns the client. A client
// that failed at the transport level is discarded.
func (p *Pool) Do(ctx context.Context, args ...string) (resp.Value, error) {
	obj, err := p.p.BorrowObject(ctx)
	if err != nil {
		return resp.Value{}, err
	}
	c, ok := obj.(*Client)
	if !ok {
		return resp.Value{}, errTypeMismatch
	}
	v, err := c.Do(ctx, args...)
	if err != nil {
		p.p.InvalidateObject(ctx, c)
		return resp.Value{}, err
	}
	return v, p.p.ReturnObject(ctx, c)
}

// Active returns the number of borrowed clients.
func (p *Pool) Active() int { return p.p.GetNumActive() }

// Idle returns the number of idle clients.
func (p *Pool) Idle() int { return p.p.GetNumIdle() }

// Close closes every idle client. Borrowed clients are closed when
// returned.
func (p *Pool) Close(ctx context.Context) {
	p.p.Close(ctx)
}

// clientFactory creates and checks pooled clients.
type clientFactory struct {
	opts Options
}

func (f *clientFactory) MakeObject(ctx context.Context) (*pool.PooledObject, error) {
	c, err := Dial(ctx, f.opts)
	if err != nil {
		return nil, err
	}
	return pool.NewPooledObject(c), nil
}

func (f *clientFactory) DestroyObject(_ context.Context, object *pool.PooledObject) error {
	c, ok := object.Object.(*Client)
	if !ok {
		return errTypeMismatch
	}
	return c.Close()
}

func (f *clientFactory) ValidateObject(ctx context.Context, object *pool.PooledObject) bool {
	c, ok := object.Object.(*Client)
	if !ok {
		return false
	}
	v, err := c.Do(ctx, "PING")
	return err == nil && v.Kind == resp.KindSimpleString
}

func (f *clientFactory) ActivateObject(context.Context, *pool.PooledObject) error {
	return nil
}

func (f *clientFactory) PassivateObject(context.Context, *pool.PooledObject) error {
	return nil
}
