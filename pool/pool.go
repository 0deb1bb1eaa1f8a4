// Package pool provides the bounded connection pool Runner implementations
// draw server sockets from. Acquisition blocks when the pool is exhausted,
// and a generation counter invalidates sockets handed out before a reset so
// they are dropped instead of reused.
package pool

import (
	"bufio"
	"crypto/tls"
	"errors"
	"net"
	"sync"

	"mongo-change-feed/logger"
)

var log = logger.Named("pool")

// DefaultSize is the default maximum number of concurrent connections.
const DefaultSize = 5

// Pool hands out buffered connections to a single server.
type Pool struct {
	addr      string
	tlsConfig *tls.Config

	mu   sync.Mutex
	cond *sync.Cond

	// size is the maximum number of concurrent connections; open counts the
	// connections of the current generation, idle or in use.
	size int
	open int
	idle []*Conn

	// generation increments on every Clear. Connections from an older
	// generation are closed on release rather than reused.
	generation uint64
}

// New returns a pool of DefaultSize connections to addr.
func New(addr string) *Pool {
	return WithSize(addr, DefaultSize)
}

// WithSize returns a pool of at most size connections to addr.
func WithSize(addr string, size int) *Pool {
	return WithTLS(addr, size, nil)
}

// WithTLS returns a pool whose connections are wrapped in a TLS client using
// the given configuration. A nil config means plain TCP.
func WithTLS(addr string, size int, tlsConfig *tls.Config) *Pool {
	p := &Pool{addr: addr, size: size, tlsConfig: tlsConfig}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetSize adjusts the maximum number of concurrent connections.
func (p *Pool) SetSize(size int) error {
	if size < 1 {
		return errors.New("the connection pool size must be greater than zero")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.size = size
	p.cond.Broadcast()
	return nil
}

// Generation returns the current pool generation.
func (p *Pool) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// Acquire returns an idle connection, dialing a new one when the pool is not
// yet full. When the pool is exhausted it blocks until a connection is
// released or discarded.
func (p *Pool) Acquire() (*Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.size == 0 {
		return nil, errors.New("the connection pool does not allow connections; increase the size of the pool")
	}

	for {
		if n := len(p.idle); n > 0 {
			c := p.idle[n-1]
			p.idle = p.idle[:n-1]
			return c, nil
		}

		if p.open < p.size {
			p.open++
			gen := p.generation

			// Dial outside the lock so waiters and releases make progress.
			p.mu.Unlock()
			sock, err := p.connect()
			p.mu.Lock()

			if err != nil {
				// Clear may have reset the count while the dial was in
				// flight; only a slot of the current generation is ours to
				// give back.
				if gen == p.generation {
					p.open--
					p.cond.Signal()
				}
				return nil, err
			}
			return newConn(p, sock, gen), nil
		}

		p.cond.Wait()
	}
}

// Clear invalidates every connection in the pool. Idle sockets are closed
// immediately; sockets currently in use are closed when released.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.generation++
	for _, c := range p.idle {
		c.sock.Close()
	}
	p.idle = nil
	p.open = 0
	p.cond.Broadcast()
	log.Debugw("connection pool cleared", "addr", p.addr, "generation", p.generation)
}

// release returns c to the idle list, or closes it if the pool was cleared
// while it was out.
func (p *Pool) release(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.generation != p.generation {
		// Stale socket from before a reset; Clear already dropped its count.
		c.sock.Close()
		return
	}
	p.idle = append(p.idle, c)
	p.cond.Signal()
}

// discard closes c and frees its slot in the pool.
func (p *Pool) discard(c *Conn) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c.sock.Close()
	if c.generation == p.generation {
		p.open--
		p.cond.Signal()
	}
}

func (p *Pool) connect() (net.Conn, error) {
	sock, err := net.Dial("tcp", p.addr)
	if err != nil {
		return nil, err
	}
	if p.tlsConfig == nil {
		return sock, nil
	}

	tlsSock := tls.Client(sock, p.tlsConfig)
	if err := tlsSock.Handshake(); err != nil {
		sock.Close()
		return nil, err
	}
	return tlsSock, nil
}

// Conn is a pooled, buffered server connection. Exactly one of Release or
// Discard must be called when the caller is done with it.
type Conn struct {
	sock       net.Conn
	rw         *bufio.ReadWriter
	pool       *Pool
	generation uint64
}

func newConn(p *Pool, sock net.Conn, generation uint64) *Conn {
	rw := bufio.NewReadWriter(bufio.NewReader(sock), bufio.NewWriter(sock))
	return &Conn{sock: sock, rw: rw, pool: p, generation: generation}
}

func (c *Conn) Read(b []byte) (int, error) {
	return c.rw.Read(b)
}

func (c *Conn) Write(b []byte) (int, error) {
	return c.rw.Write(b)
}

// Flush writes any buffered output to the socket.
func (c *Conn) Flush() error {
	return c.rw.Flush()
}

// Release returns the connection to the pool for reuse.
func (c *Conn) Release() {
	c.pool.release(c)
}

// Discard closes the connection instead of returning it, freeing its pool
// slot. Use it when the socket is in an unknown state after an error.
func (c *Conn) Discard() {
	c.pool.discard(c)
}
