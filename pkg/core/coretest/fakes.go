// Package coretest provides in-memory transport fakes for deterministic
// connection tests.
package coretest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/jowharshamshiri/GoZaparoo/pkg/core"
)

// ErrSocketClosed is returned by a closed Socket
var ErrSocketClosed = errors.New("socket closed")

// Socket is an in-memory core.Socket
type Socket struct {
	inbound chan []byte
	closed  chan struct{}
	once    sync.Once

	mu       sync.Mutex
	written  [][]byte
	writeErr error
	onWrite  func([]byte)
	dropErr  error
}

// NewSocket creates an open socket
func NewSocket() *Socket {
	return &Socket{
		inbound: make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

// WriteMessage records data, or fails with the error set by FailWrites
func (s *Socket) WriteMessage(data []byte) error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return ErrSocketClosed
	default:
	}
	if s.writeErr != nil {
		err := s.writeErr
		s.mu.Unlock()
		return err
	}
	frame := append([]byte(nil), data...)
	s.written = append(s.written, frame)
	hook := s.onWrite
	s.mu.Unlock()

	if hook != nil {
		hook(frame)
	}
	return nil
}

// ReadMessage returns the next delivered frame
func (s *Socket) ReadMessage() ([]byte, error) {
	select {
	case data := <-s.inbound:
		return data, nil
	case <-s.closed:
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.dropErr != nil {
			return nil, s.dropErr
		}
		return nil, io.EOF
	}
}

// Close closes the socket
func (s *Socket) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Deliver queues an inbound frame
func (s *Socket) Deliver(data []byte) {
	select {
	case s.inbound <- data:
	case <-s.closed:
	}
}

// Drop simulates the remote end closing the connection with err
func (s *Socket) Drop(err error) {
	s.mu.Lock()
	s.dropErr = err
	s.mu.Unlock()
	s.Close()
}

// Closed reports whether the socket was closed
func (s *Socket) Closed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FailWrites makes every later write fail with err; nil restores writes
func (s *Socket) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// OnWrite installs a hook called with every successfully written frame
func (s *Socket) OnWrite(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onWrite = fn
}

// Written returns a copy of every written frame
func (s *Socket) Written() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.written...)
}

// DialResult scripts one Dial outcome
type DialResult struct {
	Socket *Socket
	Err    error
}

// Dialer is a scripted core.Dialer. Scripted results are consumed in order;
// once exhausted every Dial succeeds with a fresh Socket.
type Dialer struct {
	mu      sync.Mutex
	script  []DialResult
	sockets []*Socket
	dials   int
	block   chan struct{}
	onDial  func(*Socket)
}

// NewDialer creates a dialer with the given scripted results
func NewDialer(script ...DialResult) *Dialer {
	return &Dialer{script: script}
}

// Script appends outcomes for later dials
func (d *Dialer) Script(results ...DialResult) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.script = append(d.script, results...)
}

// Block makes Dial wait until the returned func is called or ctx ends
func (d *Dialer) Block() (release func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan struct{})
	d.block = ch
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			if d.block == ch {
				d.block = nil
			}
			d.mu.Unlock()
			close(ch)
		})
	}
}

// OnDial installs a hook called with each socket before Dial returns it
func (d *Dialer) OnDial(fn func(*Socket)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDial = fn
}

func (d *Dialer) Dial(ctx context.Context, rawURL string) (core.Socket, error) {
	d.mu.Lock()
	d.dials++
	block := d.block
	d.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	var result DialResult
	if len(d.script) > 0 {
		result = d.script[0]
		d.script = d.script[1:]
	}
	if result.Err != nil {
		d.mu.Unlock()
		return nil, result.Err
	}
	if result.Socket == nil {
		result.Socket = NewSocket()
	}
	d.sockets = append(d.sockets, result.Socket)
	hook := d.onDial
	d.mu.Unlock()

	if hook != nil {
		hook(result.Socket)
	}
	return result.Socket, nil
}

// Dials returns how many times Dial was called
func (d *Dialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

// Last returns the most recently opened socket
func (d *Dialer) Last() *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// Sockets returns every socket opened so far
func (d *Dialer) Sockets() []*Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Socket(nil), d.sockets...)
}
