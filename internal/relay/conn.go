package relay

import "sync"

// Conn is the send side of a live client connection. Transports drain
// Send and write each message as one text frame or line.
type Conn struct {
	ID string

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func newConn(id string, queue int) *Conn {
	return &Conn{
		ID:   id,
		send: make(chan []byte, queue),
	}
}

// Send returns the outbound message channel. It is closed on disconnect.
func (c *Conn) Send() <-chan []byte {
	return c.send
}

// Open reports whether the connection still accepts messages.
func (c *Conn) Open() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

// tryDeliver queues msg without blocking. A closed connection or a full
// queue drops the message.
func (c *Conn) tryDeliver(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
