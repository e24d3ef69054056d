package relay

import (
	"encoding/json"
	"log"
	"sync"
)

// broadcaster maps connection ids to their send side. Room members only
// carry ids, so rooms never reference transport objects.
type broadcaster struct {
	mu     sync.RWMutex
	conns  map[string]*Conn
	logger *log.Logger
}

func newBroadcaster(logger *log.Logger) *broadcaster {
	return &broadcaster{
		conns:  make(map[string]*Conn),
		logger: logger,
	}
}

func (b *broadcaster) register(c *Conn) {
	b.mu.Lock()
	b.conns[c.ID] = c
	b.mu.Unlock()
}

// unregister removes the connection and closes its send channel.
func (b *broadcaster) unregister(id string) {
	b.mu.Lock()
	c, ok := b.conns[id]
	delete(b.conns, id)
	b.mu.Unlock()

	if ok {
		c.close()
	}
}

func (b *broadcaster) lookup(id string) *Conn {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.conns[id]
}

// send delivers msg to a single connection.
func (b *broadcaster) send(id string, msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Printf("relay: encode message for %s: %v", id, err)
		return
	}
	if c := b.lookup(id); c != nil {
		c.tryDeliver(data)
	}
}

// broadcast encodes msg once and queues it for every member of the room
// whose connection is still open. It returns the number of deliveries.
func (b *broadcaster) broadcast(snap Snapshot, msg any) int {
	data, err := json.Marshal(msg)
	if err != nil {
		b.logger.Printf("relay: encode broadcast for room %s: %v", snap.Code, err)
		return 0
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, p := range snap.Players {
		c, ok := b.conns[p.ID]
		if !ok {
			continue
		}
		if c.tryDeliver(data) {
			delivered++
		}
	}
	return delivered
}
