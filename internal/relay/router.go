package relay

import "sync"

// router tracks which room, if any, each live connection is bound to.
type router struct {
	mu       sync.Mutex
	bindings map[string]string
}

func newRouter() *router {
	return &router{bindings: make(map[string]string)}
}

func (r *router) connect(connID string) {
	r.mu.Lock()
	r.bindings[connID] = ""
	r.mu.Unlock()
}

// disconnect forgets the connection and returns the room it was bound to.
func (r *router) disconnect(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code, ok := r.bindings[connID]
	delete(r.bindings, connID)
	return code, ok && code != ""
}

// bind points a live connection at code and returns its previous room,
// "" when it had none. live is false once the connection has disconnected.
func (r *router) bind(connID, code string) (prev string, live bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, live = r.bindings[connID]
	if !live {
		return "", false
	}
	r.bindings[connID] = code
	return prev, true
}

func (r *router) unbind(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bindings[connID]; ok {
		r.bindings[connID] = ""
	}
}

func (r *router) binding(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	code := r.bindings[connID]
	return code, code != ""
}
