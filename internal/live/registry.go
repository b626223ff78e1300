package live

import (
	"sync"

	"github.com/jwalitptl/contract-admin/pkg/metrics"
)

// Registry maps online users to their push connection. A user has at most
// one registered connection; registering again replaces it. Open but not
// yet registered connections are tracked so that a registration can name
// one by id.
type Registry struct {
	mu     sync.RWMutex
	open   map[string]Conn
	byUser map[int64]Conn
	owner  map[string]int64
	opener map[string]int64

	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		open:    make(map[string]Conn),
		byUser:  make(map[int64]Conn),
		owner:   make(map[string]int64),
		opener:  make(map[string]int64),
		metrics: m,
	}
}

// Track records an open connection that has not announced its user yet,
// along with the authenticated user that opened it.
func (r *Registry) Track(conn Conn, openedBy int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.open[conn.ID()] = conn
	r.opener[conn.ID()] = openedBy
}

// Claim registers the tracked connection id for userID. Only the user that
// opened the connection may claim it.
func (r *Registry) Claim(id string, userID int64) (Conn, error) {
	r.mu.RLock()
	conn, ok := r.open[id]
	openedBy := r.opener[id]
	r.mu.RUnlock()

	if !ok {
		return nil, ErrUnknownConn
	}
	if openedBy != userID {
		return nil, ErrNotOpener
	}
	r.Register(userID, conn)
	return conn, nil
}

// Conn returns a tracked connection by id.
func (r *Registry) Conn(id string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.open[id]
	return conn, ok
}

// Register makes conn the push handle for userID.
func (r *Registry) Register(userID int64, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byUser[userID]; ok && prev.ID() != conn.ID() {
		delete(r.owner, prev.ID())
	}
	if prevUser, ok := r.owner[conn.ID()]; ok && prevUser != userID {
		delete(r.byUser, prevUser)
	}

	r.open[conn.ID()] = conn
	r.byUser[userID] = conn
	r.owner[conn.ID()] = userID
	r.updateGauge()
}

// Unregister forgets conn. A user whose slot was already taken by a newer
// connection keeps the newer one.
func (r *Registry) Unregister(conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	delete(r.open, id)
	delete(r.opener, id)
	if userID, ok := r.owner[id]; ok {
		delete(r.owner, id)
		if cur, ok := r.byUser[userID]; ok && cur.ID() == id {
			delete(r.byUser, userID)
		}
	}
	r.updateGauge()
}

func (r *Registry) Lookup(userID int64) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.byUser[userID]
	return conn, ok
}

// Len is the number of users with a registered connection.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser)
}

func (r *Registry) updateGauge() {
	if r.metrics != nil {
		r.metrics.LiveConnections.Set(float64(len(r.byUser)))
	}
}
