package db

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// connections tracks every open store connection by name.
var connections = &registry{conns: make(map[string]*sql.DB)}

type registry struct {
	mu    sync.Mutex
	conns map[string]*sql.DB
}

// newConnectionName returns a process-unique connection name.
func newConnectionName() string {
	return "calibration_" + uuid.NewString()
}

func (r *registry) add(name string, conn *sql.DB) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[name]; ok {
		return fmt.Errorf("connection %s already registered", name)
	}
	r.conns[name] = conn
	return nil
}

// remove drops the entry and returns the connection it held, if any.
func (r *registry) remove(name string) *sql.DB {
	r.mu.Lock()
	defer r.mu.Unlock()

	conn := r.conns[name]
	delete(r.conns, name)
	return conn
}

func (r *registry) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.conns[name]
	return ok
}

// OpenConnections returns the names of all registered connections, sorted.
func OpenConnections() []string {
	connections.mu.Lock()
	defer connections.mu.Unlock()

	names := make([]string, 0, len(connections.conns))
	for name := range connections.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
