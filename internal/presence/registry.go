// Package presence tracks which users currently hold a live realtime
// connection. Every push path asks the Registry where a user can be reached.
//
// A user owns at most one routing slot. A new connection overwrites the slot
// (last connect wins) without touching the old socket. A disconnect only
// clears the slot when it carries the connection id that currently owns it,
// so a late disconnect from a superseded socket cannot knock a newer session
// offline.
package presence

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tbourn/go-social-chat/internal/domain"
)

var onlineUsers = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "presence_online_users",
	Help: "Number of users holding a live realtime connection.",
})

func init() {
	prometheus.MustRegister(onlineUsers)
}

// Record is the presence state of one user.
type Record struct {
	ConnID     string
	Status     domain.PresenceStatus
	LastActive time.Time
}

// Registry is a mutex-guarded map from user id to presence Record.
// The zero value is not usable; construct with NewRegistry.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OnConnect routes userID to connID and marks the user online. It returns
// the connection id that was displaced, or "" if the user was offline.
func (r *Registry) OnConnect(userID, connID string) (previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.records[userID]
	if prev.ConnID == "" {
		onlineUsers.Inc()
	}
	r.records[userID] = Record{
		ConnID:     connID,
		Status:     domain.StatusOnline,
		LastActive: r.now(),
	}
	return prev.ConnID
}

// OnDisconnect releases the slot if connID still owns it and reports whether
// it did. A stale connID leaves the newer session untouched.
func (r *Registry) OnDisconnect(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.records[userID]
	if !ok || cur.ConnID == "" || cur.ConnID != connID {
		return false
	}
	r.records[userID] = Record{
		Status:     domain.StatusOffline,
		LastActive: r.now(),
	}
	onlineUsers.Dec()
	return true
}

// Resolve returns the live connection id for userID, or "".
func (r *Registry) Resolve(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[userID].ConnID
}

// Snapshot returns the user's record. Users never seen are reported offline
// with a zero LastActive.
func (r *Registry) Snapshot(userID string) Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[userID]
	if !ok {
		return Record{Status: domain.StatusOffline}
	}
	return rec
}

// Touch refreshes LastActive for an online user.
func (r *Registry) Touch(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[userID]; ok && rec.ConnID != "" {
		rec.LastActive = r.now()
		r.records[userID] = rec
	}
}

// Decorate fills Status and LastActive of a summary from the registry.
func (r *Registry) Decorate(s domain.UserSummary) domain.UserSummary {
	rec := r.Snapshot(s.ID)
	s.Status = rec.Status
	if !rec.LastActive.IsZero() {
		t := rec.LastActive
		s.LastActive = &t
	}
	return s
}
