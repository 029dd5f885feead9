package registry

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrNotFound = errors.New("session not found")

// Info describes one live realtime connection.
type Info struct {
	SessionID   string    `json:"session_id"`
	RemoteAddr  string    `json:"remote_addr"`
	StartedAt   time.Time `json:"started_at"`
	LastEventAt time.Time `json:"last_event_at"`
	Events      int64     `json:"events"`
	Turns       int64     `json:"turns"`
}

// Registry tracks live connections for the ops API. Entries normally leave
// when the read loop unregisters them; the janitor sweeps entries whose
// connection leaked without unregistering.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Info
	ttl      time.Duration
	onEvict  func(Info)
}

func New(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Info),
		ttl:      ttl,
	}
}

// SetEvictHook installs a callback invoked for every janitor-swept entry.
func (r *Registry) SetEvictHook(hook func(Info)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = hook
}

func (r *Registry) Register(sessionID, remoteAddr string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionID] = &Info{
		SessionID:   sessionID,
		RemoteAddr:  remoteAddr,
		StartedAt:   now,
		LastEventAt: now,
	}
}

func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionID)
}

func (r *Registry) Get(sessionID string) (Info, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return Info{}, ErrNotFound
	}
	return *s, nil
}

// MarkEvent bumps the event counter and activity clock. Unknown ids are
// ignored; the entry may already have been swept.
func (r *Registry) MarkEvent(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Events++
	s.LastEventAt = time.Now().UTC()
}

// MarkTurn bumps the completed-turn counter.
func (r *Registry) MarkTurn(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	s.Turns++
	s.LastEventAt = time.Now().UTC()
}

func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Snapshot returns the live connections ordered by start time.
func (r *Registry) Snapshot() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

func (r *Registry) sweep() {
	now := time.Now().UTC()
	var evicted []Info

	r.mu.Lock()
	for id, s := range r.sessions {
		if now.Sub(s.LastEventAt) < r.ttl {
			continue
		}
		evicted = append(evicted, *s)
		delete(r.sessions, id)
	}
	hook := r.onEvict
	r.mu.Unlock()

	if hook != nil {
		for _, s := range evicted {
			hook(s)
		}
	}
}
