package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mapchat/api/internal/drawing"
	"mapchat/api/internal/geo"
	"mapchat/api/internal/util"
)

var ErrNotFound = errors.New("session not found")

const DefaultIdleTTL = 2 * time.Hour

type Options struct {
	IdleTTL     time.Duration
	CreateDelay time.Duration
	Now         func() time.Time
	// OnRebuild observes every reconciler rebuild.
	OnRebuild func(sessionID string, features []geo.Feature)
}

// Manager owns every live workspace.
type Manager struct {
	opts Options

	mu         sync.RWMutex
	workspaces map[string]*Workspace
}

func NewManager(opts Options) *Manager {
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = DefaultIdleTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{opts: opts, workspaces: map[string]*Workspace{}}
}

// Create mounts a new empty workspace.
func (m *Manager) Create() *Workspace {
	id := util.NewID("ws")
	drawOpts := drawing.Options{CreateDelay: m.opts.CreateDelay, Now: m.opts.Now}
	if m.opts.OnRebuild != nil {
		onRebuild := m.opts.OnRebuild
		drawOpts.OnRebuild = func(features []geo.Feature) { onRebuild(id, features) }
	}
	ws := newWorkspace(id, m.opts.Now(), drawOpts)

	m.mu.Lock()
	m.workspaces[id] = ws
	m.mu.Unlock()
	return ws
}

// Get returns a live workspace and marks it as used.
func (m *Manager) Get(id string) (*Workspace, error) {
	m.mu.RLock()
	ws, ok := m.workspaces[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	ws.touch(m.opts.Now())
	return ws, nil
}

// Delete unmounts a workspace, discarding its collection.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	ws, ok := m.workspaces[id]
	delete(m.workspaces, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	ws.Close()
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workspaces)
}

// Sweep discards workspaces idle for longer than IdleTTL and returns how
// many were removed.
func (m *Manager) Sweep() int {
	cutoff := m.opts.Now().Add(-m.opts.IdleTTL)

	m.mu.Lock()
	var expired []*Workspace
	for id, ws := range m.workspaces {
		if ws.LastSeen().Before(cutoff) {
			expired = append(expired, ws)
			delete(m.workspaces, id)
		}
	}
	m.mu.Unlock()

	for _, ws := range expired {
		ws.Close()
	}
	return len(expired)
}

// DefaultSweepInterval is used when Run is given a non-positive interval.
const DefaultSweepInterval = time.Minute

// Run sweeps on every tick until ctx is done.
func (m *Manager) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				log.Info().Int("expired", n).Int("live", m.Len()).Msg("Swept idle sessions")
			}
		}
	}
}

// Close discards every workspace.
func (m *Manager) Close() {
	m.mu.Lock()
	all := m.workspaces
	m.workspaces = map[string]*Workspace{}
	m.mu.Unlock()
	for _, ws := range all {
		ws.Close()
	}
}
