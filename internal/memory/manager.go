// Package memory keeps per-tenant conversation transcripts in process
// memory with idle-based eviction. State lives in an injected Manager, not
// package globals, so tests can run managers side by side.
package memory

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cortexa-labs/ragserve/internal/domain"
)

// tenantMemory is one tenant's transcript plus its eviction bookkeeping.
// gen invalidates scheduled evictions: a timer that fires with a stale
// generation is a no-op.
type tenantMemory struct {
	mu    sync.Mutex
	msgs  []domain.Message
	gen   uint64
	timer *time.Timer
}

// Manager is the tenant-state registry for conversational memory.
type Manager struct {
	mu      sync.Mutex
	tenants map[string]*tenantMemory
	idleTTL time.Duration
	logger  *zap.Logger
}

// New creates a memory manager evicting tenants idle longer than idleTTL.
func New(idleTTL time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		tenants: make(map[string]*tenantMemory),
		idleTTL: idleTTL,
		logger:  logger,
	}
}

// Append adds messages to a tenant's transcript, creating the tenant's
// state on first use. Any append counts as activity and re-arms the idle
// eviction timer.
func (m *Manager) Append(tenantID string, msgs ...domain.Message) {
	if len(msgs) == 0 {
		return
	}
	tm := m.getOrCreate(tenantID)

	tm.mu.Lock()
	tm.msgs = append(tm.msgs, msgs...)
	m.rearmLocked(tenantID, tm)
	tm.mu.Unlock()
}

// History returns a copy of the tenant's transcript in order. A tenant with
// no state returns ErrNoHistory.
func (m *Manager) History(tenantID string) ([]domain.Message, error) {
	m.mu.Lock()
	tm, ok := m.tenants[tenantID]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrNoHistory
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()
	out := make([]domain.Message, len(tm.msgs))
	copy(out, tm.msgs)
	return out, nil
}

// Clear drops a tenant's transcript and cancels its eviction timer.
// Clearing an absent tenant is a no-op.
func (m *Manager) Clear(tenantID string) {
	m.mu.Lock()
	tm, ok := m.tenants[tenantID]
	delete(m.tenants, tenantID)
	m.mu.Unlock()
	if !ok {
		return
	}

	tm.mu.Lock()
	tm.gen++
	if tm.timer != nil {
		tm.timer.Stop()
		tm.timer = nil
	}
	tm.msgs = nil
	tm.mu.Unlock()

	m.logger.Debug("conversation memory cleared", zap.String("tenant_id", tenantID))
}

// ArmEviction refreshes the tenant's idle timer: the previous schedule is
// cancelled and a new one starts counting from now. Arming an absent
// tenant is a no-op.
func (m *Manager) ArmEviction(tenantID string) {
	m.mu.Lock()
	tm, ok := m.tenants[tenantID]
	m.mu.Unlock()
	if !ok {
		return
	}

	tm.mu.Lock()
	m.rearmLocked(tenantID, tm)
	tm.mu.Unlock()
}

// Len reports how many tenants currently hold state.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tenants)
}

func (m *Manager) getOrCreate(tenantID string) *tenantMemory {
	m.mu.Lock()
	defer m.mu.Unlock()
	tm, ok := m.tenants[tenantID]
	if !ok {
		tm = &tenantMemory{}
		m.tenants[tenantID] = tm
	}
	return tm
}

// rearmLocked bumps the generation and schedules a fresh eviction. Caller
// holds tm.mu.
func (m *Manager) rearmLocked(tenantID string, tm *tenantMemory) {
	tm.gen++
	gen := tm.gen
	if tm.timer != nil {
		tm.timer.Stop()
	}
	tm.timer = time.AfterFunc(m.idleTTL, func() {
		m.evict(tenantID, gen)
	})
}

// evict removes a tenant whose idle timer fired, unless activity has bumped
// the generation since the timer was armed.
func (m *Manager) evict(tenantID string, gen uint64) {
	m.mu.Lock()
	tm, ok := m.tenants[tenantID]
	if !ok {
		m.mu.Unlock()
		return
	}

	tm.mu.Lock()
	if tm.gen != gen {
		tm.mu.Unlock()
		m.mu.Unlock()
		return
	}
	delete(m.tenants, tenantID)
	tm.msgs = nil
	tm.timer = nil
	tm.mu.Unlock()
	m.mu.Unlock()

	m.logger.Info("idle conversation memory evicted",
		zap.String("tenant_id", tenantID),
		zap.Duration("idle_ttl", m.idleTTL),
	)
}
