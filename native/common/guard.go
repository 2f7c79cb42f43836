package common

import (
	"errors"
	"strings"
	"sync"
)

// ErrModulePaused is returned by guarded operations while their module is
// paused.
var ErrModulePaused = errors.New("module paused")

// PauseView reports whether a module is currently paused.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused in p. A nil view
// never pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// Pauses is a mutable PauseView keyed by module name.
type Pauses struct {
	mu      sync.RWMutex
	modules map[string]bool
}

// NewPauses seeds the view with the supplied module flags.
func NewPauses(initial map[string]bool) *Pauses {
	p := &Pauses{modules: make(map[string]bool, len(initial))}
	for module, paused := range initial {
		p.modules[normalizeModule(module)] = paused
	}
	return p
}

func (p *Pauses) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.modules[normalizeModule(module)]
}

// Set toggles the pause flag of module. lendingd exposes it through the
// owner-only PUT /v1/pauses/{module} route.
func (p *Pauses) Set(module string, paused bool) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.modules == nil {
		p.modules = make(map[string]bool)
	}
	p.modules[normalizeModule(module)] = paused
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
