package service

import (
	"context"
	"sync"
	"time"

	"github.com/Edric-Li/forguncy-arsenal-sub000/internal/apperr"
	"go.uber.org/zap"
)

// Automation is the capability surface of an out-of-process automation
// backend. One implementation exists per installed application; which one
// is used gets decided at startup by probing.
type Automation interface {
	Open(path string) error
	SaveAs(path, format string) error
	Close() error
	Quit() error
}

// AutomationFactory spawns a fresh automation instance. Spawning is
// expensive, which is the whole reason the pools below exist.
type AutomationFactory func() (Automation, error)

// Handle is one leased slot in an AutomationPool
type Handle struct {
	Automation
	inUse bool
}

// AutomationPool is a bounded, growable free list of automation
// instances. Lease hands out a free handle or grows the pool; Release
// returns a handle for reuse; Retire permanently drops a handle that
// errored mid-use so a poisoned instance is never leased again.
//
// Every Lease must be matched by exactly one Release or Retire, even on
// error. A leaked lease starves every future conversion of this family.
type AutomationPool struct {
	mu      sync.Mutex
	factory AutomationFactory
	handles []*Handle
	max     int // <= 0 means unbounded

	// signaled on Release/Retire so blocked leases can re-check
	freed chan struct{}
}

func NewAutomationPool(factory AutomationFactory, max int) *AutomationPool {
	return &AutomationPool{
		factory: factory,
		max:     max,
		freed:   make(chan struct{}, 1),
	}
}

func (p *AutomationPool) Lease(ctx context.Context) (*Handle, error) {
	for {
		p.mu.Lock()
		for _, h := range p.handles {
			if !h.inUse {
				h.inUse = true
				p.mu.Unlock()
				return h, nil
			}
		}

		if p.max <= 0 || len(p.handles) < p.max {
			h := &Handle{inUse: true}
			p.handles = append(p.handles, h)
			p.mu.Unlock()

			inst, err := p.factory()
			if err != nil {
				p.drop(h)
				return nil, apperr.Wrap(apperr.KindExternalFailure, "Failed to start automation instance", err)
			}
			h.Automation = inst
			return h, nil
		}
		p.mu.Unlock()

		select {
		case <-p.freed:
		case <-ctx.Done():
			return nil, apperr.Wrap(apperr.KindResourceExhausted, "Timed out waiting for an automation instance", ctx.Err())
		}
	}
}

func (p *AutomationPool) Release(h *Handle) {
	p.mu.Lock()
	h.inUse = false
	p.mu.Unlock()
	p.signal()
}

// Retire quits and drops a handle whose instance misbehaved. The
// converter that observed the failure is responsible for calling this,
// which is how the pool self-heals instead of reusing a broken instance.
func (p *AutomationPool) Retire(h *Handle) {
	if h.Automation != nil {
		if err := h.Quit(); err != nil {
			zap.L().Warn("Failed to quit retired automation instance", zap.Error(err))
		}
	}
	p.drop(h)
}

// Size reports how many handles the pool currently holds
func (p *AutomationPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.handles)
}

func (p *AutomationPool) drop(h *Handle) {
	p.mu.Lock()
	for i, cur := range p.handles {
		if cur == h {
			p.handles = append(p.handles[:i], p.handles[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.signal()
}

func (p *AutomationPool) signal() {
	select {
	case p.freed <- struct{}{}:
	default:
	}
}

// DefaultIdleTTL is how long a single-instance automation may sit unused
// before it is torn down to free system resources
const DefaultIdleTTL = 60 * time.Second

// SingleInstance guards one shared automation instance with a capacity-1
// lease. Releasing arms an idle timer; if nobody re-leases before it
// fires, the instance is quit. Re-leasing cancels the timer.
type SingleInstance struct {
	factory AutomationFactory
	idleTTL time.Duration

	token chan struct{} // capacity 1

	mu   sync.Mutex
	inst Automation
	idle *time.Timer
}

func NewSingleInstance(factory AutomationFactory, idleTTL time.Duration) *SingleInstance {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &SingleInstance{
		factory: factory,
		idleTTL: idleTTL,
		token:   make(chan struct{}, 1),
	}
}

func (s *SingleInstance) Lease(ctx context.Context) (Automation, error) {
	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		return nil, apperr.Wrap(apperr.KindResourceExhausted, "Timed out waiting for the automation instance", ctx.Err())
	}

	s.mu.Lock()
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
	if s.inst == nil {
		inst, err := s.factory()
		if err != nil {
			s.mu.Unlock()
			<-s.token
			return nil, apperr.Wrap(apperr.KindExternalFailure, "Failed to start automation instance", err)
		}
		s.inst = inst
	}
	inst := s.inst
	s.mu.Unlock()

	return inst, nil
}

func (s *SingleInstance) Release() {
	s.mu.Lock()
	s.idle = time.AfterFunc(s.idleTTL, s.evictIdle)
	s.mu.Unlock()
	<-s.token
}

// Retire tears the instance down immediately, used when it errored
// mid-conversion
func (s *SingleInstance) Retire() {
	s.mu.Lock()
	s.teardownLocked()
	s.mu.Unlock()
	<-s.token
}

func (s *SingleInstance) evictIdle() {
	// Skip eviction when the instance got re-leased between the timer
	// firing and us getting here
	select {
	case s.token <- struct{}{}:
	default:
		return
	}
	defer func() { <-s.token }()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inst != nil {
		zap.L().Debug("Evicting idle automation instance")
		s.teardownLocked()
	}
}

func (s *SingleInstance) teardownLocked() {
	if s.inst == nil {
		return
	}
	if err := s.inst.Quit(); err != nil {
		zap.L().Warn("Failed to quit automation instance", zap.Error(err))
	}
	s.inst = nil
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}
}
