package platform

import (
	"sync"
)

// LifecycleState represents the state of the host's UI lifecycle owner.
type LifecycleState string

const (
	// LifecycleStateResumed indicates the UI is visible and responding to user input.
	LifecycleStateResumed LifecycleState = "resumed"

	// LifecycleStateInactive indicates the UI is transitioning (e.g., a system dialog is shown).
	LifecycleStateInactive LifecycleState = "inactive"

	// LifecycleStatePaused indicates the UI is not visible but still running.
	LifecycleStatePaused LifecycleState = "paused"

	// LifecycleStateDetached indicates the host is alive but has no UI attached.
	LifecycleStateDetached LifecycleState = "detached"
)

// ParseLifecycleState maps a wire string to a LifecycleState.
func ParseLifecycleState(s string) (LifecycleState, bool) {
	switch state := LifecycleState(s); state {
	case LifecycleStateResumed, LifecycleStateInactive, LifecycleStatePaused, LifecycleStateDetached:
		return state, true
	default:
		return "", false
	}
}

// LifecycleHandler is called when lifecycle state changes.
type LifecycleHandler func(state LifecycleState)

// LifecycleOwner is the opaque handle to the host's UI lifecycle that
// views observe.
type LifecycleOwner interface {
	State() LifecycleState
	// AddHandler registers a handler and returns a function removing it.
	AddHandler(handler LifecycleHandler) func()
}

// LifecycleService is the host-side LifecycleOwner implementation.
type LifecycleService struct {
	state    LifecycleState
	handlers map[int]LifecycleHandler
	nextID   int
	mu       sync.RWMutex
}

// NewLifecycleService creates a lifecycle owner starting in initial.
func NewLifecycleService(initial LifecycleState) *LifecycleService {
	return &LifecycleService{
		state:    initial,
		handlers: make(map[int]LifecycleHandler),
	}
}

// State returns the current lifecycle state.
func (l *LifecycleService) State() LifecycleState {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// AddHandler registers a handler to be called on lifecycle changes.
// Returns a function that can be called to remove the handler.
func (l *LifecycleService) AddHandler(handler LifecycleHandler) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}
}

// HandlerCount returns the number of registered handlers.
func (l *LifecycleService) HandlerCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.handlers)
}

// IsResumed returns true if the owner is in the resumed state.
func (l *LifecycleService) IsResumed() bool {
	return l.State() == LifecycleStateResumed
}

// IsPaused returns true if the owner is paused.
func (l *LifecycleService) IsPaused() bool {
	return l.State() == LifecycleStatePaused
}

// UpdateState moves the owner to newState and notifies handlers.
func (l *LifecycleService) UpdateState(newState LifecycleState) {
	l.mu.Lock()
	if l.state == newState {
		l.mu.Unlock()
		return
	}
	l.state = newState
	handlers := make([]LifecycleHandler, 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()

	for _, h := range handlers {
		h(newState)
	}
}
