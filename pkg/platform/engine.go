package platform

import (
	"fmt"

	"github.com/go-drift/arcgis/pkg/errors"
)

// EngineBinding is what a plugin receives when it attaches to an engine.
type EngineBinding struct {
	// Messenger carries channel traffic to and from the host.
	Messenger Messenger
	// Views is the host's platform view registry.
	Views *ViewRegistry
	// Executor posts work back onto the host's serialization point.
	Executor Executor
}

// ActivityBinding is what an ActivityAware plugin receives when a host UI
// attaches.
type ActivityBinding struct {
	// Lifecycle is the UI lifecycle owner. It is passed through to views.
	Lifecycle LifecycleOwner
}

// Plugin is a unit attached to and detached from an engine.
type Plugin interface {
	OnAttachedToEngine(binding *EngineBinding) error
	OnDetachedFromEngine(binding *EngineBinding)
}

// ActivityAware is implemented by plugins that track the host UI.
type ActivityAware interface {
	OnAttachedToActivity(binding *ActivityBinding)
	OnDetachedFromActivityForConfigChanges()
	OnReattachedToActivityForConfigChanges(binding *ActivityBinding)
	OnDetachedFromActivity()
}

// Engine plays the host side of the bridge: it owns the messenger and
// view registry, attaches plugins and forwards activity transitions.
//
// Engine methods must be called from the host's serialization point.
// They do no locking of their own.
type Engine struct {
	messenger *LocalMessenger
	views     *ViewRegistry
	executor  Executor
	binding   *EngineBinding
	plugins   []Plugin
	activity  *ActivityBinding
}

// NewEngine creates an engine whose outgoing messages go to sink and
// whose deferred work is posted through executor. A nil executor runs
// callbacks inline.
func NewEngine(sink HostSink, executor Executor) *Engine {
	if executor == nil {
		executor = InlineExecutor
	}
	messenger := NewLocalMessenger(sink)
	e := &Engine{
		messenger: messenger,
		views:     NewViewRegistry(messenger),
		executor:  executor,
	}
	e.binding = &EngineBinding{
		Messenger: messenger,
		Views:     e.views,
		Executor:  executor,
	}
	return e
}

// Messenger returns the engine's messenger.
func (e *Engine) Messenger() *LocalMessenger {
	return e.messenger
}

// Views returns the engine's view registry.
func (e *Engine) Views() *ViewRegistry {
	return e.views
}

// Binding returns the binding handed to plugins.
func (e *Engine) Binding() *EngineBinding {
	return e.binding
}

// Activity returns the current activity binding, or nil.
func (e *Engine) Activity() *ActivityBinding {
	return e.activity
}

// AddPlugin attaches p. If an activity is attached and p is ActivityAware,
// p is attached to it too.
func (e *Engine) AddPlugin(p Plugin) error {
	for _, existing := range e.plugins {
		if existing == p {
			return ErrAlreadyAttached
		}
	}
	if err := p.OnAttachedToEngine(e.binding); err != nil {
		errors.Report(&errors.BridgeError{
			Op:   "engine.AddPlugin",
			Kind: errors.KindAttach,
			Err:  err,
		})
		return fmt.Errorf("attach plugin %T: %w", p, err)
	}
	e.plugins = append(e.plugins, p)
	if aware, ok := p.(ActivityAware); ok && e.activity != nil {
		aware.OnAttachedToActivity(e.activity)
	}
	return nil
}

// RemovePlugin detaches p. It returns false if p was not attached.
func (e *Engine) RemovePlugin(p Plugin) bool {
	for i, existing := range e.plugins {
		if existing != p {
			continue
		}
		if aware, ok := p.(ActivityAware); ok && e.activity != nil {
			aware.OnDetachedFromActivity()
		}
		e.plugins = append(e.plugins[:i], e.plugins[i+1:]...)
		e.detach(p)
		return true
	}
	return false
}

func (e *Engine) detach(p Plugin) {
	defer errors.Recover("engine.detachPlugin")
	p.OnDetachedFromEngine(e.binding)
}

// AttachActivity attaches a host UI.
func (e *Engine) AttachActivity(binding *ActivityBinding) {
	e.activity = binding
	e.eachActivityAware(func(a ActivityAware) { a.OnAttachedToActivity(binding) })
}

// DetachActivityForConfigChanges starts a transient UI teardown that is
// expected to be followed by ReattachActivity.
func (e *Engine) DetachActivityForConfigChanges() {
	e.eachActivityAware(func(a ActivityAware) { a.OnDetachedFromActivityForConfigChanges() })
}

// ReattachActivity completes a config-change teardown.
func (e *Engine) ReattachActivity(binding *ActivityBinding) {
	e.activity = binding
	e.eachActivityAware(func(a ActivityAware) { a.OnReattachedToActivityForConfigChanges(binding) })
}

// DetachActivity detaches the host UI for good.
func (e *Engine) DetachActivity() {
	e.activity = nil
	e.eachActivityAware(func(a ActivityAware) { a.OnDetachedFromActivity() })
}

func (e *Engine) eachActivityAware(fn func(ActivityAware)) {
	for _, p := range e.plugins {
		if aware, ok := p.(ActivityAware); ok {
			fn(aware)
		}
	}
}

// Destroy detaches the activity, disposes live views and detaches every
// plugin in reverse attach order.
func (e *Engine) Destroy() {
	if e.activity != nil {
		e.DetachActivity()
	}
	e.views.DisposeAll()
	for i := len(e.plugins) - 1; i >= 0; i-- {
		e.detach(e.plugins[i])
	}
	e.plugins = nil
}
