package platform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/go-drift/arcgis/pkg/errors"
)

// PlatformViewsChannel carries view creation and disposal requests from the host.
const PlatformViewsChannel = "plugins.flutter.io/platform_views"

// PlatformView represents a native view embedded in the host UI.
type PlatformView interface {
	// ViewID returns the host-assigned identifier for this view.
	ViewID() int64

	// ViewType returns the type identifier the view was created under.
	ViewType() string

	// Dispose cleans up the native view.
	Dispose()
}

// PlatformViewFactory creates platform views of one type.
type PlatformViewFactory interface {
	// Create creates a new platform view instance.
	Create(viewID int64, params map[string]any) (PlatformView, error)
}

// ViewRegistry manages platform view factories and live view instances.
type ViewRegistry struct {
	factories map[string]PlatformViewFactory
	views     map[int64]PlatformView
	mu        sync.RWMutex
	channel   *MethodChannel
}

// NewViewRegistry creates a registry answering create/dispose requests
// on PlatformViewsChannel.
func NewViewRegistry(messenger Messenger) *ViewRegistry {
	r := &ViewRegistry{
		factories: make(map[string]PlatformViewFactory),
		views:     make(map[int64]PlatformView),
		channel:   NewMethodChannel(messenger, PlatformViewsChannel),
	}
	r.channel.SetMethodCallHandler(SyncHandler(r.handleMethodCall))
	return r
}

// RegisterViewFactory registers a factory for a view type. It returns
// false if the type already has a factory.
func (r *ViewRegistry) RegisterViewFactory(viewType string, factory PlatformViewFactory) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[viewType]; exists {
		return false
	}
	r.factories[viewType] = factory
	return true
}

// UnregisterViewFactory removes the factory for a view type.
func (r *ViewRegistry) UnregisterViewFactory(viewType string) {
	r.mu.Lock()
	delete(r.factories, viewType)
	r.mu.Unlock()
}

// HasFactory reports whether viewType has a registered factory.
func (r *ViewRegistry) HasFactory(viewType string) bool {
	r.mu.RLock()
	_, ok := r.factories[viewType]
	r.mu.RUnlock()
	return ok
}

// ViewTypes returns the registered view types, sorted.
func (r *ViewRegistry) ViewTypes() []string {
	r.mu.RLock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	r.mu.RUnlock()
	sort.Strings(types)
	return types
}

// Create creates a view of viewType under the host-assigned viewID.
func (r *ViewRegistry) Create(viewType string, viewID int64, params map[string]any) (PlatformView, error) {
	r.mu.RLock()
	factory, ok := r.factories[viewType]
	_, exists := r.views[viewID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewTypeNotFound, viewType)
	}
	if exists {
		return nil, NewChannelError("view_exists", fmt.Sprintf("view %d already exists", viewID))
	}

	view, err := factory.Create(viewID, params)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.views[viewID] = view
	r.mu.Unlock()
	return view, nil
}

// Dispose destroys a view. It returns false if no such view exists.
func (r *ViewRegistry) Dispose(viewID int64) bool {
	r.mu.Lock()
	view, ok := r.views[viewID]
	if ok {
		delete(r.views, viewID)
	}
	r.mu.Unlock()

	if ok {
		defer errors.Recover("platform.disposeView")
		view.Dispose()
	}
	return ok
}

// DisposeAll destroys every live view.
func (r *ViewRegistry) DisposeAll() {
	r.mu.RLock()
	ids := make([]int64, 0, len(r.views))
	for id := range r.views {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Dispose(id)
	}
}

// View returns a live view by ID.
func (r *ViewRegistry) View(viewID int64) PlatformView {
	r.mu.RLock()
	view := r.views[viewID]
	r.mu.RUnlock()
	return view
}

// Len returns the number of live views.
func (r *ViewRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.views)
}

// handleMethodCall processes create/dispose requests from the host.
func (r *ViewRegistry) handleMethodCall(call MethodCall) (any, error) {
	switch call.Method {
	case "create":
		viewType, ok := call.Argument("viewType").(string)
		if !ok {
			return nil, InvalidArgs("create requires viewType")
		}
		viewID, ok := AsInt64(call.Argument("id"))
		if !ok {
			return nil, InvalidArgs("create requires id")
		}
		params, _ := call.Argument("params").(map[string]any)
		if _, err := r.Create(viewType, viewID, params); err != nil {
			return nil, err
		}
		return viewID, nil

	case "dispose":
		viewID, ok := AsInt64(call.Argument("id"))
		if !ok {
			return nil, InvalidArgs("dispose requires id")
		}
		return r.Dispose(viewID), nil

	default:
		return nil, ErrMethodNotFound
	}
}
