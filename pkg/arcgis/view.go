package arcgis

import (
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// viewBase holds what map and scene views share: identity, channel and
// the paused flag driven by the host lifecycle.
type viewBase struct {
	id       int64
	viewType string
	channel  *platform.MethodChannel
	logger   *slog.Logger
	metrics  *Metrics

	paused      atomic.Bool
	disposed    atomic.Bool
	unsubscribe func()
	// release drops the view from its session.
	release func()
}

// ViewID implements platform.PlatformView.
func (v *viewBase) ViewID() int64 { return v.id }

// ViewType implements platform.PlatformView.
func (v *viewBase) ViewType() string { return v.viewType }

// IsPaused reports whether the host lifecycle last moved to paused or
// detached.
func (v *viewBase) IsPaused() bool { return v.paused.Load() }

// Disposed reports whether Dispose has run.
func (v *viewBase) Disposed() bool { return v.disposed.Load() }

func (v *viewBase) observe(owner platform.LifecycleOwner) {
	if owner == nil {
		return
	}
	v.onLifecycle(owner.State())
	v.unsubscribe = owner.AddHandler(v.onLifecycle)
}

func (v *viewBase) onLifecycle(state platform.LifecycleState) {
	switch state {
	case platform.LifecycleStatePaused, platform.LifecycleStateDetached:
		v.paused.Store(true)
	case platform.LifecycleStateResumed:
		v.paused.Store(false)
	}
}

// Dispose implements platform.PlatformView. Later calls do nothing.
func (v *viewBase) Dispose() {
	if !v.disposed.CompareAndSwap(false, true) {
		return
	}
	v.channel.SetMethodCallHandler(nil)
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
	if v.release != nil {
		v.release()
	}
	v.metrics.viewDisposed(v.viewType)
	v.logger.Debug("view disposed")
}

// MapView is a 2D map view.
type MapView struct {
	*viewBase

	mu        sync.Mutex
	options   map[string]any
	viewpoint map[string]any
}

func newMapView(base *viewBase, params map[string]any) (nativeView, error) {
	v := &MapView{viewBase: base, options: map[string]any{}}
	maps.Copy(v.options, platform.AsMap(params["options"]))
	if vp, ok := params["viewpoint"]; ok && vp != nil {
		viewpoint, err := parseViewpoint(vp)
		if err != nil {
			return nil, err
		}
		v.viewpoint = viewpoint
	}
	return v, nil
}

// Options returns a copy of the merged map options.
func (v *MapView) Options() map[string]any {
	v.mu.Lock()
	defer v.mu.Unlock()
	return maps.Clone(v.options)
}

func (v *MapView) handle(call platform.MethodCall, result platform.Result) {
	switch call.Method {
	case "map#waitForMap":
		result.Success(nil)

	case "map#update":
		v.mu.Lock()
		maps.Copy(v.options, platform.AsMap(call.Argument("options")))
		v.mu.Unlock()
		result.Success(nil)

	case "map#setViewpoint":
		viewpoint, err := parseViewpoint(call.Argument("viewpoint"))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		v.mu.Lock()
		v.viewpoint = viewpoint
		v.mu.Unlock()
		result.Success(nil)

	case "map#getCurrentViewpoint":
		v.mu.Lock()
		viewpoint := maps.Clone(v.viewpoint)
		v.mu.Unlock()
		result.Success(viewpoint)

	case "map#isPaused":
		result.Success(v.IsPaused())

	default:
		result.NotImplemented()
	}
}

// parseViewpoint accepts a viewpoint map whose targetGeometry, when
// present, is a valid geometry.
func parseViewpoint(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, platform.InvalidArgs("viewpoint must be a map")
	}
	if target, ok := m["targetGeometry"]; ok {
		if _, err := sdk.ParseGeometry(target); err != nil {
			return nil, platform.InvalidArgs("viewpoint targetGeometry: %v", err)
		}
	}
	return maps.Clone(m), nil
}

// SceneView is a 3D scene view.
type SceneView struct {
	*viewBase

	mu      sync.Mutex
	options map[string]any
	camera  map[string]any
}

func newSceneView(base *viewBase, params map[string]any) (nativeView, error) {
	v := &SceneView{viewBase: base, options: map[string]any{}}
	maps.Copy(v.options, platform.AsMap(params["options"]))
	if c, ok := params["camera"]; ok && c != nil {
		camera, err := parseCamera(c)
		if err != nil {
			return nil, err
		}
		v.camera = camera
	}
	return v, nil
}

func (v *SceneView) handle(call platform.MethodCall, result platform.Result) {
	switch call.Method {
	case "sceneView#waitForScene":
		result.Success(nil)

	case "sceneView#update":
		v.mu.Lock()
		maps.Copy(v.options, platform.AsMap(call.Argument("options")))
		v.mu.Unlock()
		result.Success(nil)

	case "sceneView#setViewpointCamera":
		camera, err := parseCamera(call.Argument("camera"))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		v.mu.Lock()
		v.camera = camera
		v.mu.Unlock()
		result.Success(nil)

	case "sceneView#getCamera":
		v.mu.Lock()
		camera := maps.Clone(v.camera)
		v.mu.Unlock()
		result.Success(camera)

	default:
		result.NotImplemented()
	}
}

// parseCamera normalizes a camera map: a location point plus heading,
// pitch and roll in degrees, which default to zero.
func parseCamera(v any) (map[string]any, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, platform.InvalidArgs("camera must be a map")
	}
	location, err := sdk.ParsePoint(m["location"])
	if err != nil {
		return nil, platform.InvalidArgs("camera location: %v", err)
	}
	camera := map[string]any{"location": location.ToMap()}
	for _, key := range []string{"heading", "pitch", "roll"} {
		angle := 0.0
		if raw, ok := m[key]; ok {
			if angle, ok = platform.AsFloat64(raw); !ok {
				return nil, platform.InvalidArgs("camera %s must be a number", key)
			}
		}
		camera[key] = angle
	}
	return camera, nil
}
