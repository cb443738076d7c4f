package arcgis

import (
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// Channel names of the subsystem controllers.
const (
	GeometryEngineChannel        = "plugins.flutter.io/arcgis_channel/geometry_engine"
	CoordinateFormatterChannel   = "plugins.flutter.io/arcgis_channel/coordinate_formatter"
	NativeObjectsChannel         = "plugins.flutter.io/arcgis_channel/native_objects"
	ServiceTableChannel          = "plugins.flutter.io/service_table"
	AuthenticationManagerChannel = "plugins.flutter.io/arcgis_channel/authentication_manager"
)

// Controller is a subsystem that owns native resources and one channel.
// Name returns that channel's name. Dispose is called exactly once.
type Controller interface {
	Name() string
	Dispose() error
}

// attachContext carries what a controller needs to bind itself.
type attachContext struct {
	sessionID string
	messenger platform.Messenger
	codec     platform.MethodCodec
	executor  platform.Executor
	env       *sdk.Environment
	logger    *slog.Logger
	metrics   *Metrics
	opts      *Options
	// credentials is shared by the authentication manager and the
	// feature service token lookup.
	credentials *sdk.CredentialCache
	// views holds the ids of views created by this session's factories
	// and not yet disposed.
	views viewSet
}

type viewSet struct {
	mu  sync.Mutex
	ids map[int64]struct{}
}

func (s *viewSet) add(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ids == nil {
		s.ids = make(map[int64]struct{})
	}
	s.ids[id] = struct{}{}
}

func (s *viewSet) remove(id int64) {
	s.mu.Lock()
	delete(s.ids, id)
	s.mu.Unlock()
}

// sorted returns the live ids in ascending order.
func (s *viewSet) sorted() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.ids))
}

// channel opens a method channel on the session's messenger.
func (c *attachContext) channel(name string) *platform.MethodChannel {
	return platform.NewMethodChannelWithCodec(c.messenger, name, c.codec)
}

// serve installs handler on ch, recording each call's outcome.
func (c *attachContext) serve(ch *platform.MethodChannel, handler platform.MethodCallHandler) {
	name := ch.Name()
	metrics := c.metrics
	ch.SetMethodCallHandler(func(call platform.MethodCall, result platform.Result) {
		handler(call, &observedResult{Result: result, channel: name, method: call.Method, metrics: metrics})
	})
}

// constructor builds one controller for a session.
type constructor struct {
	name  string
	build func(ctx *attachContext) (Controller, error)
}

// defaultConstructors lists the controllers in attach order.
func defaultConstructors() []constructor {
	return []constructor{
		{name: GeometryEngineChannel, build: newGeometryEngineController},
		{name: CoordinateFormatterChannel, build: newCoordinateFormatterController},
		{name: NativeObjectsChannel, build: newNativeObjectsController},
		{name: ServiceTableChannel, build: newServiceTableController},
		{name: AuthenticationManagerChannel, build: newAuthenticationManagerController},
	}
}

// observedResult counts the first answer given to a call.
type observedResult struct {
	platform.Result
	channel string
	method  string
	metrics *Metrics
	seen    atomic.Bool
}

func (r *observedResult) observe(outcome string) {
	if r.seen.CompareAndSwap(false, true) {
		r.metrics.observeCall(r.channel, r.method, outcome)
	}
}

func (r *observedResult) Success(v any) {
	r.observe(OutcomeSuccess)
	r.Result.Success(v)
}

func (r *observedResult) Error(code, message string, details any) {
	r.observe(OutcomeError)
	r.Result.Error(code, message, details)
}

func (r *observedResult) NotImplemented() {
	r.observe(OutcomeNotImplemented)
	r.Result.NotImplemented()
}

func stringArg(call platform.MethodCall, key string) string {
	s, _ := call.Argument(key).(string)
	return s
}

// post hands fn to the host executor. A callback the executor refuses is
// dropped, never run on the calling worker; calls left pending are
// answered by Dispose.
func (c *attachContext) post(fn func()) {
	if !c.executor.Post(fn) {
		c.logger.Debug("executor stopped, dropping completion")
	}
}
