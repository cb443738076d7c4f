// Package arcgis bridges the mapping SDK to a message-channel host. The
// Plugin attaches a fixed set of subsystem controllers to an engine,
// serves SDK environment calls on the main channel and registers the map
// and scene view factories.
package arcgis

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// Fixed identifiers exposed to the host.
const (
	ChannelName   = "plugins.flutter.io/arcgis_channel"
	ViewTypeMap   = "plugins.flutter.io/arcgis_maps"
	ViewTypeScene = "plugins.flutter.io/arcgis_scene"
)

const (
	defaultQueryWorkers = 8
	defaultQueryTimeout = 30 * time.Second
)

// Options configures a Plugin. The zero value is usable.
type Options struct {
	// Environment is the SDK state served by the main channel.
	// Nil creates a fresh environment.
	Environment *sdk.Environment
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *Metrics
	// Codec defaults to platform.JSONMethodCodec.
	Codec platform.MethodCodec
	// FeatureService backs the service table controller and feature
	// table native objects. Nil uses sdk.RESTFeatureService, sending the
	// stored credential token or the API key with each request.
	FeatureService sdk.FeatureService
	// NativeObjects creates objects for createNativeObject.
	// Nil uses DefaultNativeObjectFactory.
	NativeObjects NativeObjectFactory
	// QueryWorkers bounds concurrent service table queries.
	QueryWorkers int
	// QueryTimeout bounds one service table query.
	QueryTimeout time.Duration
}

// Plugin is the lifecycle coordinator. It implements platform.Plugin and
// platform.ActivityAware, and must be driven from the host's
// serialization point.
type Plugin struct {
	opts         Options
	env          *sdk.Environment
	logger       *slog.Logger
	metrics      *Metrics
	constructors []constructor

	binding   *platform.EngineBinding
	session   *session
	lifecycle platform.LifecycleOwner
}

// New creates a detached plugin.
func New(opts Options) *Plugin {
	if opts.Environment == nil {
		opts.Environment = sdk.NewEnvironment()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Codec == nil {
		opts.Codec = platform.JSONMethodCodec
	}
	if opts.QueryWorkers <= 0 {
		opts.QueryWorkers = defaultQueryWorkers
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}
	return &Plugin{
		opts:         opts,
		env:          opts.Environment,
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		constructors: defaultConstructors(),
	}
}

// Environment returns the SDK environment the plugin serves.
func (p *Plugin) Environment() *sdk.Environment {
	return p.env
}

// Attached reports whether a session is live.
func (p *Plugin) Attached() bool {
	return p.session != nil
}

// SessionID returns the live session's id, or "".
func (p *Plugin) SessionID() string {
	if p.session == nil {
		return ""
	}
	return p.session.id
}

// Controllers returns the live controllers in attach order.
func (p *Plugin) Controllers() []Controller {
	if p.session == nil {
		return nil
	}
	out := make([]Controller, len(p.session.controllers))
	copy(out, p.session.controllers)
	return out
}

// Lifecycle returns the current host UI lifecycle owner, or nil.
func (p *Plugin) Lifecycle() platform.LifecycleOwner {
	return p.lifecycle
}

// OnAttachedToEngine registers the view factories, installs the main
// channel dispatcher and builds the controllers. On failure everything
// done so far is undone and the plugin stays detached.
func (p *Plugin) OnAttachedToEngine(binding *platform.EngineBinding) error {
	if p.session != nil {
		return platform.ErrAlreadyAttached
	}

	id := uuid.NewString()
	logger := p.logger.With("session_id", id)
	ctx := &attachContext{
		sessionID:   id,
		messenger:   binding.Messenger,
		codec:       p.opts.Codec,
		executor:    binding.Executor,
		env:         p.env,
		logger:      logger,
		metrics:     p.metrics,
		opts:        &p.opts,
		credentials: sdk.NewCredentialCache(),
	}
	if ctx.executor == nil {
		ctx.executor = platform.InlineExecutor
	}

	factories := []*viewFactory{
		newViewFactory(ViewTypeMap, ctx, p.Lifecycle, newMapView),
		newViewFactory(ViewTypeScene, ctx, p.Lifecycle, newSceneView),
	}
	var registered []string
	unregister := func() {
		for _, viewType := range registered {
			binding.Views.UnregisterViewFactory(viewType)
		}
	}
	for _, f := range factories {
		if !binding.Views.RegisterViewFactory(f.viewType, f) {
			unregister()
			return fmt.Errorf("register view factory %s: already registered", f.viewType)
		}
		registered = append(registered, f.viewType)
	}

	mainChannel := ctx.channel(ChannelName)
	ctx.serve(mainChannel, newDispatcher(p.env, logger).handle)

	controllers, err := buildControllers(ctx, p.constructors)
	if err != nil {
		mainChannel.SetMethodCallHandler(nil)
		unregister()
		logger.Error("attach failed", "error", err)
		return err
	}

	p.binding = binding
	p.session = &session{
		id:          id,
		ctx:         ctx,
		mainChannel: mainChannel,
		controllers: controllers,
		registry:    binding.Views,
	}
	p.metrics.sessionAttached()
	logger.Info("plugin attached", "controllers", len(controllers))
	return nil
}

// OnDetachedFromEngine uninstalls the main channel and disposes the
// session's views and every controller. Dispose failures are reported and never abort the detach.
// Detaching a detached plugin is a no-op.
func (p *Plugin) OnDetachedFromEngine(binding *platform.EngineBinding) {
	s := p.session
	if s == nil {
		p.logger.Warn("detach without an attached session")
		return
	}
	p.session = nil

	failures := s.close()
	if binding == nil {
		binding = p.binding
	}
	binding.Views.UnregisterViewFactory(ViewTypeMap)
	binding.Views.UnregisterViewFactory(ViewTypeScene)
	p.binding = nil
	p.metrics.sessionDetached()
	s.ctx.logger.Info("plugin detached", "dispose_failures", failures)
}

// OnAttachedToActivity records the host UI lifecycle owner.
func (p *Plugin) OnAttachedToActivity(binding *platform.ActivityBinding) {
	p.setLifecycle(binding)
}

// OnDetachedFromActivityForConfigChanges keeps the lifecycle owner; a
// reattach is expected to follow.
func (p *Plugin) OnDetachedFromActivityForConfigChanges() {}

// OnReattachedToActivityForConfigChanges records the new lifecycle owner.
func (p *Plugin) OnReattachedToActivityForConfigChanges(binding *platform.ActivityBinding) {
	p.setLifecycle(binding)
}

// OnDetachedFromActivity clears the lifecycle owner.
func (p *Plugin) OnDetachedFromActivity() {
	p.lifecycle = nil
}

func (p *Plugin) setLifecycle(binding *platform.ActivityBinding) {
	if binding == nil {
		p.lifecycle = nil
		return
	}
	p.lifecycle = binding.Lifecycle
}

// featureService returns the configured backend, or a REST backend that
// authenticates with the session's credentials.
func (c *attachContext) featureService() sdk.FeatureService {
	if c.opts.FeatureService != nil {
		return c.opts.FeatureService
	}
	return &sdk.RESTFeatureService{
		Client:      &http.Client{Timeout: c.opts.QueryTimeout},
		Credentials: c.credentials,
		APIKey:      c.env.APIKey,
	}
}

var (
	_ platform.Plugin        = (*Plugin)(nil)
	_ platform.ActivityAware = (*Plugin)(nil)
)
