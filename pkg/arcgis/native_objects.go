package arcgis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// NativeObject is an object the host creates and addresses by id.
type NativeObject interface {
	ID() string
	Type() string
	// HandleMessage answers a sendMessage call. It may answer later from
	// another goroutine.
	HandleMessage(method string, args any, result platform.Result)
	Dispose()
}

// NativeObjectEnv is what a NativeObjectFactory hands to new objects.
type NativeObjectEnv struct {
	// Emit pushes a messageNativeObject event for the object to the host.
	Emit func(objectID, method string, args any)
	// Post runs a callback on the host serialization point.
	Post           func(func())
	FeatureService sdk.FeatureService
	Logger         *slog.Logger
}

// NativeObjectFactory creates native objects by type name.
type NativeObjectFactory interface {
	CreateNativeObject(objectID, objectType string, args map[string]any, env NativeObjectEnv) (NativeObject, error)
}

// ErrUnknownObjectType is returned for types a factory cannot create.
var ErrUnknownObjectType = fmt.Errorf("%w: unknown native object type", platform.ErrInvalidArguments)

// DefaultNativeObjectFactory creates the object types the bridge ships
// with. Only ServiceFeatureTable is supported.
type DefaultNativeObjectFactory struct{}

// CreateNativeObject implements NativeObjectFactory.
func (DefaultNativeObjectFactory) CreateNativeObject(objectID, objectType string, args map[string]any, env NativeObjectEnv) (NativeObject, error) {
	switch objectType {
	case "ServiceFeatureTable":
		return newServiceFeatureTableObject(objectID, args, env)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownObjectType, objectType)
	}
}

// NativeObjectsController manages the host's native objects.
type NativeObjectsController struct {
	ctx     *attachContext
	channel *platform.MethodChannel
	factory NativeObjectFactory

	mu      sync.Mutex
	objects map[string]NativeObject
}

func newNativeObjectsController(ctx *attachContext) (Controller, error) {
	factory := ctx.opts.NativeObjects
	if factory == nil {
		factory = DefaultNativeObjectFactory{}
	}
	c := &NativeObjectsController{
		ctx:     ctx,
		channel: ctx.channel(NativeObjectsChannel),
		factory: factory,
		objects: make(map[string]NativeObject),
	}
	ctx.serve(c.channel, c.handleMethodCall)
	return c, nil
}

// Name implements Controller.
func (c *NativeObjectsController) Name() string { return NativeObjectsChannel }

// Len returns the number of live objects.
func (c *NativeObjectsController) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.objects)
}

// Dispose uninstalls the channel and destroys every live object.
func (c *NativeObjectsController) Dispose() error {
	c.channel.SetMethodCallHandler(nil)
	c.mu.Lock()
	objects := c.objects
	c.objects = make(map[string]NativeObject)
	c.mu.Unlock()
	for _, obj := range objects {
		obj.Dispose()
	}
	return nil
}

func (c *NativeObjectsController) handleMethodCall(call platform.MethodCall, result platform.Result) {
	switch call.Method {
	case "createNativeObject":
		id, err := c.create(call)
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		result.Success(id)

	case "destroyNativeObject":
		id := stringArg(call, "objectId")
		c.mu.Lock()
		obj, ok := c.objects[id]
		delete(c.objects, id)
		c.mu.Unlock()
		if ok {
			obj.Dispose()
		} else {
			c.ctx.logger.Debug("destroy of unknown native object", "object_id", id)
		}
		result.Success(nil)

	case "sendMessage":
		id := stringArg(call, "objectId")
		c.mu.Lock()
		obj, ok := c.objects[id]
		c.mu.Unlock()
		if !ok {
			result.Error("object_not_found", fmt.Sprintf("native object %q not found", id), nil)
			return
		}
		method := stringArg(call, "method")
		if method == "" {
			result.Error(platform.CodeInvalidArgs, "sendMessage requires method", nil)
			return
		}
		obj.HandleMessage(method, call.Argument("arguments"), result)

	default:
		result.NotImplemented()
	}
}

func (c *NativeObjectsController) create(call platform.MethodCall) (string, error) {
	objectType := stringArg(call, "type")
	if objectType == "" {
		return "", platform.InvalidArgs("createNativeObject requires type")
	}
	id := stringArg(call, "objectId")
	if id == "" {
		id = uuid.NewString()
	}

	c.mu.Lock()
	_, exists := c.objects[id]
	c.mu.Unlock()
	if exists {
		return "", platform.NewChannelError("object_exists", fmt.Sprintf("native object %q already exists", id))
	}

	obj, err := c.factory.CreateNativeObject(id, objectType, platform.AsMap(call.Argument("arguments")), NativeObjectEnv{
		Emit:           c.emit,
		Post:           c.ctx.post,
		FeatureService: c.ctx.featureService(),
		Logger:         c.ctx.logger.With("object_id", id),
	})
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.objects[id] = obj
	c.mu.Unlock()
	return id, nil
}

// emit sends messageNativeObject to the host on the serialization point.
func (c *NativeObjectsController) emit(objectID, method string, args any) {
	c.ctx.post(func() {
		c.channel.InvokeMethod("messageNativeObject", map[string]any{
			"objectId":  objectID,
			"method":    method,
			"arguments": args,
		}, nil)
	})
}

// serviceFeatureTableObject is a feature table addressed by URL.
type serviceFeatureTableObject struct {
	id      string
	url     string
	env     NativeObjectEnv
	ctx     context.Context
	cancel  context.CancelFunc
	pending sync.WaitGroup
}

func newServiceFeatureTableObject(id string, args map[string]any, env NativeObjectEnv) (NativeObject, error) {
	url, _ := args["url"].(string)
	if url == "" {
		return nil, platform.InvalidArgs("ServiceFeatureTable requires url")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &serviceFeatureTableObject{id: id, url: url, env: env, ctx: ctx, cancel: cancel}, nil
}

func (o *serviceFeatureTableObject) ID() string   { return o.id }
func (o *serviceFeatureTableObject) Type() string { return "ServiceFeatureTable" }

func (o *serviceFeatureTableObject) HandleMessage(method string, args any, result platform.Result) {
	switch method {
	case "getUrl":
		result.Success(o.url)

	case "queryFeatureCount":
		q, err := parseQueryParameters(platform.AsMap(platform.AsMap(args)["queryParameters"]))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		o.pending.Add(1)
		go func() {
			defer o.pending.Done()
			count, err := o.env.FeatureService.QueryFeatureCount(o.ctx, o.url, q)
			o.env.Post(func() {
				switch {
				case o.ctx.Err() != nil:
					result.Error(platform.CodeDisposed, "feature table disposed", nil)
				case err != nil:
					o.env.Emit(o.id, "onError", err.Error())
					platform.ReplyError(result, err)
				default:
					result.Success(count)
				}
			})
		}()

	default:
		result.NotImplemented()
	}
}

// Dispose cancels in-flight queries and waits for them to finish.
func (o *serviceFeatureTableObject) Dispose() {
	o.cancel()
	o.pending.Wait()
}
