package platform

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/go-drift/arcgis/pkg/errors"
)

// Result receives the outcome of one method call. Exactly one of its
// methods must be called, exactly once.
type Result interface {
	Success(result any)
	Error(code, message string, details any)
	NotImplemented()
}

// MethodCallHandler handles incoming method calls on a channel.
// It may answer synchronously or keep the Result and answer later from
// another goroutine.
type MethodCallHandler func(call MethodCall, result Result)

// SyncHandler adapts a function that answers in line.
// ErrMethodNotFound maps to NotImplemented, *ChannelError keeps its code,
// ErrInvalidArguments maps to invalid_args and other errors map to "error".
func SyncHandler(fn func(call MethodCall) (any, error)) MethodCallHandler {
	return func(call MethodCall, result Result) {
		v, err := fn(call)
		if err != nil {
			ReplyError(result, err)
			return
		}
		result.Success(v)
	}
}

// ReplyError answers result with the envelope matching err.
func ReplyError(result Result, err error) {
	var chErr *ChannelError
	switch {
	case stderrors.Is(err, ErrMethodNotFound):
		result.NotImplemented()
	case stderrors.As(err, &chErr):
		result.Error(chErr.Code, chErr.Message, chErr.Details)
	case stderrors.Is(err, ErrInvalidArguments):
		result.Error(CodeInvalidArgs, err.Error(), nil)
	default:
		result.Error(CodeError, err.Error(), nil)
	}
}

// MethodChannel provides method-call communication over a Messenger.
type MethodChannel struct {
	name      string
	messenger Messenger
	codec     MethodCodec
}

// NewMethodChannel creates a channel with the given name using JSONMethodCodec.
func NewMethodChannel(messenger Messenger, name string) *MethodChannel {
	return NewMethodChannelWithCodec(messenger, name, JSONMethodCodec)
}

// NewMethodChannelWithCodec creates a channel with an explicit method codec.
func NewMethodChannelWithCodec(messenger Messenger, name string, codec MethodCodec) *MethodChannel {
	return &MethodChannel{
		name:      name,
		messenger: messenger,
		codec:     codec,
	}
}

// Name returns the channel name.
func (c *MethodChannel) Name() string {
	return c.name
}

// Codec returns the channel's method codec.
func (c *MethodChannel) Codec() MethodCodec {
	return c.codec
}

// SetMethodCallHandler installs the handler for incoming calls.
// Passing nil uninstalls it; later messages on the channel are answered
// as not implemented by the messenger.
func (c *MethodChannel) SetMethodCallHandler(handler MethodCallHandler) {
	if handler == nil {
		c.messenger.SetMessageHandler(c.name, nil)
		return
	}
	c.messenger.SetMessageHandler(c.name, func(message []byte, reply Reply) {
		c.handleMessage(handler, message, reply)
	})
}

func (c *MethodChannel) handleMessage(handler MethodCallHandler, message []byte, reply Reply) {
	result := &replyResult{channel: c.name, codec: c.codec, reply: reply}

	call, err := c.codec.DecodeMethodCall(message)
	if err != nil {
		errors.Report(&errors.BridgeError{
			Op:      "platform.decodeMethodCall",
			Kind:    errors.KindParsing,
			Channel: c.name,
			Err:     err,
		})
		result.Error(CodeInvalidArgs, err.Error(), nil)
		return
	}
	result.method = call.Method

	defer errors.RecoverWithCallback("platform.handleMethodCall", func(r any) {
		result.Error(CodePanic, fmt.Sprint(r), nil)
	})
	handler(call, result)
}

// InvokeMethod sends a call toward the host. The callback, if any, gets
// the decoded result or error once the host replies.
func (c *MethodChannel) InvokeMethod(method string, args any, callback func(result any, err error)) {
	data, err := c.codec.EncodeMethodCall(MethodCall{Method: method, Arguments: args})
	if err != nil {
		if callback != nil {
			callback(nil, err)
		}
		return
	}
	var reply Reply
	if callback != nil {
		reply = func(response []byte) {
			callback(c.codec.DecodeEnvelope(response))
		}
	}
	c.messenger.Send(c.name, data, reply)
}

// replyResult encodes the outcome of one call into its reply.
type replyResult struct {
	channel string
	method  string
	codec   MethodCodec
	reply   Reply
	done    atomic.Bool
}

func (r *replyResult) claim() bool {
	if r.done.CompareAndSwap(false, true) {
		return true
	}
	r.report("platform.reply", ErrAlreadyReplied)
	return false
}

func (r *replyResult) report(op string, err error) {
	errors.Report(&errors.BridgeError{
		Op:      op,
		Kind:    errors.KindDispatch,
		Channel: r.channel,
		Method:  r.method,
		Err:     err,
	})
}

func (r *replyResult) send(data []byte) {
	if r.reply != nil {
		r.reply(data)
	}
}

func (r *replyResult) Success(result any) {
	if !r.claim() {
		return
	}
	data, err := r.codec.EncodeSuccessEnvelope(result)
	if err != nil {
		r.report("platform.encodeResult", err)
		data, _ = r.codec.EncodeErrorEnvelope(CodeError, err.Error(), nil)
	}
	r.send(data)
}

func (r *replyResult) Error(code, message string, details any) {
	if !r.claim() {
		return
	}
	data, err := r.codec.EncodeErrorEnvelope(code, message, details)
	if err != nil {
		r.report("platform.encodeError", err)
		data, _ = r.codec.EncodeErrorEnvelope(code, message, nil)
	}
	r.send(data)
}

func (r *replyResult) NotImplemented() {
	if !r.claim() {
		return
	}
	r.send(nil)
}
