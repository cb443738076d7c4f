// Package platform provides the message-channel plumbing between a host
// application and the native side of a bridge. It carries method calls,
// view creation requests and lifecycle transitions from the host into
// plugins and carries their results back.
package platform

import (
	"encoding/json"
	"errors"
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// MessageCodec encodes and decodes single values crossing a channel.
type MessageCodec interface {
	// Encode converts a Go value to bytes for transmission.
	Encode(value any) ([]byte, error)

	// Decode converts received bytes to a Go value.
	Decode(data []byte) (any, error)
}

// JsonCodec implements MessageCodec using JSON encoding.
// JSON prioritizes interoperability and minimal host dependencies.
type JsonCodec struct{}

// Encode serializes the value to JSON bytes.
func (c JsonCodec) Encode(value any) ([]byte, error) {
	return json.Marshal(value)
}

// Decode deserializes JSON bytes to a Go value.
func (c JsonCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// ProtoCodec implements MessageCodec on top of google.protobuf.Value.
// Values are normalized to the JSON data model before encoding, so a
// payload decodes to the same Go shapes under either codec.
type ProtoCodec struct{}

// Encode serializes the value as a binary google.protobuf.Value.
func (c ProtoCodec) Encode(value any) ([]byte, error) {
	normalized, err := normalize(value)
	if err != nil {
		return nil, err
	}
	pv, err := structpb.NewValue(normalized)
	if err != nil {
		return nil, fmt.Errorf("proto codec: %w", err)
	}
	return proto.Marshal(pv)
}

// Decode deserializes a binary google.protobuf.Value.
func (c ProtoCodec) Decode(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var pv structpb.Value
	if err := proto.Unmarshal(data, &pv); err != nil {
		return nil, fmt.Errorf("proto codec: %w", err)
	}
	return pv.AsInterface(), nil
}

// normalize maps arbitrary Go values (typed slices, structs, typed maps)
// onto the map[string]any / []any / float64 model structpb accepts.
func normalize(value any) (any, error) {
	switch value.(type) {
	case nil, bool, string, float64, int, int64:
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DefaultCodec is the value codec used by channels created without one.
var DefaultCodec MessageCodec = JsonCodec{}

// MethodCall is a decoded method invocation.
type MethodCall struct {
	Method    string
	Arguments any
}

// Argument returns a named argument when Arguments is a map.
func (c MethodCall) Argument(key string) any {
	m, ok := c.Arguments.(map[string]any)
	if !ok {
		return nil
	}
	return m[key]
}

// HasArgument reports whether the named argument is present.
func (c MethodCall) HasArgument(key string) bool {
	m, ok := c.Arguments.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

// MethodCodec encodes method calls and their result envelopes.
type MethodCodec interface {
	EncodeMethodCall(call MethodCall) ([]byte, error)
	DecodeMethodCall(data []byte) (MethodCall, error)
	EncodeSuccessEnvelope(result any) ([]byte, error)
	EncodeErrorEnvelope(code, message string, details any) ([]byte, error)

	// DecodeEnvelope returns the result of a success envelope or a
	// *ChannelError for an error envelope. An empty envelope means the
	// receiver did not implement the method and yields ErrMethodNotFound.
	DecodeEnvelope(data []byte) (any, error)
}

// StandardMethodCodec frames calls as {"method", "args"} objects and
// envelopes as [result] or [code, message, details] lists, encoded with
// the wrapped MessageCodec.
type StandardMethodCodec struct {
	Codec MessageCodec
}

// JSONMethodCodec is the method codec used by channels created without one.
var JSONMethodCodec MethodCodec = StandardMethodCodec{Codec: JsonCodec{}}

// ProtoMethodCodec frames method calls with ProtoCodec.
var ProtoMethodCodec MethodCodec = StandardMethodCodec{Codec: ProtoCodec{}}

func (c StandardMethodCodec) EncodeMethodCall(call MethodCall) ([]byte, error) {
	return c.Codec.Encode(map[string]any{
		"method": call.Method,
		"args":   call.Arguments,
	})
}

func (c StandardMethodCodec) DecodeMethodCall(data []byte) (MethodCall, error) {
	v, err := c.Codec.Decode(data)
	if err != nil {
		return MethodCall{}, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return MethodCall{}, fmt.Errorf("%w: method call must be an object, got %T", ErrInvalidArguments, v)
	}
	method, ok := m["method"].(string)
	if !ok || method == "" {
		return MethodCall{}, fmt.Errorf("%w: method call has no method name", ErrInvalidArguments)
	}
	return MethodCall{Method: method, Arguments: m["args"]}, nil
}

func (c StandardMethodCodec) EncodeSuccessEnvelope(result any) ([]byte, error) {
	return c.Codec.Encode([]any{result})
}

func (c StandardMethodCodec) EncodeErrorEnvelope(code, message string, details any) ([]byte, error) {
	return c.Codec.Encode([]any{code, message, details})
}

func (c StandardMethodCodec) DecodeEnvelope(data []byte) (any, error) {
	if len(data) == 0 {
		return nil, ErrMethodNotFound
	}
	v, err := c.Codec.Decode(data)
	if err != nil {
		return nil, err
	}
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: envelope must be a list, got %T", ErrInvalidArguments, v)
	}
	switch len(list) {
	case 1:
		return list[0], nil
	case 3:
		code, _ := list[0].(string)
		message, _ := list[1].(string)
		return nil, &ChannelError{Code: code, Message: message, Details: list[2]}
	default:
		return nil, fmt.Errorf("%w: envelope has %d elements", ErrInvalidArguments, len(list))
	}
}

// Standard errors for channel operations.
var (
	// ErrChannelNotFound indicates no handler is installed for the channel.
	ErrChannelNotFound = errors.New("channel not found")

	// ErrMethodNotFound indicates the receiver does not implement the method.
	ErrMethodNotFound = errors.New("method not implemented")

	// ErrInvalidArguments indicates the arguments passed to the method were invalid.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrViewTypeNotFound indicates the platform view type is not registered.
	ErrViewTypeNotFound = errors.New("platform view type not registered")

	// ErrAlreadyReplied indicates a second reply to the same call.
	ErrAlreadyReplied = errors.New("reply already submitted")
)

// Error codes carried in error envelopes.
const (
	CodeInvalidArgs = "invalid_args"
	CodeError       = "error"
	CodePanic       = "panic"
	CodeDisposed    = "disposed"
)

// ChannelError represents an error carried in an error envelope.
type ChannelError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func (e *ChannelError) Error() string {
	if e.Message != "" {
		return e.Code + ": " + e.Message
	}
	return e.Code
}

// NewChannelError creates a new ChannelError with the given code and message.
func NewChannelError(code, message string) *ChannelError {
	return &ChannelError{Code: code, Message: message}
}

// NewChannelErrorWithDetails creates a new ChannelError with additional details.
func NewChannelErrorWithDetails(code, message string, details any) *ChannelError {
	return &ChannelError{Code: code, Message: message, Details: details}
}

// InvalidArgs builds an invalid_args ChannelError.
func InvalidArgs(format string, args ...any) *ChannelError {
	return &ChannelError{Code: CodeInvalidArgs, Message: fmt.Sprintf(format, args...)}
}
