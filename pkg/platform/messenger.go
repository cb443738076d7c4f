package platform

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-drift/arcgis/pkg/errors"
)

// Reply delivers an encoded response. A nil or empty response means the
// receiver did not implement the call.
type Reply func(response []byte)

// MessageHandler handles one encoded message arriving on a channel.
type MessageHandler func(message []byte, reply Reply)

// Messenger is the bridge's view of the transport to the host.
type Messenger interface {
	// Send delivers a message toward the host. reply may be nil.
	Send(channel string, message []byte, reply Reply)

	// SetMessageHandler installs the handler for messages arriving from the
	// host on channel. A nil handler uninstalls it.
	SetMessageHandler(channel string, handler MessageHandler)
}

// HostSink receives the messages a bridge sends toward the host.
type HostSink interface {
	Deliver(channel string, message []byte, reply Reply)
}

// LocalMessenger is an in-process Messenger. Host-originated messages enter
// through HandleMessage; bridge-originated messages leave through the sink.
type LocalMessenger struct {
	handlers map[string]MessageHandler
	sink     HostSink
	mu       sync.RWMutex
}

// NewLocalMessenger creates a messenger that forwards outgoing messages to
// sink. A nil sink answers every outgoing message as not implemented.
func NewLocalMessenger(sink HostSink) *LocalMessenger {
	return &LocalMessenger{
		handlers: make(map[string]MessageHandler),
		sink:     sink,
	}
}

// Send implements Messenger.
func (m *LocalMessenger) Send(channel string, message []byte, reply Reply) {
	if m.sink == nil {
		if reply != nil {
			reply(nil)
		}
		return
	}
	m.sink.Deliver(channel, message, reply)
}

// SetMessageHandler implements Messenger.
func (m *LocalMessenger) SetMessageHandler(channel string, handler MessageHandler) {
	m.mu.Lock()
	if handler == nil {
		delete(m.handlers, channel)
	} else {
		m.handlers[channel] = handler
	}
	m.mu.Unlock()
}

// HasHandler reports whether a handler is installed for channel.
func (m *LocalMessenger) HasHandler(channel string) bool {
	m.mu.RLock()
	_, ok := m.handlers[channel]
	m.mu.RUnlock()
	return ok
}

// Channels returns the names of all channels with an installed handler.
func (m *LocalMessenger) Channels() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.handlers))
	for name := range m.handlers {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}

// HandleMessage routes a host-originated message to the channel's handler.
// Messages for channels without a handler are answered with an empty
// reply. It returns false in that case.
func (m *LocalMessenger) HandleMessage(channel string, message []byte, reply Reply) bool {
	m.mu.RLock()
	handler := m.handlers[channel]
	m.mu.RUnlock()

	if reply == nil {
		reply = func([]byte) {}
	}
	if handler == nil {
		reply(nil)
		return false
	}

	defer errors.Recover("platform.HandleMessage")
	handler(message, reply)
	return true
}

// Call performs a method call on a bridge channel the way the host does
// and waits for the reply or for ctx to end.
func (m *LocalMessenger) Call(ctx context.Context, codec MethodCodec, channel, method string, args any) (any, error) {
	data, err := codec.EncodeMethodCall(MethodCall{Method: method, Arguments: args})
	if err != nil {
		return nil, err
	}

	done := make(chan []byte, 1)
	m.HandleMessage(channel, data, func(response []byte) {
		select {
		case done <- response:
		default:
		}
	})

	select {
	case response := <-done:
		result, err := codec.DecodeEnvelope(response)
		if stderrors.Is(err, ErrMethodNotFound) {
			return nil, fmt.Errorf("%w: %s on %s", ErrMethodNotFound, method, channel)
		}
		return result, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
