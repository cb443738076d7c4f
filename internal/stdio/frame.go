package stdio

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/go-drift/arcgis/pkg/platform"
)

// Frame is one line of the stdio protocol.
//
// A call carries ID, Channel and Message. A reply carries ID and Reply;
// a null Reply means the receiver did not implement the method. A control
// frame carries only Control.
type Frame struct {
	ID      int64           `json:"id,omitempty"`
	Channel string          `json:"channel,omitempty"`
	Message json.RawMessage `json:"message,omitempty"`
	Reply   json.RawMessage `json:"reply,omitempty"`
	Control string          `json:"control,omitempty"`
}

// replyFrame always carries the reply key so an empty reply is encoded
// as null.
type replyFrame struct {
	ID    int64           `json:"id"`
	Reply json.RawMessage `json:"reply"`
}

// Control frame values. Lifecycle transitions use ControlLifecyclePrefix
// followed by a platform.LifecycleState, e.g. "lifecycle:paused".
const (
	ControlAttachActivity                 = "attachActivity"
	ControlDetachActivity                 = "detachActivity"
	ControlDetachActivityForConfigChanges = "detachActivityForConfigChanges"
	ControlReattachActivity               = "reattachActivity"
	ControlLifecyclePrefix                = "lifecycle:"
)

// isReply reports whether f answers a call the bridge sent.
func (f *Frame) isReply() bool {
	return f.Reply != nil
}

// payloadCodec maps codec bytes to frame payloads. JSON payloads are
// embedded as is; binary payloads travel as base64 strings.
type payloadCodec struct {
	binary bool
}

func newPayloadCodec(codec platform.MethodCodec) payloadCodec {
	return payloadCodec{binary: codec == platform.ProtoMethodCodec}
}

func (p payloadCodec) encode(data []byte) (json.RawMessage, error) {
	if len(data) == 0 {
		return json.RawMessage("null"), nil
	}
	if !p.binary {
		return json.RawMessage(data), nil
	}
	return json.Marshal(base64.StdEncoding.EncodeToString(data))
}

func (p payloadCodec) decode(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if !p.binary {
		return raw, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("binary payload must be a base64 string: %w", err)
	}
	return base64.StdEncoding.DecodeString(s)
}
