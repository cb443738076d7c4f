package platform

import "sync"

// SentMessage is a message a bridge sent toward the host.
type SentMessage struct {
	Channel string
	Call    MethodCall
}

// RecordingSink is a HostSink that records every outgoing message and
// answers each with a null success. It is meant for tests.
type RecordingSink struct {
	Codec MethodCodec

	mu       sync.Mutex
	messages []SentMessage
}

// Deliver implements HostSink.
func (s *RecordingSink) Deliver(channel string, message []byte, reply Reply) {
	codec := s.Codec
	if codec == nil {
		codec = JSONMethodCodec
	}
	call, _ := codec.DecodeMethodCall(message)
	s.mu.Lock()
	s.messages = append(s.messages, SentMessage{Channel: channel, Call: call})
	s.mu.Unlock()
	if reply != nil {
		data, _ := codec.EncodeSuccessEnvelope(nil)
		reply(data)
	}
}

// Messages returns a copy of the recorded messages.
func (s *RecordingSink) Messages() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SentMessage, len(s.messages))
	copy(out, s.messages)
	return out
}

// Reset discards recorded messages.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	s.messages = s.messages[:0]
	s.mu.Unlock()
}

// SetupTestEngine creates an engine backed by a RecordingSink with inline
// dispatch. The cleanup function should be testing.T.Cleanup or
// equivalent; it registers a teardown that destroys the engine.
//
//	engine, sink := platform.SetupTestEngine(t.Cleanup)
func SetupTestEngine(cleanup func(func())) (*Engine, *RecordingSink) {
	sink := &RecordingSink{}
	engine := NewEngine(sink, InlineExecutor)
	cleanup(engine.Destroy)
	return engine, sink
}
