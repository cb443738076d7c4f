// Package stdio runs a platform engine over newline-delimited JSON frames
// on a reader/writer pair, typically stdin and stdout.
package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/Workiva/go-datastructures/queue"
	"github.com/valyala/bytebufferpool"

	"github.com/go-drift/arcgis/pkg/errors"
	"github.com/go-drift/arcgis/pkg/platform"
)

const maxFrameSize = 16 << 20

// Options configures a Server.
type Options struct {
	// Codec encodes channel payloads. Defaults to platform.JSONMethodCodec.
	Codec  platform.MethodCodec
	Logger *slog.Logger
}

// task is one unit of work on the serialization point.
type task func()

// Server owns an engine and feeds it frames read from the input. Every
// frame, control and posted callback runs on one goroutine, in order,
// through a single queue.
type Server struct {
	engine    *platform.Engine
	lifecycle *platform.LifecycleService
	payload   payloadCodec
	logger    *slog.Logger
	queue     *queue.Queue

	in    io.Reader
	out   io.Writer
	outMu sync.Mutex

	nextID  atomic.Int64
	pending sync.Map // int64 -> platform.Reply

	running atomic.Bool
}

// NewServer creates a server reading frames from in and writing frames to out.
func NewServer(in io.Reader, out io.Writer, opts Options) *Server {
	if opts.Codec == nil {
		opts.Codec = platform.JSONMethodCodec
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		lifecycle: platform.NewLifecycleService(platform.LifecycleStateDetached),
		payload:   newPayloadCodec(opts.Codec),
		logger:    opts.Logger,
		queue:     queue.New(64),
		in:        in,
		out:       out,
	}
	s.engine = platform.NewEngine(s, s)
	return s
}

// Engine returns the engine driven by the server. Plugins should be added
// before Serve, or from inside Do once it runs.
func (s *Server) Engine() *platform.Engine {
	return s.engine
}

// Lifecycle returns the lifecycle owner handed to attached activities.
func (s *Server) Lifecycle() *platform.LifecycleService {
	return s.lifecycle
}

// Running reports whether Serve is processing frames.
func (s *Server) Running() bool {
	return s.running.Load()
}

// Post implements platform.Executor. It returns false once the server
// has stopped.
func (s *Server) Post(callback func()) bool {
	if callback == nil {
		return false
	}
	return s.queue.Put(task(callback)) == nil
}

// Do runs fn on the serialization point and waits for it to finish.
func (s *Server) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.Post(func() {
		defer close(done)
		fn()
	}) {
		return queue.ErrDisposed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve processes frames until the input ends or ctx is cancelled. Work
// already queued when the input ends still runs.
func (s *Server) Serve(ctx context.Context) error {
	s.running.Store(true)
	defer s.running.Store(false)

	readErr := make(chan error, 1)
	go func() {
		err := s.readLoop()
		// Drain what is queued, then stop.
		_ = s.queue.Put(task(func() { s.queue.Dispose() }))
		readErr <- err
	}()
	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.queue.Dispose()
		case <-stopped:
		}
	}()

	for {
		items, err := s.queue.Get(1)
		if err != nil {
			break
		}
		for _, item := range items {
			s.run(item.(task))
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	return <-readErr
}

func (s *Server) run(t task) {
	defer errors.Recover("stdio.task")
	t()
}

func (s *Server) readLoop() error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var f Frame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			errors.Report(&errors.BridgeError{
				Op:   "stdio.readFrame",
				Kind: errors.KindParsing,
				Err:  err,
			})
			continue
		}
		if err := s.queue.Put(task(func() { s.handleFrame(&f) })); err != nil {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read frames: %w", err)
	}
	return nil
}

func (s *Server) handleFrame(f *Frame) {
	switch {
	case f.Control != "":
		s.handleControl(f.Control)

	case f.isReply():
		v, ok := s.pending.LoadAndDelete(f.ID)
		if !ok {
			s.logger.Warn("reply for unknown call", "id", f.ID)
			return
		}
		data, err := s.payload.decode(f.Reply)
		if err != nil {
			s.reportFrameError(f, err)
			data = nil
		}
		v.(platform.Reply)(data)

	case f.Channel != "":
		message, err := s.payload.decode(f.Message)
		if err != nil {
			s.reportFrameError(f, err)
			s.writeReply(f.ID, nil)
			return
		}
		id := f.ID
		s.engine.Messenger().HandleMessage(f.Channel, message, func(response []byte) {
			s.writeReply(id, response)
		})

	default:
		s.logger.Warn("frame has no channel, reply or control", "id", f.ID)
	}
}

func (s *Server) handleControl(control string) {
	switch control {
	case ControlAttachActivity:
		s.lifecycle.UpdateState(platform.LifecycleStateResumed)
		s.engine.AttachActivity(&platform.ActivityBinding{Lifecycle: s.lifecycle})
	case ControlDetachActivityForConfigChanges:
		s.engine.DetachActivityForConfigChanges()
	case ControlReattachActivity:
		s.engine.ReattachActivity(&platform.ActivityBinding{Lifecycle: s.lifecycle})
	case ControlDetachActivity:
		s.engine.DetachActivity()
		s.lifecycle.UpdateState(platform.LifecycleStateDetached)
	default:
		name, ok := strings.CutPrefix(control, ControlLifecyclePrefix)
		if !ok {
			s.logger.Warn("unknown control", "control", control)
			return
		}
		state, ok := platform.ParseLifecycleState(name)
		if !ok {
			s.logger.Warn("unknown lifecycle state", "state", name)
			return
		}
		s.lifecycle.UpdateState(state)
	}
}

// Deliver implements platform.HostSink: it writes a bridge-originated
// call and routes the host's reply frame back to reply.
func (s *Server) Deliver(channel string, message []byte, reply platform.Reply) {
	id := s.nextID.Add(1)
	if reply != nil {
		s.pending.Store(id, reply)
	}
	payload, err := s.payload.encode(message)
	if err != nil {
		s.pending.Delete(id)
		if reply != nil {
			reply(nil)
		}
		return
	}
	if err := s.write(Frame{ID: id, Channel: channel, Message: payload}); err != nil {
		if v, ok := s.pending.LoadAndDelete(id); ok {
			v.(platform.Reply)(nil)
		}
	}
}

func (s *Server) writeReply(id int64, response []byte) {
	payload, err := s.payload.encode(response)
	if err != nil {
		errors.Report(&errors.BridgeError{Op: "stdio.writeReply", Kind: errors.KindPlatform, Err: err})
		payload = json.RawMessage("null")
	}
	_ = s.write(replyFrame{ID: id, Reply: payload})
}

// write encodes v as one line. Replies may come from worker goroutines,
// so writes are serialized.
func (s *Server) write(v any) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		errors.Report(&errors.BridgeError{Op: "stdio.encodeFrame", Kind: errors.KindPlatform, Err: err})
		return err
	}

	s.outMu.Lock()
	defer s.outMu.Unlock()
	if _, err := s.out.Write(buf.B); err != nil {
		errors.Report(&errors.BridgeError{Op: "stdio.writeFrame", Kind: errors.KindPlatform, Err: err})
		return err
	}
	return nil
}

func (s *Server) reportFrameError(f *Frame, err error) {
	errors.Report(&errors.BridgeError{
		Op:      "stdio.decodePayload",
		Kind:    errors.KindParsing,
		Channel: f.Channel,
		Err:     err,
	})
}

var (
	_ platform.HostSink = (*Server)(nil)
	_ platform.Executor = (*Server)(nil)
)
