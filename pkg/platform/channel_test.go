package platform

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	bridgeerrors "github.com/go-drift/arcgis/pkg/errors"
)

type captureHandler struct {
	mu     sync.Mutex
	errs   []*bridgeerrors.BridgeError
	panics []*bridgeerrors.PanicError
}

func (h *captureHandler) HandleError(err *bridgeerrors.BridgeError) {
	h.mu.Lock()
	h.errs = append(h.errs, err)
	h.mu.Unlock()
}

func (h *captureHandler) HandlePanic(err *bridgeerrors.PanicError) {
	h.mu.Lock()
	h.panics = append(h.panics, err)
	h.mu.Unlock()
}

func captureReports(t *testing.T) *captureHandler {
	h := &captureHandler{}
	bridgeerrors.SetHandler(h)
	t.Cleanup(func() { bridgeerrors.SetHandler(nil) })
	return h
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestMethodChannelRoundTrip(t *testing.T) {
	m := NewLocalMessenger(nil)
	ch := NewMethodChannel(m, "test/channel")
	ch.SetMethodCallHandler(SyncHandler(func(call MethodCall) (any, error) {
		if call.Method != "echo" {
			return nil, ErrMethodNotFound
		}
		return call.Arguments, nil
	}))

	got, err := m.Call(callCtx(t), JSONMethodCodec, "test/channel", "echo", "hello")
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "hello" {
		t.Errorf("got %v, want hello", got)
	}

	_, err = m.Call(callCtx(t), JSONMethodCodec, "test/channel", "missing", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("expected ErrMethodNotFound, got %v", err)
	}
}

func TestMethodChannelUninstall(t *testing.T) {
	m := NewLocalMessenger(nil)
	ch := NewMethodChannel(m, "test/channel")
	ch.SetMethodCallHandler(SyncHandler(func(MethodCall) (any, error) { return 1, nil }))
	if !m.HasHandler("test/channel") {
		t.Fatal("handler should be installed")
	}

	ch.SetMethodCallHandler(nil)
	if m.HasHandler("test/channel") {
		t.Fatal("handler should be uninstalled")
	}
	if _, err := m.Call(callCtx(t), JSONMethodCodec, "test/channel", "any", nil); !errors.Is(err, ErrMethodNotFound) {
		t.Errorf("expected ErrMethodNotFound after uninstall, got %v", err)
	}
}

// annotatingCodec wraps ErrMethodNotFound the way a codec adding
// envelope context would.
type annotatingCodec struct{ MethodCodec }

func (c annotatingCodec) DecodeEnvelope(data []byte) (any, error) {
	v, err := c.MethodCodec.DecodeEnvelope(data)
	if err != nil {
		return nil, fmt.Errorf("envelope: %w", err)
	}
	return v, nil
}

func TestCallNamesMissingMethodThroughWrappedError(t *testing.T) {
	m := NewLocalMessenger(nil)
	codec := annotatingCodec{JSONMethodCodec}
	ch := NewMethodChannelWithCodec(m, "test/channel", codec)
	ch.SetMethodCallHandler(SyncHandler(func(MethodCall) (any, error) { return nil, ErrMethodNotFound }))

	_, err := m.Call(callCtx(t), codec, "test/channel", "missing", nil)
	if !errors.Is(err, ErrMethodNotFound) {
		t.Fatalf("expected ErrMethodNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing on test/channel") {
		t.Errorf("error %q should name the method and channel", err)
	}
}

func TestSyncHandlerErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"channel error", NewChannelError("custom", "x"), "custom"},
		{"invalid args", ErrInvalidArguments, CodeInvalidArgs},
		{"other", errors.New("boom"), CodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewLocalMessenger(nil)
			NewMethodChannel(m, "c").SetMethodCallHandler(SyncHandler(func(MethodCall) (any, error) {
				return nil, tt.err
			}))
			_, err := m.Call(callCtx(t), JSONMethodCodec, "c", "m", nil)
			var chErr *ChannelError
			if !errors.As(err, &chErr) {
				t.Fatalf("expected ChannelError, got %v", err)
			}
			if chErr.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", chErr.Code, tt.wantCode)
			}
		})
	}
}

func TestResultRepliesExactlyOnce(t *testing.T) {
	reports := captureReports(t)
	m := NewLocalMessenger(nil)
	NewMethodChannel(m, "c").SetMethodCallHandler(func(call MethodCall, result Result) {
		result.Success(1)
		result.Success(2)
		result.NotImplemented()
	})

	replies := 0
	data, _ := JSONMethodCodec.EncodeMethodCall(MethodCall{Method: "m"})
	m.HandleMessage("c", data, func([]byte) { replies++ })

	if replies != 1 {
		t.Errorf("replies = %d, want 1", replies)
	}
	if len(reports.errs) != 2 {
		t.Fatalf("expected 2 duplicate-reply reports, got %d", len(reports.errs))
	}
	if !errors.Is(reports.errs[0], ErrAlreadyReplied) {
		t.Errorf("expected ErrAlreadyReplied, got %v", reports.errs[0])
	}
}

func TestHandlerPanicBecomesErrorReply(t *testing.T) {
	reports := captureReports(t)
	m := NewLocalMessenger(nil)
	NewMethodChannel(m, "c").SetMethodCallHandler(func(MethodCall, Result) {
		panic("handler exploded")
	})

	_, err := m.Call(callCtx(t), JSONMethodCodec, "c", "m", nil)
	var chErr *ChannelError
	if !errors.As(err, &chErr) || chErr.Code != CodePanic {
		t.Fatalf("expected panic ChannelError, got %v", err)
	}
	if len(reports.panics) != 1 {
		t.Errorf("expected 1 panic report, got %d", len(reports.panics))
	}
}

func TestMalformedCallIsAnsweredWithInvalidArgs(t *testing.T) {
	captureReports(t)
	m := NewLocalMessenger(nil)
	NewMethodChannel(m, "c").SetMethodCallHandler(func(MethodCall, Result) {
		t.Error("handler should not run for a malformed call")
	})

	var response []byte
	m.HandleMessage("c", []byte(`"not a call"`), func(b []byte) { response = b })
	_, err := JSONMethodCodec.DecodeEnvelope(response)
	var chErr *ChannelError
	if !errors.As(err, &chErr) || chErr.Code != CodeInvalidArgs {
		t.Fatalf("expected invalid_args, got %v", err)
	}
}

func TestInvokeMethodReachesHost(t *testing.T) {
	sink := &RecordingSink{}
	m := NewLocalMessenger(sink)
	ch := NewMethodChannel(m, "views/1")

	var gotErr error
	called := false
	ch.InvokeMethod("map#onTap", map[string]any{"x": 1.0}, func(result any, err error) {
		called = true
		gotErr = err
	})

	if !called || gotErr != nil {
		t.Fatalf("callback called=%v err=%v", called, gotErr)
	}
	msgs := sink.Messages()
	if len(msgs) != 1 || msgs[0].Channel != "views/1" || msgs[0].Call.Method != "map#onTap" {
		t.Errorf("unexpected messages %+v", msgs)
	}
}

func TestInvokeMethodWithoutSink(t *testing.T) {
	ch := NewMethodChannel(NewLocalMessenger(nil), "c")
	var gotErr error
	ch.InvokeMethod("m", nil, func(_ any, err error) { gotErr = err })
	if !errors.Is(gotErr, ErrMethodNotFound) {
		t.Errorf("expected ErrMethodNotFound, got %v", gotErr)
	}
}

func TestCallHonorsContext(t *testing.T) {
	m := NewLocalMessenger(nil)
	NewMethodChannel(m, "c").SetMethodCallHandler(func(MethodCall, Result) {
		// never answers
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Call(ctx, JSONMethodCodec, "c", "m", nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
