package errors

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func TestBridgeErrorString(t *testing.T) {
	tests := []struct {
		name string
		err  *BridgeError
		want string
	}{
		{
			name: "bare",
			err:  &BridgeError{Op: "engine.AddPlugin", Kind: KindAttach, Err: stderrors.New("boom")},
			want: "engine.AddPlugin [attach]: boom",
		},
		{
			name: "channel",
			err: &BridgeError{
				Op: "arcgis.detach", Kind: KindDispose,
				Channel: "plugins.flutter.io/service_table", Err: stderrors.New("busy"),
			},
			want: "arcgis.detach [dispose] channel=plugins.flutter.io/service_table: busy",
		},
		{
			name: "channel and method",
			err: &BridgeError{
				Op: "platform.reply", Kind: KindDispatch,
				Channel: "plugins.flutter.io/arcgis_channel", Method: "arcgis#setLicense", Err: stderrors.New("twice"),
			},
			want: "platform.reply [dispatch] channel=plugins.flutter.io/arcgis_channel method=arcgis#setLicense: twice",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBridgeErrorUnwrap(t *testing.T) {
	inner := stderrors.New("inner")
	err := fmt.Errorf("wrapped: %w", &BridgeError{Op: "op", Kind: KindDispose, Err: inner})
	if !stderrors.Is(err, inner) {
		t.Error("errors.Is should see through BridgeError")
	}
}

func TestErrorKindString(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindUnknown, "unknown"},
		{KindPlatform, "platform"},
		{KindParsing, "parsing"},
		{KindAttach, "attach"},
		{KindDispose, "dispose"},
		{KindDispatch, "dispatch"},
		{KindPanic, "panic"},
		{ErrorKind(99), "unknown"},
		{ErrorKind(-1), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("ErrorKind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	dispose := &BridgeError{Op: "x", Kind: KindDispose, Err: stderrors.New("y")}
	if got := KindOf(fmt.Errorf("detach: %w", dispose)); got != KindDispose {
		t.Errorf("KindOf(wrapped dispose) = %v", got)
	}
	if got := KindOf(&PanicError{Value: 1}); got != KindPanic {
		t.Errorf("KindOf(panic) = %v", got)
	}
	if got := KindOf(stderrors.New("plain")); got != KindUnknown {
		t.Errorf("KindOf(plain) = %v", got)
	}
}

func TestPanicErrorString(t *testing.T) {
	err := &PanicError{Value: "test panic"}
	if got, want := err.Error(), "panic: test panic"; got != want {
		t.Errorf("PanicError.Error() = %q, want %q", got, want)
	}
	err.Op = "platform.handleMessage"
	if got, want := err.Error(), "panic in platform.handleMessage: test panic"; got != want {
		t.Errorf("PanicError.Error() = %q, want %q", got, want)
	}
}

func TestReportStampsTimeAndDisposeStack(t *testing.T) {
	var captured []*BridgeError
	defer SetHandler(SetHandler(&testHandler{onError: func(err *BridgeError) { captured = append(captured, err) }}))

	Report(&BridgeError{Op: "engine.AddPlugin", Kind: KindAttach, Err: stderrors.New("x")})
	Report(&BridgeError{Op: "arcgis.detach", Kind: KindDispose, Err: stderrors.New("y")})

	if len(captured) != 2 {
		t.Fatalf("captured %d reports, want 2", len(captured))
	}
	for _, err := range captured {
		if err.Timestamp.IsZero() {
			t.Errorf("%s: Timestamp not set", err.Op)
		}
	}
	if captured[0].StackTrace != "" {
		t.Error("attach failures should not get a stack")
	}
	if !strings.Contains(captured[1].StackTrace, "TestReportStampsTimeAndDisposeStack") {
		t.Errorf("dispose stack should include the reporting test, got:\n%s", captured[1].StackTrace)
	}
}

func TestReportNil(t *testing.T) {
	called := false
	defer SetHandler(SetHandler(&testHandler{
		onError: func(*BridgeError) { called = true },
		onPanic: func(*PanicError) { called = true },
	}))

	Report(nil)
	ReportPanic(nil)
	if called {
		t.Error("nil reports should not reach the handler")
	}
}

func TestRecover(t *testing.T) {
	var captured *PanicError
	defer SetHandler(SetHandler(&testHandler{onPanic: func(err *PanicError) { captured = err }}))

	func() {
		defer Recover("test.recover")
		panic("intentional test panic")
	}()

	if captured == nil {
		t.Fatal("expected panic to be recovered and captured")
	}
	if captured.Value != "intentional test panic" || captured.Op != "test.recover" {
		t.Errorf("captured = %+v", captured)
	}
	if captured.Timestamp.IsZero() {
		t.Error("Timestamp not set")
	}
	if strings.Contains(captured.StackTrace, "runtime.gopanic") {
		t.Error("stack should omit panic machinery")
	}
	if !strings.Contains(captured.StackTrace, "TestRecover") {
		t.Errorf("stack should include the panicking test, got:\n%s", captured.StackTrace)
	}
}

func TestRecoverWithCallback(t *testing.T) {
	defer SetHandler(SetHandler(&testHandler{}))

	var got any
	func() {
		defer RecoverWithCallback("test.callback", func(r any) { got = r })
		panic(42)
	}()
	if got != 42 {
		t.Errorf("callback value = %v, want 42", got)
	}

	called := false
	func() {
		defer RecoverWithCallback("test.noPanic", func(any) { called = true })
	}()
	if called {
		t.Error("callback should not run without a panic")
	}
}

func TestCaptureStack(t *testing.T) {
	stack := CaptureStack()
	if !strings.Contains(stack, "TestCaptureStack") {
		t.Errorf("stack should start at the caller, got:\n%s", stack)
	}
	if strings.Contains(stack, "errors.CaptureStack") {
		t.Error("stack should not include CaptureStack itself")
	}
}

func TestSetHandler(t *testing.T) {
	h := &testHandler{}
	prev := SetHandler(h)
	defer SetHandler(prev)

	if Handler() != h {
		t.Errorf("Handler() = %T, want the installed handler", Handler())
	}
	if got := SetHandler(nil); got != h {
		t.Errorf("SetHandler returned %T, want the replaced handler", got)
	}
	if _, ok := Handler().(*LogHandler); !ok {
		t.Errorf("SetHandler(nil) should install a LogHandler, got %T", Handler())
	}
}

func TestLogHandlerWritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	h := &LogHandler{Logger: slog.New(slog.NewTextHandler(&buf, nil)), Verbose: true}

	h.HandleError(&BridgeError{
		Op:         "arcgis.detach",
		Kind:       KindDispose,
		Channel:    "plugins.flutter.io/service_table",
		Method:     "queryFeatures",
		Err:        stderrors.New("busy"),
		StackTrace: "frame",
	})

	out := buf.String()
	for _, want := range []string{
		"level=ERROR", "op=arcgis.detach", "kind=dispose",
		"channel=plugins.flutter.io/service_table", "method=queryFeatures",
		"error=busy", "stack=frame",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q should contain %q", out, want)
		}
	}

	buf.Reset()
	h.Verbose = false
	h.HandlePanic(&PanicError{Op: "op", Value: "boom", StackTrace: "frame"})
	if out := buf.String(); !strings.Contains(out, "boom") || strings.Contains(out, "stack=") {
		t.Errorf("panic log %q should carry the value and no stack", out)
	}
}

type testHandler struct {
	onError func(*BridgeError)
	onPanic func(*PanicError)
}

func (h *testHandler) HandleError(err *BridgeError) {
	if h.onError != nil {
		h.onError(err)
	}
}

func (h *testHandler) HandlePanic(err *PanicError) {
	if h.onPanic != nil {
		h.onPanic(err)
	}
}
