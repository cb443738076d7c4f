package errors

import (
	"fmt"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

type handlerBox struct{ h ErrorHandler }

var current atomic.Pointer[handlerBox]

func init() {
	current.Store(&handlerBox{h: &LogHandler{}})
}

// Handler returns the installed error handler.
func Handler() ErrorHandler {
	return current.Load().h
}

// SetHandler installs h and returns the handler it replaced, so tests can
// write defer errors.SetHandler(errors.SetHandler(h)). A nil h installs a
// LogHandler writing through slog.Default().
func SetHandler(h ErrorHandler) (previous ErrorHandler) {
	if h == nil {
		h = &LogHandler{}
	}
	return current.Swap(&handlerBox{h: h}).h
}

// Report sends err to the installed handler. A zero Timestamp is set to
// now; dispose failures get a stack trace if they carry none.
func Report(err *BridgeError) {
	if err == nil {
		return
	}
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	if err.Kind == KindDispose && err.StackTrace == "" {
		err.StackTrace = CaptureStack()
	}
	Handler().HandleError(err)
}

// ReportPanic sends err to the installed handler.
func ReportPanic(err *PanicError) {
	if err == nil {
		return
	}
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	Handler().HandlePanic(err)
}

// Recover reports a panic in the deferring function as a PanicError.
//
//	defer errors.Recover("arcgis.dispatch")
func Recover(op string) {
	if r := recover(); r != nil {
		reportRecovered(op, r)
	}
}

// RecoverWithCallback is Recover followed by callback(r), typically used to
// answer the pending call with an error.
func RecoverWithCallback(op string, callback func(r any)) {
	r := recover()
	if r == nil {
		return
	}
	reportRecovered(op, r)
	if callback != nil {
		callback(r)
	}
}

func reportRecovered(op string, r any) {
	ReportPanic(&PanicError{Op: op, Value: r, StackTrace: CaptureStack()})
}

// CaptureStack returns the caller's stack, one "function\n\tfile:line"
// entry per frame. Frames of this package and the runtime's panic
// machinery are omitted.
func CaptureStack() string {
	var pcs [48]uintptr
	n := runtime.Callers(2, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])

	var sb strings.Builder
	for {
		frame, more := frames.Next()
		if !skipFrame(frame.Function) {
			fmt.Fprintf(&sb, "%s\n\t%s:%d\n", frame.Function, frame.File, frame.Line)
		}
		if !more {
			break
		}
	}
	return sb.String()
}

const packagePath = "github.com/go-drift/arcgis/pkg/errors."

func skipFrame(function string) bool {
	if rest, ok := strings.CutPrefix(function, packagePath); ok {
		return !strings.HasPrefix(rest, "Test")
	}
	return function == "runtime.gopanic" || strings.HasPrefix(function, "runtime.panic")
}
