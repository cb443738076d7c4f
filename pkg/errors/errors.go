// Package errors provides structured error reporting for the ArcGIS bridge.
//
// Failures that cannot be returned to a caller (a controller that fails to
// dispose, a reply that cannot be encoded, a panic inside a channel
// handler) are reported to a process-wide ErrorHandler instead of being
// dropped.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorKind identifies the category of an error.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindPlatform covers channel, messenger and frame transport failures.
	KindPlatform
	// KindParsing covers payloads that could not be decoded.
	KindParsing
	// KindAttach covers failures while attaching to the host engine.
	KindAttach
	// KindDispose covers failures while releasing native resources.
	KindDispose
	// KindDispatch covers failures while answering a method call.
	KindDispatch
	KindPanic
)

var kindNames = [...]string{
	KindUnknown:  "unknown",
	KindPlatform: "platform",
	KindParsing:  "parsing",
	KindAttach:   "attach",
	KindDispose:  "dispose",
	KindDispatch: "dispatch",
	KindPanic:    "panic",
}

func (k ErrorKind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return kindNames[KindUnknown]
	}
	return kindNames[k]
}

// BridgeError is a failure raised inside the bridge.
type BridgeError struct {
	// Op names the failing operation, e.g. "arcgis.detach".
	Op   string
	Kind ErrorKind
	Err  error
	// Channel and Method locate the failure when it happened while
	// serving a call.
	Channel string
	Method  string
	// StackTrace is filled by Report for dispose failures.
	StackTrace string
	Timestamp  time.Time
}

func (e *BridgeError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s]", e.Op, e.Kind)
	if e.Channel != "" {
		sb.WriteString(" channel=")
		sb.WriteString(e.Channel)
	}
	if e.Method != "" {
		sb.WriteString(" method=")
		sb.WriteString(e.Method)
	}
	fmt.Fprintf(&sb, ": %v", e.Err)
	return sb.String()
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the first BridgeError in err's chain, or
// KindUnknown.
func KindOf(err error) ErrorKind {
	var be *BridgeError
	if stderrors.As(err, &be) {
		return be.Kind
	}
	var pe *PanicError
	if stderrors.As(err, &pe) {
		return KindPanic
	}
	return KindUnknown
}

// PanicError is a recovered panic.
type PanicError struct {
	Op         string
	Value      any
	StackTrace string
	Timestamp  time.Time
}

func (e *PanicError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("panic in %s: %v", e.Op, e.Value)
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

// ErrorHandler receives errors reported by the bridge. Implementations
// must be safe for concurrent use: async controllers report from worker
// goroutines.
type ErrorHandler interface {
	HandleError(err *BridgeError)
	HandlePanic(err *PanicError)
}
