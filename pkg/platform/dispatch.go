package platform

// Executor schedules callbacks onto the host's serialization point, the
// single logical thread every host-originated event arrives on.
type Executor interface {
	// Post schedules callback. It returns false if the callback was
	// dropped (nil callback or executor shut down).
	Post(callback func()) bool
}

// ExecutorFunc adapts a scheduling function to Executor.
type ExecutorFunc func(callback func())

// Post implements Executor.
func (f ExecutorFunc) Post(callback func()) bool {
	if f == nil || callback == nil {
		return false
	}
	f(callback)
	return true
}

// InlineExecutor runs callbacks on the calling goroutine.
var InlineExecutor Executor = ExecutorFunc(func(cb func()) { cb() })
