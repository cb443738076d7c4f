package arcgis

import (
	"fmt"

	"github.com/go-drift/arcgis/pkg/errors"
	"github.com/go-drift/arcgis/pkg/platform"
)

// session is one attach/detach cycle. It holds every controller or none.
type session struct {
	id          string
	ctx         *attachContext
	mainChannel *platform.MethodChannel
	controllers []Controller
	// registry is where the session's views live.
	registry *platform.ViewRegistry
}

// buildControllers constructs each controller in order. If one fails,
// the ones already built are disposed in reverse order and the error is
// returned.
func buildControllers(ctx *attachContext, constructors []constructor) ([]Controller, error) {
	built := make([]Controller, 0, len(constructors))
	for _, c := range constructors {
		controller, err := c.build(ctx)
		if err != nil {
			for i := len(built) - 1; i >= 0; i-- {
				disposeController(ctx, built[i], "arcgis.rollback")
			}
			return nil, fmt.Errorf("attach %s: %w", c.name, err)
		}
		built = append(built, controller)
	}
	return built, nil
}

// close uninstalls the main channel, disposes the session's live views
// and then every controller in attach order. A failing controller does
// not stop its siblings.
func (s *session) close() int {
	s.mainChannel.SetMethodCallHandler(nil)
	for _, id := range s.ctx.views.sorted() {
		if !s.registry.Dispose(id) {
			// Not in the registry; drop it from the set all the same.
			s.ctx.views.remove(id)
		}
	}
	failures := 0
	for i, c := range s.controllers {
		if !disposeController(s.ctx, c, "arcgis.detach") {
			failures++
		}
		s.controllers[i] = nil
	}
	s.controllers = nil
	return failures
}

// disposeController disposes c, reporting an error or panic instead of
// propagating it. It reports whether the dispose succeeded.
func disposeController(ctx *attachContext, c Controller, op string) (ok bool) {
	name := c.Name()
	defer errors.RecoverWithCallback(op, func(r any) {
		ctx.logger.Warn("controller dispose panicked", "channel", name, "panic", r)
		ctx.metrics.disposeFailed(name)
		ok = false
	})

	if err := c.Dispose(); err != nil {
		errors.Report(&errors.BridgeError{
			Op:      op,
			Kind:    errors.KindDispose,
			Channel: name,
			Err:     err,
		})
		ctx.logger.Warn("controller dispose failed", "channel", name, "error", err)
		ctx.metrics.disposeFailed(name)
		return false
	}
	ctx.logger.Debug("controller disposed", "channel", name)
	return true
}
