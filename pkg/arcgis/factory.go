package arcgis

import (
	"fmt"

	"github.com/go-drift/arcgis/pkg/platform"
)

// nativeView is a platform view that serves its own channel.
type nativeView interface {
	platform.PlatformView
	handle(call platform.MethodCall, result platform.Result)
}

// viewFactory creates map or scene views. The lifecycle owner is read
// through lifecycle on every Create so a later activity attach is seen.
type viewFactory struct {
	viewType  string
	ctx       *attachContext
	lifecycle func() platform.LifecycleOwner
	build     func(base *viewBase, params map[string]any) (nativeView, error)
}

func newViewFactory(
	viewType string,
	ctx *attachContext,
	lifecycle func() platform.LifecycleOwner,
	build func(base *viewBase, params map[string]any) (nativeView, error),
) *viewFactory {
	return &viewFactory{viewType: viewType, ctx: ctx, lifecycle: lifecycle, build: build}
}

// Create implements platform.PlatformViewFactory.
func (f *viewFactory) Create(viewID int64, params map[string]any) (platform.PlatformView, error) {
	channel := f.ctx.channel(ViewChannelName(f.viewType, viewID))
	base := &viewBase{
		id:       viewID,
		viewType: f.viewType,
		channel:  channel,
		logger:   f.ctx.logger.With("channel", channel.Name()),
		metrics:  f.ctx.metrics,
		release:  func() { f.ctx.views.remove(viewID) },
	}
	view, err := f.build(base, params)
	if err != nil {
		return nil, err
	}
	base.observe(f.lifecycle())
	f.ctx.serve(channel, view.handle)
	f.ctx.views.add(viewID)
	f.ctx.metrics.viewCreated(f.viewType)
	base.logger.Debug("view created", "paused", base.IsPaused())
	return view, nil
}

// ViewChannelName returns the channel a view of viewType serves.
func ViewChannelName(viewType string, viewID int64) string {
	return fmt.Sprintf("%s_%d", viewType, viewID)
}
