package arcgis

import (
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// GeometryEngineController serves geodetic measurements.
type GeometryEngineController struct {
	channel *platform.MethodChannel
}

func newGeometryEngineController(ctx *attachContext) (Controller, error) {
	c := &GeometryEngineController{channel: ctx.channel(GeometryEngineChannel)}
	ctx.serve(c.channel, platform.SyncHandler(c.handleMethodCall))
	return c, nil
}

// Name implements Controller.
func (c *GeometryEngineController) Name() string { return GeometryEngineChannel }

// Dispose implements Controller.
func (c *GeometryEngineController) Dispose() error {
	c.channel.SetMethodCallHandler(nil)
	return nil
}

func (c *GeometryEngineController) handleMethodCall(call platform.MethodCall) (any, error) {
	switch call.Method {
	case "distanceGeodetic":
		p1, err := sdk.ParsePoint(call.Argument("point1"))
		if err != nil {
			return nil, platform.InvalidArgs("point1: %v", err)
		}
		p2, err := sdk.ParsePoint(call.Argument("point2"))
		if err != nil {
			return nil, platform.InvalidArgs("point2: %v", err)
		}
		d, err := sdk.DistanceGeodetic(p1, p2)
		if err != nil {
			return nil, platform.InvalidArgs("%v", err)
		}
		return map[string]any{
			"distance": d.Distance,
			"azimuth1": d.Azimuth1,
			"azimuth2": d.Azimuth2,
		}, nil

	case "lengthGeodetic":
		g, err := sdk.ParseGeometry(call.Argument("geometry"))
		if err != nil {
			return nil, platform.InvalidArgs("geometry: %v", err)
		}
		length, err := sdk.LengthGeodetic(g)
		if err != nil {
			return nil, platform.InvalidArgs("%v", err)
		}
		return length, nil

	case "getExtent":
		g, err := sdk.ParseGeometry(call.Argument("geometry"))
		if err != nil {
			return nil, platform.InvalidArgs("geometry: %v", err)
		}
		env, err := sdk.Extent(g)
		if err != nil {
			return nil, platform.InvalidArgs("%v", err)
		}
		return env.ToMap(), nil

	default:
		return nil, platform.ErrMethodNotFound
	}
}
