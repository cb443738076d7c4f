package arcgis

import (
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

// CoordinateFormatterController converts between points and
// latitude/longitude strings.
type CoordinateFormatterController struct {
	channel *platform.MethodChannel
}

func newCoordinateFormatterController(ctx *attachContext) (Controller, error) {
	c := &CoordinateFormatterController{channel: ctx.channel(CoordinateFormatterChannel)}
	ctx.serve(c.channel, platform.SyncHandler(c.handleMethodCall))
	return c, nil
}

// Name implements Controller.
func (c *CoordinateFormatterController) Name() string { return CoordinateFormatterChannel }

// Dispose implements Controller.
func (c *CoordinateFormatterController) Dispose() error {
	c.channel.SetMethodCallHandler(nil)
	return nil
}

func (c *CoordinateFormatterController) handleMethodCall(call platform.MethodCall) (any, error) {
	switch call.Method {
	case "latitudeLongitudeString":
		p, err := sdk.ParsePoint(call.Argument("point"))
		if err != nil {
			return nil, platform.InvalidArgs("point: %v", err)
		}
		format := sdk.LatitudeLongitudeFormat(stringArg(call, "format"))
		switch format {
		case sdk.FormatDecimalDegrees, sdk.FormatDegreesDecimalMinutes, sdk.FormatDegreesMinutesSeconds:
		case "":
			format = sdk.FormatDecimalDegrees
		default:
			return nil, platform.InvalidArgs("unknown format %q", format)
		}
		decimals, _ := platform.AsInt(call.Argument("decimalPlaces"))
		s, err := sdk.FormatLatitudeLongitude(p, format, decimals)
		if err != nil {
			return nil, platform.InvalidArgs("%v", err)
		}
		return s, nil

	case "fromLatitudeLongitude":
		coordinates, ok := call.Argument("coordinates").(string)
		if !ok {
			return nil, platform.InvalidArgs("coordinates must be a string")
		}
		p, err := sdk.ParseLatitudeLongitude(coordinates)
		if err != nil {
			return nil, platform.InvalidArgs("%v", err)
		}
		return p.ToMap(), nil

	default:
		return nil, platform.ErrMethodNotFound
	}
}
