package arcgis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/arcgis/pkg/platform"
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	var chErr *platform.ChannelError
	require.ErrorAs(t, err, &chErr)
	assert.Equal(t, code, chErr.Code)
}

func TestGeometryEngine(t *testing.T) {
	engine, _, _ := attachPlugin(t, Options{})

	res, err := call(t, engine, GeometryEngineChannel, "distanceGeodetic", map[string]any{
		"point1": map[string]any{"x": 0.0, "y": 0.0},
		"point2": map[string]any{"x": 1.0, "y": 0.0},
	})
	require.NoError(t, err)
	d := res.(map[string]any)
	assert.InDelta(t, 111195.0, d["distance"], 1.0)
	assert.InDelta(t, 90.0, d["azimuth1"], 1e-9)
	assert.InDelta(t, 270.0, d["azimuth2"], 1e-9)

	res, err = call(t, engine, GeometryEngineChannel, "lengthGeodetic", map[string]any{
		"geometry": map[string]any{"paths": []any{[]any{[]any{0.0, 0.0}, []any{0.0, 1.0}, []any{0.0, 2.0}}}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2*111195.0, res, 2.0)

	res, err = call(t, engine, GeometryEngineChannel, "getExtent", map[string]any{
		"geometry": map[string]any{"rings": []any{[]any{[]any{-1.0, 2.0}, []any{3.0, -4.0}, []any{0.0, 5.0}}}},
	})
	require.NoError(t, err)
	ext := res.(map[string]any)
	assert.Equal(t, -1.0, ext["xmin"])
	assert.Equal(t, -4.0, ext["ymin"])
	assert.Equal(t, 3.0, ext["xmax"])
	assert.Equal(t, 5.0, ext["ymax"])

	_, err = call(t, engine, GeometryEngineChannel, "distanceGeodetic", map[string]any{"point1": "here"})
	requireCode(t, err, platform.CodeInvalidArgs)

	_, err = call(t, engine, GeometryEngineChannel, "buffer", nil)
	assert.ErrorIs(t, err, platform.ErrMethodNotFound)
}

func TestCoordinateFormatter(t *testing.T) {
	engine, _, _ := attachPlugin(t, Options{})

	res, err := call(t, engine, CoordinateFormatterChannel, "latitudeLongitudeString", map[string]any{
		"point":         map[string]any{"x": 37.6173, "y": 55.7558},
		"format":        "DECIMAL_DEGREES",
		"decimalPlaces": 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "55.76N 037.62E", res)

	res, err = call(t, engine, CoordinateFormatterChannel, "fromLatitudeLongitude", map[string]any{
		"coordinates": "55.76N 037.62E",
	})
	require.NoError(t, err)
	p := res.(map[string]any)
	assert.InDelta(t, 37.62, p["x"], 1e-9)
	assert.InDelta(t, 55.76, p["y"], 1e-9)

	_, err = call(t, engine, CoordinateFormatterChannel, "fromLatitudeLongitude", map[string]any{
		"coordinates": "somewhere over the rainbow",
	})
	requireCode(t, err, platform.CodeInvalidArgs)

	_, err = call(t, engine, CoordinateFormatterChannel, "latitudeLongitudeString", map[string]any{
		"point":  map[string]any{"x": 1.0, "y": 2.0},
		"format": "MGRS",
	})
	requireCode(t, err, platform.CodeInvalidArgs)
}

func TestAuthenticationManager(t *testing.T) {
	engine, _, plugin := attachPlugin(t, Options{})
	const server = "https://services.example.com/arcgis/rest/services"

	has, err := call(t, engine, AuthenticationManagerChannel, "hasCredential", map[string]any{"url": server})
	require.NoError(t, err)
	assert.Equal(t, false, has)

	_, err = call(t, engine, AuthenticationManagerChannel, "setCredential", map[string]any{"url": server, "token": "t0k"})
	require.NoError(t, err)

	has, err = call(t, engine, AuthenticationManagerChannel, "hasCredential", map[string]any{"url": server + "/Parcels/FeatureServer/0"})
	require.NoError(t, err)
	assert.Equal(t, true, has)

	cred, ok := plugin.session.ctx.credentials.Get(server + "/Parcels/FeatureServer/0")
	require.True(t, ok)
	assert.Equal(t, "t0k", cred.Token)

	removed, err := call(t, engine, AuthenticationManagerChannel, "removeCredential", map[string]any{"url": server})
	require.NoError(t, err)
	assert.Equal(t, true, removed)

	_, err = call(t, engine, AuthenticationManagerChannel, "setCredential", map[string]any{"url": server, "username": "u", "password": "p"})
	require.NoError(t, err)
	_, err = call(t, engine, AuthenticationManagerChannel, "clearCredentialCache", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, plugin.session.ctx.credentials.Len())

	_, err = call(t, engine, AuthenticationManagerChannel, "setCredential", map[string]any{"url": server})
	requireCode(t, err, platform.CodeInvalidArgs)
}

func TestAuthenticationManagerDisposeClearsCredentials(t *testing.T) {
	engine, _, plugin := attachPlugin(t, Options{})
	_, err := call(t, engine, AuthenticationManagerChannel, "setCredential", map[string]any{"url": "https://a.example.com", "token": "x"})
	require.NoError(t, err)

	credentials := plugin.session.ctx.credentials
	engine.RemovePlugin(plugin)
	assert.Equal(t, 0, credentials.Len())
}

func TestNativeObjects(t *testing.T) {
	service := &fakeFeatureService{count: 17}
	engine, sink, plugin := attachPlugin(t, Options{FeatureService: service})
	const url = "https://services.example.com/Parcels/FeatureServer/0"

	id, err := call(t, engine, NativeObjectsChannel, "createNativeObject", map[string]any{
		"objectId":  "table-1",
		"type":      "ServiceFeatureTable",
		"arguments": map[string]any{"url": url},
	})
	require.NoError(t, err)
	assert.Equal(t, "table-1", id)

	got, err := call(t, engine, NativeObjectsChannel, "sendMessage", map[string]any{
		"objectId": "table-1",
		"method":   "getUrl",
	})
	require.NoError(t, err)
	assert.Equal(t, url, got)

	count, err := call(t, engine, NativeObjectsChannel, "sendMessage", map[string]any{
		"objectId":  "table-1",
		"method":    "queryFeatureCount",
		"arguments": map[string]any{"queryParameters": map[string]any{"whereClause": "AREA > 1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 17.0, count)
	gotURL, q := service.query()
	assert.Equal(t, url, gotURL)
	assert.Equal(t, "AREA > 1", q.WhereClause)

	generated, err := call(t, engine, NativeObjectsChannel, "createNativeObject", map[string]any{
		"type":      "ServiceFeatureTable",
		"arguments": map[string]any{"url": url},
	})
	require.NoError(t, err)
	assert.Len(t, generated, 36)

	_, err = call(t, engine, NativeObjectsChannel, "createNativeObject", map[string]any{
		"objectId":  "table-1",
		"type":      "ServiceFeatureTable",
		"arguments": map[string]any{"url": url},
	})
	requireCode(t, err, "object_exists")

	_, err = call(t, engine, NativeObjectsChannel, "createNativeObject", map[string]any{"type": "Portal"})
	requireCode(t, err, platform.CodeInvalidArgs)

	_, err = call(t, engine, NativeObjectsChannel, "sendMessage", map[string]any{"objectId": "nope", "method": "getUrl"})
	requireCode(t, err, "object_not_found")

	_, err = call(t, engine, NativeObjectsChannel, "destroyNativeObject", map[string]any{"objectId": "table-1"})
	require.NoError(t, err)

	controller := plugin.Controllers()[2].(*NativeObjectsController)
	assert.Equal(t, 1, controller.Len())

	sink.Reset()
	controller.emit("x", "onLoadStatusChanged", "LOADED")
	messages := sink.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, NativeObjectsChannel, messages[0].Channel)
	assert.Equal(t, "messageNativeObject", messages[0].Call.Method)
	assert.Equal(t, "onLoadStatusChanged", messages[0].Call.Argument("method"))

	engine.RemovePlugin(plugin)
	assert.Equal(t, 0, controller.Len())
}

func TestNativeObjectQueryErrorIsEmitted(t *testing.T) {
	service := &fakeFeatureService{err: assertError("token expired")}
	engine, sink, _ := attachPlugin(t, Options{FeatureService: service})

	_, err := call(t, engine, NativeObjectsChannel, "createNativeObject", map[string]any{
		"objectId":  "t",
		"type":      "ServiceFeatureTable",
		"arguments": map[string]any{"url": "https://a.example.com/0"},
	})
	require.NoError(t, err)

	_, err = call(t, engine, NativeObjectsChannel, "sendMessage", map[string]any{"objectId": "t", "method": "queryFeatureCount"})
	requireCode(t, err, platform.CodeError)

	var emitted bool
	for _, m := range sink.Messages() {
		if m.Call.Method == "messageNativeObject" && m.Call.Argument("method") == "onError" {
			emitted = strings.Contains(m.Call.Argument("arguments").(string), "token expired")
		}
	}
	assert.True(t, emitted)
}

type assertError string

func (e assertError) Error() string { return string(e) }
