package stdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-drift/arcgis/pkg/arcgis"
	"github.com/go-drift/arcgis/pkg/platform"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func readReplies(t *testing.T, out *bytes.Buffer) map[int64]string {
	t.Helper()
	replies := map[int64]string{}
	scanner := bufio.NewScanner(out)
	for scanner.Scan() {
		var f replyFrame
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &f))
		replies[f.ID] = string(f.Reply)
	}
	return replies
}

func TestServeAnswersCallsInOrder(t *testing.T) {
	input := strings.Join([]string{
		`{"id":1,"channel":"plugins.flutter.io/arcgis_channel","message":{"method":"arcgis#setApiKey","args":"X"}}`,
		`{"id":2,"channel":"plugins.flutter.io/arcgis_channel","message":{"method":"arcgis#getApiKey"}}`,
		`{"id":3,"channel":"plugins.flutter.io/nowhere","message":{"method":"ping"}}`,
		`this is not a frame`,
		``,
		`{"id":4,"channel":"plugins.flutter.io/arcgis_channel","message":{"method":"arcgis#unknown"}}`,
		`{"id":5,"channel":"plugins.flutter.io/arcgis_channel","message":{"args":"no method"}}`,
	}, "\n")
	var out bytes.Buffer
	srv := NewServer(strings.NewReader(input), &out, Options{Logger: quietLogger()})
	plugin := arcgis.New(arcgis.Options{Logger: quietLogger()})
	require.NoError(t, srv.Engine().AddPlugin(plugin))

	require.NoError(t, srv.Serve(context.Background()))
	assert.False(t, srv.Running())

	replies := readReplies(t, &out)
	assert.Equal(t, `[null]`, replies[1])
	assert.Equal(t, `["X"]`, replies[2])
	assert.Equal(t, `null`, replies[3])
	assert.Equal(t, `null`, replies[4])
	assert.Contains(t, replies[5], "invalid_args")
	assert.Equal(t, "X", plugin.Environment().APIKey())
}

func TestServeControlFrames(t *testing.T) {
	input := strings.Join([]string{
		`{"control":"attachActivity"}`,
		`{"control":"lifecycle:paused"}`,
		`{"control":"detachActivityForConfigChanges"}`,
	}, "\n")
	srv := NewServer(strings.NewReader(input), io.Discard, Options{Logger: quietLogger()})
	plugin := arcgis.New(arcgis.Options{Logger: quietLogger()})
	require.NoError(t, srv.Engine().AddPlugin(plugin))

	require.NoError(t, srv.Serve(context.Background()))
	assert.Equal(t, platform.LifecycleStatePaused, srv.Lifecycle().State())
	assert.Same(t, srv.Lifecycle(), plugin.Lifecycle())

	srv.Engine().RemovePlugin(plugin)
	srv2 := NewServer(strings.NewReader(strings.Join([]string{
		`{"control":"reattachActivity"}`,
		`{"control":"lifecycle:sleepy"}`,
		`{"control":"detachActivity"}`,
		`{"control":"selfDestruct"}`,
	}, "\n")), io.Discard, Options{Logger: quietLogger()})
	require.NoError(t, srv2.Engine().AddPlugin(plugin))
	require.NoError(t, srv2.Serve(context.Background()))
	assert.Nil(t, plugin.Lifecycle())
	assert.Equal(t, platform.LifecycleStateDetached, srv2.Lifecycle().State())
}

func TestServeRoutesHostReplies(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	srv := NewServer(inR, outW, Options{Logger: quietLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	got := make(chan any, 1)
	channel := platform.NewMethodChannel(srv.Engine().Messenger(), "host/echo")
	// Deliver blocks on the pipe until the frame is read below, so the
	// call is posted rather than awaited.
	require.True(t, srv.Post(func() {
		channel.InvokeMethod("ping", 1, func(result any, err error) {
			assert.NoError(t, err)
			got <- result
		})
	}))

	line, err := bufio.NewReader(outR).ReadBytes('\n')
	require.NoError(t, err)
	var call Frame
	require.NoError(t, json.Unmarshal(line, &call))
	assert.Equal(t, "host/echo", call.Channel)
	assert.JSONEq(t, `{"method":"ping","args":1}`, string(call.Message))

	_, err = io.WriteString(inW, `{"id":`+jsonInt(call.ID)+`,"reply":["pong"]}`+"\n")
	require.NoError(t, err)

	select {
	case v := <-got:
		assert.Equal(t, "pong", v)
	case <-ctx.Done():
		t.Fatal("reply was not routed")
	}

	require.NoError(t, inW.Close())
	require.NoError(t, <-served)
	assert.False(t, srv.Post(func() {}))
}

func TestDoRunsOnServeLoop(t *testing.T) {
	inR, inW := io.Pipe()
	srv := NewServer(inR, io.Discard, Options{Logger: quietLogger()})
	served := make(chan error, 1)
	go func() { served <- srv.Serve(context.Background()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var ran bool
	require.NoError(t, srv.Do(ctx, func() { ran = true }))
	assert.True(t, ran)

	require.NoError(t, inW.Close())
	require.NoError(t, <-served)
	assert.Error(t, srv.Do(ctx, func() {}))
}

func TestServeStopsOnCancel(t *testing.T) {
	inR, _ := io.Pipe()
	srv := NewServer(inR, io.Discard, Options{Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, srv.Running, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not stop")
	}
}

func TestPayloadCodec(t *testing.T) {
	binary := newPayloadCodec(platform.ProtoMethodCodec)
	raw, err := binary.encode([]byte{0x0a, 0x00, 0xff})
	require.NoError(t, err)
	assert.Equal(t, `"CgD/"`, string(raw))
	data, err := binary.decode(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x00, 0xff}, data)

	_, err = binary.decode(json.RawMessage(`{"not":"base64"}`))
	assert.Error(t, err)

	text := newPayloadCodec(platform.JSONMethodCodec)
	raw, err = text.encode(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", string(raw))
	data, err = text.decode(raw)
	require.NoError(t, err)
	assert.Nil(t, data)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
