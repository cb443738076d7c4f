package arcgis

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-drift/arcgis/pkg/errors"
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// call performs a host-side call with a short deadline.
func call(t *testing.T, engine *platform.Engine, channel, method string, args any) (any, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return engine.Messenger().Call(ctx, platform.JSONMethodCodec, channel, method, args)
}

// attachPlugin attaches a plugin with a fake backend to a test engine.
func attachPlugin(t *testing.T, opts Options) (*platform.Engine, *platform.RecordingSink, *Plugin) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	if opts.FeatureService == nil {
		opts.FeatureService = &fakeFeatureService{}
	}
	engine, sink := platform.SetupTestEngine(t.Cleanup)
	plugin := New(opts)
	require.NoError(t, engine.AddPlugin(plugin))
	return engine, sink, plugin
}

// captureReports routes reported errors and panics to the returned slices
// for the duration of the test.
func captureReports(t *testing.T) *reportRecorder {
	t.Helper()
	rec := &reportRecorder{}
	errors.SetHandler(rec)
	t.Cleanup(func() { errors.SetHandler(nil) })
	return rec
}

type reportRecorder struct {
	mu     sync.Mutex
	errs   []*errors.BridgeError
	panics []*errors.PanicError
}

func (r *reportRecorder) HandleError(err *errors.BridgeError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *reportRecorder) HandlePanic(err *errors.PanicError) {
	r.mu.Lock()
	r.panics = append(r.panics, err)
	r.mu.Unlock()
}

func (r *reportRecorder) reported() []*errors.BridgeError {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*errors.BridgeError(nil), r.errs...)
}

func (r *reportRecorder) panicCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.panics)
}

// fakeController records its disposal into a shared log.
type fakeController struct {
	name       string
	log        *[]string
	disposeErr error
	panics     bool
}

func (c *fakeController) Name() string { return c.name }

func (c *fakeController) Dispose() error {
	*c.log = append(*c.log, c.name)
	if c.panics {
		panic("dispose exploded")
	}
	return c.disposeErr
}

func fakeConstructor(c *fakeController) constructor {
	return constructor{name: c.name, build: func(*attachContext) (Controller, error) { return c, nil }}
}

// fakeFeatureService answers queries from canned data. When block is
// set, queries wait for it to close or for their context to end.
type fakeFeatureService struct {
	table    *sdk.FeatureTable
	features []sdk.Feature
	count    int64
	stats    []sdk.StatisticRecord
	err      error
	block    chan struct{}

	loads   atomic.Int32
	started chan struct{}

	mu        sync.Mutex
	lastQuery sdk.QueryParameters
	lastStats sdk.StatisticsQueryParameters
	lastURL   string
}

func (f *fakeFeatureService) wait(ctx context.Context) error {
	if f.started != nil {
		select {
		case f.started <- struct{}{}:
		default:
		}
	}
	if f.block == nil {
		return nil
	}
	select {
	case <-f.block:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeFeatureService) LoadTable(ctx context.Context, tableURL string) (*sdk.FeatureTable, error) {
	f.loads.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	t := *f.table
	t.URL = tableURL
	return &t, nil
}

func (f *fakeFeatureService) QueryFeatures(ctx context.Context, table *sdk.FeatureTable, q sdk.QueryParameters, fields sdk.QueryFeatureFields) ([]sdk.Feature, error) {
	f.record(table.URL, q)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.features, f.err
}

func (f *fakeFeatureService) QueryFeatureCount(ctx context.Context, tableURL string, q sdk.QueryParameters) (int64, error) {
	f.record(tableURL, q)
	if err := f.wait(ctx); err != nil {
		return 0, err
	}
	return f.count, f.err
}

func (f *fakeFeatureService) QueryStatistics(ctx context.Context, tableURL string, q sdk.StatisticsQueryParameters) ([]sdk.StatisticRecord, error) {
	f.mu.Lock()
	f.lastURL = tableURL
	f.lastStats = q
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.stats, f.err
}

func (f *fakeFeatureService) record(url string, q sdk.QueryParameters) {
	f.mu.Lock()
	f.lastURL = url
	f.lastQuery = q
	f.mu.Unlock()
}

func (f *fakeFeatureService) query() (string, sdk.QueryParameters) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastURL, f.lastQuery
}
