package arcgis

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/panjf2000/ants/v2"

	"github.com/go-drift/arcgis/pkg/errors"
	"github.com/go-drift/arcgis/pkg/platform"
	"github.com/go-drift/arcgis/pkg/sdk"
)

const poolReleaseTimeout = 5 * time.Second

// ServiceTableController runs feature, count and statistics queries
// against feature service tables. Queries run on a bounded worker pool
// and are answered on the host serialization point.
type ServiceTableController struct {
	ctx     *attachContext
	channel *platform.MethodChannel
	service sdk.FeatureService
	pool    *ants.Pool
	tables  cmap.ConcurrentMap[string, *sdk.FeatureTable]

	runCtx context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]*pendingQuery
}

// pendingQuery is answered exactly once, by completion or by Dispose.
type pendingQuery struct {
	result   platform.Result
	answered atomic.Bool
}

func (q *pendingQuery) answer(fn func(platform.Result)) bool {
	if !q.answered.CompareAndSwap(false, true) {
		return false
	}
	fn(q.result)
	return true
}

func newServiceTableController(ctx *attachContext) (Controller, error) {
	pool, err := ants.NewPool(ctx.opts.QueryWorkers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(r any) {
			errors.ReportPanic(&errors.PanicError{
				Op:         "arcgis.serviceTableQuery",
				Value:      r,
				StackTrace: errors.CaptureStack(),
				Timestamp:  time.Now(),
			})
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("query pool: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	c := &ServiceTableController{
		ctx:     ctx,
		channel: ctx.channel(ServiceTableChannel),
		service: ctx.featureService(),
		pool:    pool,
		tables:  cmap.New[*sdk.FeatureTable](),
		runCtx:  runCtx,
		cancel:  cancel,
		pending: make(map[uint64]*pendingQuery),
	}
	ctx.serve(c.channel, c.handleMethodCall)
	return c, nil
}

// Name implements Controller.
func (c *ServiceTableController) Name() string { return ServiceTableChannel }

// CachedTables returns the number of tables whose metadata is cached.
func (c *ServiceTableController) CachedTables() int {
	return c.tables.Count()
}

// Pending returns the number of queries not yet answered.
func (c *ServiceTableController) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Dispose uninstalls the channel, cancels in-flight queries and answers
// them with a disposed error. Results that arrive later are dropped.
func (c *ServiceTableController) Dispose() error {
	c.channel.SetMethodCallHandler(nil)
	c.cancel()

	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]*pendingQuery)
	c.mu.Unlock()
	for _, q := range pending {
		q.answer(func(r platform.Result) {
			r.Error(platform.CodeDisposed, "service table controller disposed", nil)
		})
	}

	c.tables.Clear()
	if err := c.pool.ReleaseTimeout(poolReleaseTimeout); err != nil {
		return fmt.Errorf("release query pool: %w", err)
	}
	return nil
}

func (c *ServiceTableController) handleMethodCall(call platform.MethodCall, result platform.Result) {
	url := stringArg(call, "url")
	if url == "" && (call.Method == "queryFeatures" || call.Method == "queryFeatureCount" || call.Method == "queryStatisticsAsync") {
		result.Error(platform.CodeInvalidArgs, call.Method+" requires url", nil)
		return
	}

	switch call.Method {
	case "queryFeatures":
		q, err := parseQueryParameters(platform.AsMap(call.Argument("queryParameters")))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		fields := sdk.ParseQueryFeatureFields(stringArg(call, "queryFields"))
		c.run(result, func(ctx context.Context) (any, error) {
			table, err := c.table(ctx, url)
			if err != nil {
				return nil, err
			}
			features, err := c.service.QueryFeatures(ctx, table, q, fields)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(features))
			for _, f := range features {
				out = append(out, featureToMap(table, f))
			}
			return map[string]any{"features": out}, nil
		})

	case "queryFeatureCount":
		q, err := parseQueryParameters(platform.AsMap(call.Argument("queryParameters")))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		c.run(result, func(ctx context.Context) (any, error) {
			count, err := c.service.QueryFeatureCount(ctx, url, q)
			if err != nil {
				return nil, err
			}
			return map[string]any{"count": count}, nil
		})

	case "queryStatisticsAsync":
		q, err := parseStatisticsQueryParameters(platform.AsMap(call.Argument("statisticsQueryParameters")))
		if err != nil {
			platform.ReplyError(result, err)
			return
		}
		c.run(result, func(ctx context.Context) (any, error) {
			records, err := c.service.QueryStatistics(ctx, url, q)
			if err != nil {
				return nil, err
			}
			out := make([]any, 0, len(records))
			for _, r := range records {
				out = append(out, map[string]any{
					"group":      scalarValues(r.Group),
					"statistics": scalarValues(r.Statistics),
				})
			}
			return map[string]any{"results": out}, nil
		})

	default:
		result.NotImplemented()
	}
}

// run submits query to the pool and answers result with its outcome.
func (c *ServiceTableController) run(result platform.Result, query func(ctx context.Context) (any, error)) {
	q := &pendingQuery{result: result}
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.pending[id] = q
	c.mu.Unlock()

	finish := func(v any, err error) {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		q.answer(func(r platform.Result) {
			if err != nil {
				platform.ReplyError(r, err)
				return
			}
			r.Success(v)
		})
	}

	err := c.pool.Submit(func() {
		ctx, cancel := context.WithTimeout(c.runCtx, c.ctx.opts.QueryTimeout)
		defer cancel()
		v, err := query(ctx)
		if c.runCtx.Err() != nil {
			return
		}
		c.ctx.post(func() { finish(v, err) })
	})
	if err != nil {
		finish(nil, platform.NewChannelError(platform.CodeError, "query rejected: "+err.Error()))
	}
}

// table returns the cached metadata for url, loading it on first use.
func (c *ServiceTableController) table(ctx context.Context, url string) (*sdk.FeatureTable, error) {
	if t, ok := c.tables.Get(url); ok {
		return t, nil
	}
	t, err := c.service.LoadTable(ctx, url)
	if err != nil {
		return nil, err
	}
	c.tables.SetIfAbsent(url, t)
	t, _ = c.tables.Get(url)
	return t, nil
}

// parseQueryParameters reads a queryParameters map. A missing
// isReturnGeometry defaults to true; an unknown spatialRelationship is
// ignored.
func parseQueryParameters(m map[string]any) (sdk.QueryParameters, error) {
	q := sdk.QueryParameters{ReturnGeometry: true}
	q.WhereClause, _ = m["whereClause"].(string)
	if s, ok := m["spatialRelationship"].(string); ok {
		if rel, ok := sdk.ParseSpatialRelationship(s); ok {
			q.SpatialRelationship = rel
		}
	}
	if g, ok := m["geometry"]; ok && g != nil {
		geometry, ok := g.(map[string]any)
		if !ok {
			return q, platform.InvalidArgs("geometry must be a map")
		}
		if _, err := sdk.ParseGeometry(geometry); err != nil {
			return q, platform.InvalidArgs("geometry: %v", err)
		}
		q.Geometry = geometry
	}
	if v, ok := m["isReturnGeometry"].(bool); ok {
		q.ReturnGeometry = v
	}
	q.MaxFeatures, _ = platform.AsInt(m["maxFeatures"])
	q.ResultOffset, _ = platform.AsInt(m["resultOffset"])
	return q, nil
}

func parseStatisticsQueryParameters(m map[string]any) (sdk.StatisticsQueryParameters, error) {
	base, err := parseQueryParameters(m)
	if err != nil {
		return sdk.StatisticsQueryParameters{}, err
	}
	q := sdk.StatisticsQueryParameters{
		WhereClause:         base.WhereClause,
		Geometry:            base.Geometry,
		SpatialRelationship: base.SpatialRelationship,
		GroupByFieldNames:   platform.AsStrings(m["groupByFieldNames"]),
	}
	for _, raw := range platform.AsSlice(m["statisticDefinitions"]) {
		d := platform.AsMap(raw)
		fieldName, _ := d["fieldName"].(string)
		statType, _ := d["statisticType"].(string)
		alias, _ := d["outputAlias"].(string)
		q.Definitions = append(q.Definitions, sdk.StatisticDefinition{
			FieldName:   fieldName,
			Type:        sdk.ParseStatisticType(statType),
			OutputAlias: alias,
		})
	}
	for _, raw := range platform.AsSlice(m["orderByFields"]) {
		o := platform.AsMap(raw)
		fieldName, _ := o["fieldName"].(string)
		order, _ := o["sortOrder"].(string)
		switch sdk.SortOrder(order) {
		case sdk.SortAscending, sdk.SortDescending:
		default:
			return q, platform.InvalidArgs("unsupported sortOrder %q", order)
		}
		q.OrderByFields = append(q.OrderByFields, sdk.OrderBy{FieldName: fieldName, Order: sdk.SortOrder(order)})
	}
	return q, nil
}

// scalarValues keeps the string and numeric entries of m.
func scalarValues(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if isScalar(v) {
			out[k] = v
		}
	}
	return out
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, float64, float32, int, int64, int32, int16:
		return true
	default:
		return false
	}
}

// flutterFieldType maps a field type to the host's field type names.
func flutterFieldType(t sdk.FieldType) string {
	switch t {
	case sdk.FieldShort, sdk.FieldInteger, sdk.FieldFloat, sdk.FieldDouble:
		return "number"
	case sdk.FieldText:
		return "text"
	case sdk.FieldDate:
		return "date"
	case sdk.FieldOID:
		return "oid"
	case sdk.FieldGUID:
		return "guid"
	case sdk.FieldGlobalID:
		return "globalid"
	case sdk.FieldBlob, sdk.FieldGeometry, sdk.FieldRaster, sdk.FieldXML:
		return "ignore"
	default:
		return "unknown"
	}
}

// featureToMap renders a feature with its table description. Attribute
// values are coerced to their field's type; values of undeclared or
// non-scalar fields become nil.
func featureToMap(table *sdk.FeatureTable, f sdk.Feature) map[string]any {
	fields := make([]any, 0, len(table.Fields))
	for _, field := range table.Fields {
		fields = append(fields, map[string]any{
			"alias":     field.Alias,
			"fieldType": flutterFieldType(field.Type),
			"name":      field.Name,
		})
	}
	featureTypes := make([]any, 0, len(table.FeatureTypes))
	for _, ft := range table.FeatureTypes {
		if isScalar(ft.ID) {
			featureTypes = append(featureTypes, map[string]any{"id": ft.ID, "name": ft.Name})
		}
	}

	attributes := make(map[string]any, len(f.Attributes))
	for key, value := range f.Attributes {
		field, ok := table.Field(key)
		if !ok {
			attributes[key] = nil
			continue
		}
		attributes[key] = coerceAttribute(field.Type, value)
	}

	center := map[string]any{"x": nil, "y": nil}
	if f.Geometry != nil {
		if g, err := sdk.ParseGeometry(f.Geometry); err == nil {
			if env, err := sdk.Extent(g); err == nil {
				c := env.Center()
				center = map[string]any{"x": c.X, "y": c.Y}
			}
		}
	}

	return map[string]any{
		"geometry":    f.Geometry,
		"centerPoint": center,
		"featureTable": map[string]any{
			"displayName":  table.DisplayName,
			"tableName":    table.TableName,
			"fields":       fields,
			"featureTypes": featureTypes,
		},
		"attributes": attributes,
	}
}

func coerceAttribute(t sdk.FieldType, v any) any {
	switch t {
	case sdk.FieldShort, sdk.FieldInteger, sdk.FieldFloat, sdk.FieldDouble:
		if n, ok := platform.AsFloat64(v); ok {
			return n
		}
	case sdk.FieldOID, sdk.FieldDate:
		if n, ok := platform.AsInt64(v); ok {
			return n
		}
	case sdk.FieldText, sdk.FieldGUID, sdk.FieldGlobalID:
		if s, ok := v.(string); ok {
			return s
		}
	}
	return nil
}
