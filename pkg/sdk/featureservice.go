package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// SpatialRelationship is the spatial filter applied by a query.
type SpatialRelationship string

const (
	SpatialRelUnknown            SpatialRelationship = "UNKNOWN"
	SpatialRelRelate             SpatialRelationship = "RELATE"
	SpatialRelEquals             SpatialRelationship = "EQUALS"
	SpatialRelDisjoint           SpatialRelationship = "DISJOINT"
	SpatialRelIntersects         SpatialRelationship = "INTERSECTS"
	SpatialRelTouches            SpatialRelationship = "TOUCHES"
	SpatialRelCrosses            SpatialRelationship = "CROSSES"
	SpatialRelWithin             SpatialRelationship = "WITHIN"
	SpatialRelContains           SpatialRelationship = "CONTAINS"
	SpatialRelOverlaps           SpatialRelationship = "OVERLAPS"
	SpatialRelEnvelopeIntersects SpatialRelationship = "ENVELOPE_INTERSECTS"
	SpatialRelIndexIntersects    SpatialRelationship = "INDEX_INTERSECTS"
)

var restSpatialRel = map[SpatialRelationship]string{
	SpatialRelRelate:             "esriSpatialRelRelation",
	SpatialRelEquals:             "esriSpatialRelEquals",
	SpatialRelDisjoint:           "esriSpatialRelDisjoint",
	SpatialRelIntersects:         "esriSpatialRelIntersects",
	SpatialRelTouches:            "esriSpatialRelTouches",
	SpatialRelCrosses:            "esriSpatialRelCrosses",
	SpatialRelWithin:             "esriSpatialRelWithin",
	SpatialRelContains:           "esriSpatialRelContains",
	SpatialRelOverlaps:           "esriSpatialRelOverlaps",
	SpatialRelEnvelopeIntersects: "esriSpatialRelEnvelopeIntersects",
	SpatialRelIndexIntersects:    "esriSpatialRelIndexIntersects",
}

// ParseSpatialRelationship maps a wire string to a SpatialRelationship.
// Unknown strings report false.
func ParseSpatialRelationship(s string) (SpatialRelationship, bool) {
	rel := SpatialRelationship(s)
	if rel == SpatialRelUnknown {
		return rel, true
	}
	_, ok := restSpatialRel[rel]
	return rel, ok
}

// QueryFeatureFields selects which attributes a feature query loads.
type QueryFeatureFields string

const (
	QueryFieldsIDsOnly QueryFeatureFields = "IDS_ONLY"
	QueryFieldsMinimum QueryFeatureFields = "MINIMUM"
	QueryFieldsLoadAll QueryFeatureFields = "LOAD_ALL"
)

// ParseQueryFeatureFields maps a wire string, defaulting to LOAD_ALL.
func ParseQueryFeatureFields(s string) QueryFeatureFields {
	switch f := QueryFeatureFields(s); f {
	case QueryFieldsIDsOnly, QueryFieldsMinimum:
		return f
	default:
		return QueryFieldsLoadAll
	}
}

// QueryParameters filters a feature or count query.
type QueryParameters struct {
	WhereClause         string
	SpatialRelationship SpatialRelationship
	Geometry            map[string]any
	ReturnGeometry      bool
	MaxFeatures         int
	ResultOffset        int
}

// StatisticType is an aggregate computed by a statistics query.
type StatisticType string

const (
	StatisticAverage           StatisticType = "AVERAGE"
	StatisticCount             StatisticType = "COUNT"
	StatisticMaximum           StatisticType = "MAXIMUM"
	StatisticMinimum           StatisticType = "MINIMUM"
	StatisticStandardDeviation StatisticType = "STANDARD_DEVIATION"
	StatisticSum               StatisticType = "SUM"
	StatisticVariance          StatisticType = "VARIANCE"
)

var restStatistic = map[StatisticType]string{
	StatisticAverage:           "avg",
	StatisticCount:             "count",
	StatisticMaximum:           "max",
	StatisticMinimum:           "min",
	StatisticStandardDeviation: "stddev",
	StatisticSum:               "sum",
	StatisticVariance:          "var",
}

// ParseStatisticType maps a wire string, defaulting to SUM.
func ParseStatisticType(s string) StatisticType {
	if _, ok := restStatistic[StatisticType(s)]; ok {
		return StatisticType(s)
	}
	return StatisticSum
}

// StatisticDefinition is one aggregate of a statistics query.
type StatisticDefinition struct {
	FieldName   string
	Type        StatisticType
	OutputAlias string
}

// SortOrder orders statistics results.
type SortOrder string

const (
	SortAscending  SortOrder = "ASCENDING"
	SortDescending SortOrder = "DESCENDING"
)

// OrderBy orders statistics results by one field.
type OrderBy struct {
	FieldName string
	Order     SortOrder
}

// StatisticsQueryParameters describes a statistics query.
type StatisticsQueryParameters struct {
	Definitions         []StatisticDefinition
	WhereClause         string
	Geometry            map[string]any
	SpatialRelationship SpatialRelationship
	GroupByFieldNames   []string
	OrderByFields       []OrderBy
}

// StatisticRecord is one row of a statistics result.
type StatisticRecord struct {
	Group      map[string]any
	Statistics map[string]any
}

// FieldType is the storage type of a table field.
type FieldType string

const (
	FieldUnknown  FieldType = "esriFieldTypeUnknown"
	FieldShort    FieldType = "esriFieldTypeSmallInteger"
	FieldInteger  FieldType = "esriFieldTypeInteger"
	FieldOID      FieldType = "esriFieldTypeOID"
	FieldFloat    FieldType = "esriFieldTypeSingle"
	FieldDouble   FieldType = "esriFieldTypeDouble"
	FieldDate     FieldType = "esriFieldTypeDate"
	FieldText     FieldType = "esriFieldTypeString"
	FieldGUID     FieldType = "esriFieldTypeGUID"
	FieldGlobalID FieldType = "esriFieldTypeGlobalID"
	FieldBlob     FieldType = "esriFieldTypeBlob"
	FieldGeometry FieldType = "esriFieldTypeGeometry"
	FieldRaster   FieldType = "esriFieldTypeRaster"
	FieldXML      FieldType = "esriFieldTypeXML"
)

// Field describes one column of a feature table.
type Field struct {
	Name  string
	Alias string
	Type  FieldType
}

// FeatureType is a subtype declared by a feature table.
type FeatureType struct {
	ID   any
	Name string
}

// FeatureTable is the loaded metadata of a feature service layer.
type FeatureTable struct {
	URL           string
	DisplayName   string
	TableName     string
	ObjectIDField string
	Fields        []Field
	FeatureTypes  []FeatureType
}

// Field returns the named field, if declared.
func (t *FeatureTable) Field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Feature is one row returned by a feature query.
type Feature struct {
	Attributes map[string]any
	// Geometry is the ArcGIS JSON geometry, nil when not requested.
	Geometry map[string]any
}

// FeatureService is the backend the service table controller queries.
type FeatureService interface {
	LoadTable(ctx context.Context, tableURL string) (*FeatureTable, error)
	QueryFeatures(ctx context.Context, table *FeatureTable, q QueryParameters, fields QueryFeatureFields) ([]Feature, error)
	QueryFeatureCount(ctx context.Context, tableURL string, q QueryParameters) (int64, error)
	QueryStatistics(ctx context.Context, tableURL string, q StatisticsQueryParameters) ([]StatisticRecord, error)
}

// ServiceError is an error object returned by a feature service.
type ServiceError struct {
	Code    int
	Message string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("feature service error %d: %s", e.Code, e.Message)
}

// ErrEmptyURL is returned for queries without a table URL.
var ErrEmptyURL = errors.New("feature table url is empty")

// RESTFeatureService queries ArcGIS REST feature service layers.
type RESTFeatureService struct {
	// Client performs requests. A nil Client uses a client with a 30s timeout.
	Client *http.Client
	// Credentials authenticates requests to the servers they cover. A
	// username credential is exchanged for a token on first use and the
	// token is kept in the cache until it expires.
	Credentials *CredentialCache
	// APIKey returns the token sent to servers without a credential.
	APIKey func() string
}

// tokenLifetime is the expiration requested from generateToken.
const tokenLifetime = 60 * time.Minute

func (s *RESTFeatureService) client() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (s *RESTFeatureService) token(ctx context.Context, tableURL string) (string, error) {
	if s.Credentials != nil {
		if cred, ok := s.Credentials.Get(tableURL); ok {
			if cred.Username == "" || cred.valid(time.Now()) {
				return cred.Token, nil
			}
			cred, err := s.GenerateToken(ctx, cred, tableURL)
			if err != nil {
				return "", err
			}
			s.Credentials.refresh(cred)
			return cred.Token, nil
		}
	}
	if s.APIKey != nil {
		return s.APIKey(), nil
	}
	return "", nil
}

// GenerateToken exchanges the username and password of cred for a token
// issued by the server hosting tableURL. The returned credential carries
// the token and its expiry.
func (s *RESTFeatureService) GenerateToken(ctx context.Context, cred Credential, tableURL string) (Credential, error) {
	endpoint, err := s.tokenURL(ctx, tableURL)
	if err != nil {
		return cred, err
	}
	body, err := s.do(ctx, http.MethodPost, endpoint, url.Values{
		"username":   {cred.Username},
		"password":   {cred.Password},
		"client":     {"requestip"},
		"expiration": {strconv.Itoa(int(tokenLifetime / time.Minute))},
	})
	if err != nil {
		return cred, err
	}
	token := gjson.GetBytes(body, "token").String()
	if token == "" {
		return cred, fmt.Errorf("token service %s returned no token", endpoint)
	}
	cred.Token = token
	cred.Expires = time.Time{}
	if ms := gjson.GetBytes(body, "expires").Int(); ms > 0 {
		cred.Expires = time.UnixMilli(ms)
	}
	return cred, nil
}

// tokenURL returns the generateToken endpoint advertised by the rest/info
// resource of the server hosting tableURL.
func (s *RESTFeatureService) tokenURL(ctx context.Context, tableURL string) (string, error) {
	root, _, ok := strings.Cut(tableURL, "/rest/")
	if !ok {
		return "", fmt.Errorf("no REST root in %s", tableURL)
	}
	body, err := s.do(ctx, http.MethodGet, root+"/rest/info", url.Values{})
	if err != nil {
		return "", err
	}
	if u := gjson.GetBytes(body, "authInfo.tokenServicesUrl").String(); u != "" {
		return u, nil
	}
	return root + "/tokens/generateToken", nil
}

func (s *RESTFeatureService) get(ctx context.Context, endpoint string, params url.Values, tableURL string) ([]byte, error) {
	if tableURL == "" {
		return nil, ErrEmptyURL
	}
	token, err := s.token(ctx, tableURL)
	if err != nil {
		return nil, err
	}
	if token != "" {
		params.Set("token", token)
	}
	return s.do(ctx, http.MethodGet, endpoint, params)
}

func (s *RESTFeatureService) do(ctx context.Context, method, endpoint string, params url.Values) ([]byte, error) {
	params.Set("f", "json")
	var req *http.Request
	var err error
	if method == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, method, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, method, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return nil, err
	}
	resp, err := s.client().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &ServiceError{Code: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("feature service returned malformed JSON from %s", endpoint)
	}
	if e := gjson.GetBytes(body, "error"); e.Exists() {
		return nil, &ServiceError{Code: int(e.Get("code").Int()), Message: e.Get("message").String()}
	}
	return body, nil
}

// LoadTable fetches the layer metadata at tableURL.
func (s *RESTFeatureService) LoadTable(ctx context.Context, tableURL string) (*FeatureTable, error) {
	body, err := s.get(ctx, strings.TrimRight(tableURL, "/"), url.Values{}, tableURL)
	if err != nil {
		return nil, err
	}

	doc := gjson.ParseBytes(body)
	table := &FeatureTable{
		URL:           tableURL,
		DisplayName:   doc.Get("name").String(),
		TableName:     doc.Get("name").String(),
		ObjectIDField: doc.Get("objectIdField").String(),
	}
	doc.Get("fields").ForEach(func(_, f gjson.Result) bool {
		field := Field{
			Name:  f.Get("name").String(),
			Alias: f.Get("alias").String(),
			Type:  FieldType(f.Get("type").String()),
		}
		if field.Type == FieldOID && table.ObjectIDField == "" {
			table.ObjectIDField = field.Name
		}
		table.Fields = append(table.Fields, field)
		return true
	})
	doc.Get("types").ForEach(func(_, t gjson.Result) bool {
		table.FeatureTypes = append(table.FeatureTypes, FeatureType{
			ID:   t.Get("id").Value(),
			Name: t.Get("name").String(),
		})
		return true
	})
	return table, nil
}

func (s *RESTFeatureService) queryValues(q QueryParameters) (url.Values, error) {
	params := url.Values{}
	where := q.WhereClause
	if where == "" {
		where = "1=1"
	}
	params.Set("where", where)
	if q.Geometry != nil {
		g, err := ParseGeometry(q.Geometry)
		if err != nil {
			return nil, err
		}
		geometryJSON, err := json.Marshal(q.Geometry)
		if err != nil {
			return nil, err
		}
		params.Set("geometry", string(geometryJSON))
		params.Set("geometryType", restGeometryType(g.Type))
		params.Set("inSR", strconv.Itoa(g.WKID))
		rel := restSpatialRel[q.SpatialRelationship]
		if rel == "" {
			rel = restSpatialRel[SpatialRelIntersects]
		}
		params.Set("spatialRel", rel)
	}
	return params, nil
}

func restGeometryType(t GeometryType) string {
	switch t {
	case GeometryMultipoint:
		return "esriGeometryMultipoint"
	case GeometryPolyline:
		return "esriGeometryPolyline"
	case GeometryPolygon:
		return "esriGeometryPolygon"
	case GeometryEnvelope:
		return "esriGeometryEnvelope"
	default:
		return "esriGeometryPoint"
	}
}

// QueryFeatures runs a feature query against table.
func (s *RESTFeatureService) QueryFeatures(ctx context.Context, table *FeatureTable, q QueryParameters, fields QueryFeatureFields) ([]Feature, error) {
	params, err := s.queryValues(q)
	if err != nil {
		return nil, err
	}
	switch fields {
	case QueryFieldsIDsOnly, QueryFieldsMinimum:
		out := table.ObjectIDField
		if out == "" {
			out = "*"
		}
		params.Set("outFields", out)
	default:
		params.Set("outFields", "*")
	}
	params.Set("returnGeometry", strconv.FormatBool(q.ReturnGeometry))
	if q.MaxFeatures > 0 {
		params.Set("resultRecordCount", strconv.Itoa(q.MaxFeatures))
	}
	if q.ResultOffset > 0 {
		params.Set("resultOffset", strconv.Itoa(q.ResultOffset))
	}

	body, err := s.get(ctx, strings.TrimRight(table.URL, "/")+"/query", params, table.URL)
	if err != nil {
		return nil, err
	}

	var features []Feature
	gjson.GetBytes(body, "features").ForEach(func(_, f gjson.Result) bool {
		feature := Feature{Attributes: map[string]any{}}
		f.Get("attributes").ForEach(func(k, v gjson.Result) bool {
			feature.Attributes[k.String()] = v.Value()
			return true
		})
		if g := f.Get("geometry"); g.IsObject() {
			if m, ok := g.Value().(map[string]any); ok {
				feature.Geometry = m
			}
		}
		features = append(features, feature)
		return true
	})
	return features, nil
}

// QueryFeatureCount counts the features matching q.
func (s *RESTFeatureService) QueryFeatureCount(ctx context.Context, tableURL string, q QueryParameters) (int64, error) {
	params, err := s.queryValues(q)
	if err != nil {
		return 0, err
	}
	params.Set("returnCountOnly", "true")

	body, err := s.get(ctx, strings.TrimRight(tableURL, "/")+"/query", params, tableURL)
	if err != nil {
		return 0, err
	}
	count := gjson.GetBytes(body, "count")
	if !count.Exists() {
		return 0, fmt.Errorf("feature service count response has no count")
	}
	return count.Int(), nil
}

// QueryStatistics runs an aggregate query.
func (s *RESTFeatureService) QueryStatistics(ctx context.Context, tableURL string, q StatisticsQueryParameters) ([]StatisticRecord, error) {
	params, err := s.queryValues(QueryParameters{
		WhereClause:         q.WhereClause,
		Geometry:            q.Geometry,
		SpatialRelationship: q.SpatialRelationship,
	})
	if err != nil {
		return nil, err
	}

	outStatistics := make([]map[string]string, 0, len(q.Definitions))
	aliases := make(map[string]bool, len(q.Definitions))
	for _, d := range q.Definitions {
		alias := d.OutputAlias
		if alias == "" {
			alias = strings.ToLower(string(d.Type)) + "_" + d.FieldName
		}
		aliases[alias] = true
		outStatistics = append(outStatistics, map[string]string{
			"statisticType":         restStatistic[d.Type],
			"onStatisticField":      d.FieldName,
			"outStatisticFieldName": alias,
		})
	}
	statsJSON, err := json.Marshal(outStatistics)
	if err != nil {
		return nil, err
	}
	params.Set("outStatistics", string(statsJSON))
	if len(q.GroupByFieldNames) > 0 {
		params.Set("groupByFieldsForStatistics", strings.Join(q.GroupByFieldNames, ","))
	}
	if len(q.OrderByFields) > 0 {
		order := make([]string, 0, len(q.OrderByFields))
		for _, o := range q.OrderByFields {
			dir := "ASC"
			if o.Order == SortDescending {
				dir = "DESC"
			}
			order = append(order, o.FieldName+" "+dir)
		}
		params.Set("orderByFields", strings.Join(order, ","))
	}

	body, err := s.get(ctx, strings.TrimRight(tableURL, "/")+"/query", params, tableURL)
	if err != nil {
		return nil, err
	}

	var records []StatisticRecord
	gjson.GetBytes(body, "features").ForEach(func(_, f gjson.Result) bool {
		rec := StatisticRecord{Group: map[string]any{}, Statistics: map[string]any{}}
		f.Get("attributes").ForEach(func(k, v gjson.Result) bool {
			if aliases[k.String()] {
				rec.Statistics[k.String()] = v.Value()
			} else {
				rec.Group[k.String()] = v.Value()
			}
			return true
		})
		records = append(records, rec)
		return true
	})
	return records, nil
}
