package sdk

import (
	"errors"
	"fmt"
	"math"
)

// Well-known spatial reference IDs.
const (
	WKIDWGS84          = 4326
	WKIDWebMercator    = 3857
	wkidWebMercatorOld = 102100
)

const earthRadiusMeters = 6371008.8

// ErrInvalidGeometry is returned for geometry JSON that cannot be read.
var ErrInvalidGeometry = errors.New("invalid geometry")

// GeometryType names the shape of a Geometry.
type GeometryType string

const (
	GeometryPoint      GeometryType = "point"
	GeometryMultipoint GeometryType = "multipoint"
	GeometryPolyline   GeometryType = "polyline"
	GeometryPolygon    GeometryType = "polygon"
	GeometryEnvelope   GeometryType = "envelope"
)

// Point is a coordinate pair in some spatial reference.
type Point struct {
	X    float64
	Y    float64
	WKID int
}

// Geometry is a parsed ArcGIS JSON geometry. Parts holds the single point,
// the multipoint, each path of a polyline, each ring of a polygon or the
// two corners of an envelope.
type Geometry struct {
	Type  GeometryType
	Parts [][]Point
	WKID  int
}

// Envelope is an axis-aligned extent.
type Envelope struct {
	XMin, YMin, XMax, YMax float64
	WKID                   int
}

// Center returns the center point of the envelope.
func (e Envelope) Center() Point {
	return Point{X: (e.XMin + e.XMax) / 2, Y: (e.YMin + e.YMax) / 2, WKID: e.WKID}
}

// ToMap renders the envelope as ArcGIS JSON.
func (e Envelope) ToMap() map[string]any {
	return map[string]any{
		"xmin":             e.XMin,
		"ymin":             e.YMin,
		"xmax":             e.XMax,
		"ymax":             e.YMax,
		"spatialReference": map[string]any{"wkid": e.WKID},
	}
}

// ToMap renders the point as ArcGIS JSON.
func (p Point) ToMap() map[string]any {
	return map[string]any{
		"x":                p.X,
		"y":                p.Y,
		"spatialReference": map[string]any{"wkid": p.WKID},
	}
}

// ParsePoint reads an ArcGIS JSON point.
func ParsePoint(v any) (Point, error) {
	g, err := ParseGeometry(v)
	if err != nil {
		return Point{}, err
	}
	if g.Type != GeometryPoint {
		return Point{}, fmt.Errorf("%w: expected point, got %s", ErrInvalidGeometry, g.Type)
	}
	return g.Parts[0][0], nil
}

// ParseGeometry reads an ArcGIS JSON geometry object.
func ParseGeometry(v any) (Geometry, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Geometry{}, fmt.Errorf("%w: expected object, got %T", ErrInvalidGeometry, v)
	}
	wkid := WKIDWGS84
	if sr, ok := m["spatialReference"].(map[string]any); ok {
		if id, ok := number(sr["wkid"]); ok {
			wkid = int(id)
		}
	}

	switch {
	case m["x"] != nil && m["y"] != nil:
		x, okX := number(m["x"])
		y, okY := number(m["y"])
		if !okX || !okY {
			return Geometry{}, fmt.Errorf("%w: point coordinates must be numbers", ErrInvalidGeometry)
		}
		return Geometry{Type: GeometryPoint, Parts: [][]Point{{{X: x, Y: y, WKID: wkid}}}, WKID: wkid}, nil

	case m["points"] != nil:
		pts, err := parseCoords(m["points"], wkid)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Type: GeometryMultipoint, Parts: [][]Point{pts}, WKID: wkid}, nil

	case m["paths"] != nil:
		parts, err := parseParts(m["paths"], wkid)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Type: GeometryPolyline, Parts: parts, WKID: wkid}, nil

	case m["rings"] != nil:
		parts, err := parseParts(m["rings"], wkid)
		if err != nil {
			return Geometry{}, err
		}
		return Geometry{Type: GeometryPolygon, Parts: parts, WKID: wkid}, nil

	case m["xmin"] != nil:
		xmin, ok1 := number(m["xmin"])
		ymin, ok2 := number(m["ymin"])
		xmax, ok3 := number(m["xmax"])
		ymax, ok4 := number(m["ymax"])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return Geometry{}, fmt.Errorf("%w: envelope bounds must be numbers", ErrInvalidGeometry)
		}
		return Geometry{
			Type:  GeometryEnvelope,
			Parts: [][]Point{{{X: xmin, Y: ymin, WKID: wkid}, {X: xmax, Y: ymax, WKID: wkid}}},
			WKID:  wkid,
		}, nil
	}
	return Geometry{}, fmt.Errorf("%w: unrecognized shape", ErrInvalidGeometry)
}

func parseParts(v any, wkid int) ([][]Point, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: parts must be a list", ErrInvalidGeometry)
	}
	parts := make([][]Point, 0, len(list))
	for _, item := range list {
		pts, err := parseCoords(item, wkid)
		if err != nil {
			return nil, err
		}
		parts = append(parts, pts)
	}
	return parts, nil
}

func parseCoords(v any, wkid int) ([]Point, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: coordinates must be a list", ErrInvalidGeometry)
	}
	pts := make([]Point, 0, len(list))
	for _, item := range list {
		pair, ok := item.([]any)
		if !ok || len(pair) < 2 {
			return nil, fmt.Errorf("%w: coordinate must be [x, y]", ErrInvalidGeometry)
		}
		x, okX := number(pair[0])
		y, okY := number(pair[1])
		if !okX || !okY {
			return nil, fmt.Errorf("%w: coordinate values must be numbers", ErrInvalidGeometry)
		}
		pts = append(pts, Point{X: x, Y: y, WKID: wkid})
	}
	return pts, nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Extent returns the bounding envelope of g.
func Extent(g Geometry) (Envelope, error) {
	first := true
	env := Envelope{WKID: g.WKID}
	for _, part := range g.Parts {
		for _, p := range part {
			if first {
				env.XMin, env.XMax, env.YMin, env.YMax = p.X, p.X, p.Y, p.Y
				first = false
				continue
			}
			env.XMin = math.Min(env.XMin, p.X)
			env.XMax = math.Max(env.XMax, p.X)
			env.YMin = math.Min(env.YMin, p.Y)
			env.YMax = math.Max(env.YMax, p.Y)
		}
	}
	if first {
		return Envelope{}, fmt.Errorf("%w: empty geometry", ErrInvalidGeometry)
	}
	return env, nil
}

// ToGeographic converts p to WGS84 longitude/latitude degrees.
func ToGeographic(p Point) (Point, error) {
	switch p.WKID {
	case WKIDWGS84, 0:
		return Point{X: p.X, Y: p.Y, WKID: WKIDWGS84}, nil
	case WKIDWebMercator, wkidWebMercatorOld:
		const r = 6378137.0
		lon := p.X / r * 180 / math.Pi
		lat := (2*math.Atan(math.Exp(p.Y/r)) - math.Pi/2) * 180 / math.Pi
		return Point{X: lon, Y: lat, WKID: WKIDWGS84}, nil
	default:
		return Point{}, fmt.Errorf("%w: unsupported spatial reference %d", ErrInvalidGeometry, p.WKID)
	}
}

// GeodeticDistance is the result of DistanceGeodetic.
type GeodeticDistance struct {
	// Distance in meters.
	Distance float64
	// Azimuth1 is the bearing at the first point, in degrees.
	Azimuth1 float64
	// Azimuth2 is the bearing at the second point toward the first, in degrees.
	Azimuth2 float64
}

// DistanceGeodetic computes the great-circle distance and azimuths
// between two points on a spherical earth.
func DistanceGeodetic(a, b Point) (GeodeticDistance, error) {
	ga, err := ToGeographic(a)
	if err != nil {
		return GeodeticDistance{}, err
	}
	gb, err := ToGeographic(b)
	if err != nil {
		return GeodeticDistance{}, err
	}
	return GeodeticDistance{
		Distance: haversine(ga, gb),
		Azimuth1: bearing(ga, gb),
		Azimuth2: bearing(gb, ga),
	}, nil
}

// LengthGeodetic sums the geodetic length of every part of g.
func LengthGeodetic(g Geometry) (float64, error) {
	var total float64
	for _, part := range g.Parts {
		for i := 1; i < len(part); i++ {
			d, err := DistanceGeodetic(part[i-1], part[i])
			if err != nil {
				return 0, err
			}
			total += d.Distance
		}
	}
	return total, nil
}

func haversine(a, b Point) float64 {
	lat1, lat2 := radians(a.Y), radians(b.Y)
	dLat := lat2 - lat1
	dLon := radians(b.X - a.X)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

func bearing(a, b Point) float64 {
	lat1, lat2 := radians(a.Y), radians(b.Y)
	dLon := radians(b.X - a.X)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}
