package sdk

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// LatitudeLongitudeFormat selects how FormatLatitudeLongitude renders angles.
type LatitudeLongitudeFormat string

const (
	FormatDecimalDegrees        LatitudeLongitudeFormat = "DECIMAL_DEGREES"
	FormatDegreesDecimalMinutes LatitudeLongitudeFormat = "DEGREES_DECIMAL_MINUTES"
	FormatDegreesMinutesSeconds LatitudeLongitudeFormat = "DEGREES_MINUTES_SECONDS"
)

// ErrInvalidCoordinates is returned for coordinate strings that cannot be parsed.
var ErrInvalidCoordinates = errors.New("invalid coordinate string")

// FormatLatitudeLongitude renders p as a latitude/longitude string, e.g.
// "55.75N 037.62E" in decimal degrees with two decimal places.
func FormatLatitudeLongitude(p Point, format LatitudeLongitudeFormat, decimals int) (string, error) {
	g, err := ToGeographic(p)
	if err != nil {
		return "", err
	}
	if decimals < 0 {
		decimals = 0
	}
	lat := formatAngle(math.Abs(g.Y), 2, format, decimals) + hemisphere(g.Y, 'N', 'S')
	lon := formatAngle(math.Abs(g.X), 3, format, decimals) + hemisphere(g.X, 'E', 'W')
	return lat + " " + lon, nil
}

func hemisphere(v float64, pos, neg byte) string {
	if v < 0 {
		return string(neg)
	}
	return string(pos)
}

// maxSubunitDecimals bounds the fixed-point arithmetic in formatAngle.
const maxSubunitDecimals = 9

// formatAngle rounds deg to the last rendered unit before splitting it,
// so 10.9999999 renders as 11 00 00.00 rather than 10 59 60.00.
func formatAngle(deg float64, width int, format LatitudeLongitudeFormat, decimals int) string {
	if format == FormatDegreesDecimalMinutes || format == FormatDegreesMinutesSeconds {
		decimals = min(decimals, maxSubunitDecimals)
	}
	// minutes and seconds always carry two integer digits
	sub := 2
	if decimals > 0 {
		sub = decimals + 3
	}
	scale := int64(math.Pow10(decimals))
	switch format {
	case FormatDegreesDecimalMinutes:
		units := int64(math.Round(deg * 60 * float64(scale)))
		perDegree := 60 * scale
		m := float64(units%perDegree) / float64(scale)
		return fmt.Sprintf("%0*d %0*.*f", width, units/perDegree, sub, decimals, m)
	case FormatDegreesMinutesSeconds:
		units := int64(math.Round(deg * 3600 * float64(scale)))
		perDegree, perMinute := 3600*scale, 60*scale
		rem := units % perDegree
		s := float64(rem%perMinute) / float64(scale)
		return fmt.Sprintf("%0*d %02d %0*.*f", width, units/perDegree, rem/perMinute, sub, decimals, s)
	default:
		if decimals > 0 {
			width += decimals + 1
		}
		return fmt.Sprintf("%0*.*f", width, decimals, deg)
	}
}

var hemispherePattern = regexp.MustCompile(`^\s*([0-9.\s°'"]+?)\s*([NS])[\s,]*([0-9.\s°'"]+?)\s*([EW])\s*$`)

// ParseLatitudeLongitude reads a latitude/longitude string in any of the
// LatitudeLongitudeFormat shapes, or a bare "lat lon" decimal pair, and
// returns a WGS84 point.
func ParseLatitudeLongitude(s string) (Point, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	var lat, lon float64

	if m := hemispherePattern.FindStringSubmatch(upper); m != nil {
		var err error
		if lat, err = parseAngle(m[1]); err != nil {
			return Point{}, err
		}
		if lon, err = parseAngle(m[3]); err != nil {
			return Point{}, err
		}
		if m[2] == "S" {
			lat = -lat
		}
		if m[4] == "W" {
			lon = -lon
		}
	} else {
		fields := strings.Fields(strings.ReplaceAll(upper, ",", " "))
		if len(fields) != 2 {
			return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
		}
		var err1, err2 error
		lat, err1 = strconv.ParseFloat(fields[0], 64)
		lon, err2 = strconv.ParseFloat(fields[1], 64)
		if err1 != nil || err2 != nil {
			return Point{}, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
		}
	}

	if math.Abs(lat) > 90 || math.Abs(lon) > 180 {
		return Point{}, fmt.Errorf("%w: %q out of range", ErrInvalidCoordinates, s)
	}
	return Point{X: lon, Y: lat, WKID: WKIDWGS84}, nil
}

func parseAngle(s string) (float64, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '°' || r == '\'' || r == '"'
	})
	if len(fields) == 0 || len(fields) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
	}
	var deg float64
	scale := 1.0
	for _, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidCoordinates, s)
		}
		deg += v / scale
		scale *= 60
	}
	return deg, nil
}
