package prayer

import (
	"fmt"
	"math"
)

// Kaaba is the reference point for the qibla.
var Kaaba = Coordinates{Latitude: 21.4225, Longitude: 39.8262}

// Coordinates is a point in decimal degrees, north and east positive.
type Coordinates struct {
	Latitude  float64
	Longitude float64
}

// Valid reports whether c lies within the usual latitude/longitude bounds.
func (c Coordinates) Valid() bool {
	return !math.IsNaN(c.Latitude) && !math.IsNaN(c.Longitude) &&
		c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinates) String() string {
	ns, ew := 'N', 'E'
	lat, lon := c.Latitude, c.Longitude
	if lat < 0 {
		ns, lat = 'S', -lat
	}
	if lon < 0 {
		ew, lon = 'W', -lon
	}
	return fmt.Sprintf("%.4f°%c, %.4f°%c", lat, ns, lon, ew)
}

// QiblaBearing is the great-circle initial bearing from (lat, lon) to the
// Kaaba in degrees clockwise from true north, in [0, 360).
func QiblaBearing(lat, lon float64) float64 {
	phi1 := lat * math.Pi / 180
	phi2 := Kaaba.Latitude * math.Pi / 180
	dLambda := (Kaaba.Longitude - lon) * math.Pi / 180

	theta := math.Atan2(
		math.Sin(dLambda),
		math.Cos(phi1)*math.Tan(phi2)-math.Sin(phi1)*math.Cos(dLambda),
	)
	deg := math.Mod(theta*180/math.Pi+360, 360)
	if deg >= 360 {
		deg = 0
	}
	return deg
}

var compassPoints = [...]string{
	"N", "NNE", "NE", "ENE", "E", "ESE", "SE", "SSE",
	"S", "SSW", "SW", "WSW", "W", "WNW", "NW", "NNW",
}

// CompassPoint names the 16-wind direction closest to bearing.
func CompassPoint(bearing float64) string {
	b := math.Mod(bearing, 360)
	if b < 0 {
		b += 360
	}
	i := int(math.Floor(b/22.5+0.5)) % len(compassPoints)
	return compassPoints[i]
}
