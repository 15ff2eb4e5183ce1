package geocoder

import (
	"math"

	"github.com/royalcat/rgeotile/geomodel"
)

// EarthRadius is the mean Earth radius in meters.
const EarthRadius = 6371009.0

const rads = math.Pi / 180

// Distance returns the great-circle distance between a and b in meters on a spherical
// Earth. The atan2 form keeps precision for both coincident and antipodal points.
// Distance(a, b) == Distance(b, a) exactly.
func Distance(a, b geomodel.Coordinate) float64 {
	if a.Lat > b.Lat || (a.Lat == b.Lat && a.Lon > b.Lon) {
		a, b = b, a
	}

	lat1, lon1 := a.Lat*rads, a.Lon*rads
	lat2, lon2 := b.Lat*rads, b.Lon*rads

	dLon := lon2 - lon1
	sinDLon, cosDLon := math.Sincos(dLon)
	sinLat1, cosLat1 := math.Sincos(lat1)
	sinLat2, cosLat2 := math.Sincos(lat2)

	x := cosLat2 * sinDLon
	y := cosLat1*sinLat2 - sinLat1*cosLat2*cosDLon

	return EarthRadius * math.Atan2(
		math.Sqrt(x*x+y*y),
		sinLat1*sinLat2+cosLat1*cosLat2*cosDLon,
	)
}
