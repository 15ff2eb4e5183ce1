package geomodel

import (
	"math"

	"github.com/paulmach/orb"
)

// Nowhere is returned when no place lies within the qualification radius.
const Nowhere = "Middle of Nowhere"

type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid reports whether the coordinate is inside [-90,90]x[-180,180].
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

type Place struct {
	Name string
	Lat  float64
	Lon  float64
}

func (p Place) Coordinate() Coordinate {
	return Coordinate{Lat: p.Lat, Lon: p.Lon}
}

// Match is the nearest qualifying place for a query together with its distance in meters.
type Match struct {
	Place
	Distance float64
}
