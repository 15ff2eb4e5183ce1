package geocoder

import (
	"log/slog"

	"github.com/royalcat/rgeotile/geomodel"
)

type options struct {
	maxDistance float64
	concurrency int
	distance    func(a, b geomodel.Coordinate) float64
	logger      *slog.Logger
}

type Option interface {
	apply(*options)
}

type maxDistance float64

func (r maxDistance) apply(o *options) {
	o.maxDistance = float64(r)
}

// Default: 25000 meters
func WithMaxDistance(meters float64) Option {
	return maxDistance(meters)
}

type concurrency int

func (c concurrency) apply(o *options) {
	o.concurrency = int(c)
}

// WithConcurrency bounds the number of queries LookupMany runs at once.
// Values below 1 fall back to the default, GOMAXPROCS.
func WithConcurrency(n int) Option {
	return concurrency(n)
}

type loggerOption struct {
	logger *slog.Logger
}

func (l loggerOption) apply(o *options) {
	o.logger = l.logger
}

func WithLogger(logger *slog.Logger) Option {
	return loggerOption{logger: logger}
}

type distanceFunc func(a, b geomodel.Coordinate) float64

func (f distanceFunc) apply(o *options) {
	o.distance = f
}

// withDistance replaces the metric, tests only.
func withDistance(f func(a, b geomodel.Coordinate) float64) Option {
	return distanceFunc(f)
}
