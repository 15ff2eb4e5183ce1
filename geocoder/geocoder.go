package geocoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/royalcat/rgeotile/geomodel"
	"github.com/royalcat/rgeotile/tiles"
	"github.com/sourcegraph/conc/iter"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MaxDistance is the radius in meters a place must be strictly inside of to be reported.
const MaxDistance float64 = 25000

var ErrInvalidCoordinate = errors.New("coordinate out of range")

var tracer = otel.Tracer("github.com/royalcat/rgeotile/geocoder")

type Geocoder struct {
	store tiles.Store

	maxDistance float64
	concurrency int
	distance    func(a, b geomodel.Coordinate) float64
	logger      *slog.Logger
}

// Lookup returns the name of the nearest place or geomodel.Nowhere.
func (g *Geocoder) Lookup(ctx context.Context, lat, lon float64) (string, error) {
	m, ok, err := g.Nearest(ctx, lat, lon)
	if err != nil {
		return "", err
	}
	if !ok {
		return geomodel.Nowhere, nil
	}
	return m.Name, nil
}

// Nearest returns the closest place strictly within the search radius.
func (g *Geocoder) Nearest(ctx context.Context, lat, lon float64) (m geomodel.Match, ok bool, err error) {
	ctx, span := tracer.Start(ctx, "geocoder.Lookup", trace.WithAttributes(
		attribute.Float64("lat", lat),
		attribute.Float64("lon", lon),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Bool("found", ok))
		}
		span.End()
	}()

	query := geomodel.Coordinate{Lat: lat, Lon: lon}
	if !query.Valid() {
		return m, false, fmt.Errorf("%w: lat %v, lon %v", ErrInvalidCoordinate, lat, lon)
	}

	addrs := tiles.Neighborhood(query)
	candidates, err := g.loadAll(ctx, addrs)
	if err != nil {
		return m, false, err
	}

	m, ok = nearest(query, candidates, g.maxDistance, g.distance)
	g.logger.DebugContext(ctx, "lookup",
		"lat", lat, "lon", lon,
		"tile", addrs[0].String(),
		"candidates", len(candidates),
		"found", ok,
	)
	return m, ok, nil
}

// loadAll loads the tiles concurrently and concatenates them in address order.
// The first failure fails the whole set; the remaining loads see a cancelled context.
func (g *Geocoder) loadAll(ctx context.Context, addrs [4]tiles.Address) ([]geomodel.Place, error) {
	var loaded [4][]geomodel.Place

	eg, ctx := errgroup.WithContext(ctx)
	for i, addr := range addrs {
		eg.Go(func() error {
			places, err := g.store.Load(ctx, addr)
			if err != nil {
				if ctx.Err() == nil {
					g.logger.WarnContext(ctx, "tile load failed", "tile", addr.String(), "error", err.Error())
				}
				return err
			}
			loaded[i] = places
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	n := 0
	for _, places := range loaded {
		n += len(places)
	}
	candidates := make([]geomodel.Place, 0, n)
	for _, places := range loaded {
		candidates = append(candidates, places...)
	}
	return candidates, nil
}

// nearest folds candidates into the closest one strictly below limit. Equal distances
// keep the earlier candidate.
func nearest(query geomodel.Coordinate, candidates []geomodel.Place, limit float64, distance func(a, b geomodel.Coordinate) float64) (geomodel.Match, bool) {
	best := geomodel.Match{Distance: limit}
	found := false
	for _, p := range candidates {
		d := distance(query, p.Coordinate())
		if d < best.Distance {
			best = geomodel.Match{Place: p, Distance: d}
			found = true
		}
	}
	if !found {
		return geomodel.Match{}, false
	}
	return best, true
}

// LookupMany resolves every coordinate, results follow the input order.
// Any failed lookup fails the whole batch.
func (g *Geocoder) LookupMany(ctx context.Context, coords []geomodel.Coordinate) ([]string, error) {
	mapper := iter.Mapper[geomodel.Coordinate, string]{MaxGoroutines: g.concurrency}
	return mapper.MapErr(coords, func(c *geomodel.Coordinate) (string, error) {
		return g.Lookup(ctx, c.Lat, c.Lon)
	})
}

func defaultConcurrency() int {
	return runtime.GOMAXPROCS(0)
}
