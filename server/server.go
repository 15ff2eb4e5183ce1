package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/fasthttp/router"
	"github.com/mailru/easyjson"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/royalcat/rgeotile/geocoder"
	"github.com/royalcat/rgeotile/geomodel"
	"github.com/royalcat/rgeotile/tiles"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const MaxBodySize = 32 * 1000 * 1000 // 32MB

// Run serves the geocoder until ctx is cancelled.
func Run(ctx context.Context, address string, geo *geocoder.Geocoder) error {
	log := slog.Default()

	s, err := newServer(geo, log)
	if err != nil {
		return err
	}

	server := &fasthttp.Server{
		ReadTimeout:        time.Second,
		MaxRequestBodySize: MaxBodySize,
		Handler:            s.router().Handler,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening", "address", address)
		serveErr <- server.ListenAndServe(address)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return server.ShutdownWithContext(shutdownCtx)
}

type server struct {
	geo *geocoder.Geocoder
	log *slog.Logger

	metricPlaceCallCount      metric.Int64Counter
	metricMultiPlaceCallCount metric.Int64Counter
	metricPlacesResolved      metric.Int64Counter
	metricLookupErrors        metric.Int64Counter
}

func newServer(geo *geocoder.Geocoder, log *slog.Logger) (*server, error) {
	meter := otel.Meter("github.com/royalcat/rgeotile/server")

	placeCallCount, err := meter.Int64Counter("http_place_call_total")
	if err != nil {
		return nil, err
	}
	multiPlaceCallCount, err := meter.Int64Counter("http_place_multi_call_total")
	if err != nil {
		return nil, err
	}
	placesResolved, err := meter.Int64Counter("places_resolved_total")
	if err != nil {
		return nil, err
	}
	lookupErrors, err := meter.Int64Counter("lookup_errors_total")
	if err != nil {
		return nil, err
	}

	return &server{
		geo: geo,
		log: log,

		metricPlaceCallCount:      placeCallCount,
		metricMultiPlaceCallCount: multiPlaceCallCount,
		metricPlacesResolved:      placesResolved,
		metricLookupErrors:        lookupErrors,
	}, nil
}

func (s *server) router() *router.Router {
	r := router.New()
	r.GET("/rgeocode/place/{lat}/{lon}", s.PlaceHandler)
	r.GET("/rgeocode/nearest/{lat}/{lon}", s.NearestHandler)
	r.POST("/rgeocode/multiplace", s.MultiPlaceHandler)
	r.GET("/rgeocode/tiles/{lat}/{lon}", s.TilesHandler)
	r.Handle(http.MethodGet, "/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler()))
	return r
}

var reqPointsPool = sync.Pool{
	New: func() any {
		return &[][2]float64{}
	},
}

func parseCoordinate(ctx *fasthttp.RequestCtx) (geomodel.Coordinate, bool) {
	latS, _ := ctx.UserValue("lat").(string)
	lonS, _ := ctx.UserValue("lon").(string)

	lat, err := strconv.ParseFloat(latS, 64)
	if err != nil {
		return geomodel.Coordinate{}, false
	}
	lon, err := strconv.ParseFloat(lonS, 64)
	if err != nil {
		return geomodel.Coordinate{}, false
	}

	c := geomodel.Coordinate{Lat: lat, Lon: lon}
	return c, c.Valid()
}

func (s *server) lookupFailed(ctx *fasthttp.RequestCtx, err error) {
	if errors.Is(err, geocoder.ErrInvalidCoordinate) {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString(err.Error())
		return
	}

	s.metricLookupErrors.Add(ctx, 1)
	s.log.ErrorContext(ctx, "lookup failed", "error", err.Error())
	ctx.Response.SetStatusCode(http.StatusInternalServerError)
	ctx.Response.SetBodyString("lookup failed")
}

func (s *server) writeJSON(ctx *fasthttp.RequestCtx, v easyjson.Marshaler) {
	out, err := easyjson.Marshal(v)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		ctx.Response.SetBodyString("failed to marshal response")
		return
	}

	ctx.Response.Header.SetContentType("application/json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(out)
}

func (s *server) PlaceHandler(ctx *fasthttp.RequestCtx) {
	s.metricPlaceCallCount.Add(ctx, 1)

	c, ok := parseCoordinate(ctx)
	if !ok {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}

	name, err := s.geo.Lookup(ctx, c.Lat, c.Lon)
	if err != nil {
		s.lookupFailed(ctx, err)
		return
	}
	s.metricPlacesResolved.Add(ctx, 1)

	s.writeJSON(ctx, geomodel.Result{Name: name})
}

func (s *server) NearestHandler(ctx *fasthttp.RequestCtx) {
	s.metricPlaceCallCount.Add(ctx, 1)

	c, ok := parseCoordinate(ctx)
	if !ok {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}

	m, found, err := s.geo.Nearest(ctx, c.Lat, c.Lon)
	if err != nil {
		s.lookupFailed(ctx, err)
		return
	}
	if !found {
		ctx.Response.SetStatusCode(http.StatusNoContent)
		return
	}
	s.metricPlacesResolved.Add(ctx, 1)

	s.writeJSON(ctx, m)
}

func (s *server) MultiPlaceHandler(ctx *fasthttp.RequestCtx) {
	s.metricMultiPlaceCallCount.Add(ctx, 1)

	req := reqPointsPool.Get().(*[][2]float64) // lat, lon
	*req = (*req)[:0]
	defer reqPointsPool.Put(req)

	err := unmarshalPointsListFast(ctx.Request.Body(), req)
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		ctx.Response.SetBodyString("failed to parse request: " + err.Error())
		return
	}

	coords := make([]geomodel.Coordinate, len(*req))
	for i, p := range *req {
		coords[i] = geomodel.Coordinate{Lat: p[0], Lon: p[1]}
	}

	names, err := s.geo.LookupMany(ctx, coords)
	if err != nil {
		s.lookupFailed(ctx, err)
		return
	}
	s.metricPlacesResolved.Add(ctx, int64(len(names)))

	s.writeJSON(ctx, geomodel.ResultList(names))
}

// TilesHandler shows which tiles a query consults, as a GeoJSON feature collection.
func (s *server) TilesHandler(ctx *fasthttp.RequestCtx) {
	c, ok := parseCoordinate(ctx)
	if !ok {
		ctx.Response.SetStatusCode(http.StatusBadRequest)
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, addr := range tiles.Neighborhood(c) {
		f := geojson.NewFeature(addr.Bound().ToPolygon())
		f.Properties["x"] = addr.X
		f.Properties["y"] = addr.Y
		f.Properties["address"] = addr.String()
		fc.Append(f)
	}
	fc.Append(geojson.NewFeature(c.Point()))

	out, err := fc.MarshalJSON()
	if err != nil {
		ctx.Response.SetStatusCode(http.StatusInternalServerError)
		return
	}
	ctx.Response.Header.SetContentType("application/geo+json")
	ctx.Response.SetStatusCode(http.StatusOK)
	ctx.Response.SetBody(out)
}
