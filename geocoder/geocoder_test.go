package geocoder

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/royalcat/rgeotile/geomodel"
	"github.com/royalcat/rgeotile/tiles"
	"github.com/thejerf/slogassert"
)

func tileFS(t testing.TB, content map[tiles.Address][]geomodel.Place) fstest.MapFS {
	t.Helper()
	fsys := fstest.MapFS{}
	for addr, places := range content {
		payload, err := tiles.EncodeFlat(places)
		if err != nil {
			t.Fatal(err)
		}
		data, err := tiles.Compress(tiles.DefaultExt, payload)
		if err != nil {
			t.Fatal(err)
		}
		fsys[tiles.TilePath(addr, tiles.DefaultExt)] = &fstest.MapFile{Data: data}
	}
	return fsys
}

func testGeocoder(t testing.TB, content map[tiles.Address][]geomodel.Place, opts ...Option) *Geocoder {
	t.Helper()
	return NewGeocoder(tiles.NewFSStore(tileFS(t, content), tiles.DefaultExt), opts...)
}

func TestLookupTestville(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40, Lon: -73}},
	})

	name, err := g.Lookup(context.Background(), 40.0001, -73.0001)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != "Testville" {
		t.Fatalf("expected Testville; got %s", name)
	}

	m, ok, err := g.Nearest(context.Background(), 40.0001, -73.0001)
	if err != nil || !ok {
		t.Fatalf("expected match; got %v, %v", ok, err)
	}
	if m.Distance < 13.9 || m.Distance > 14.1 {
		t.Fatalf("expected distance about 14m; got %f", m.Distance)
	}
}

func TestLookupNowhere(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40, Lon: -73}},
	})

	name, err := g.Lookup(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != geomodel.Nowhere {
		t.Fatalf("expected %q; got %q", geomodel.Nowhere, name)
	}

	_, ok, err := g.Nearest(context.Background(), 0, 0)
	if err != nil || ok {
		t.Fatalf("expected no match; got %v, %v", ok, err)
	}
}

func TestLookupPlaceTooFar(t *testing.T) {
	// 0.3 degrees of latitude is about 33km
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40.3, Lon: -73}},
	})

	name, err := g.Lookup(context.Background(), 40.0001, -73.0001)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != geomodel.Nowhere {
		t.Fatalf("expected %q; got %q", geomodel.Nowhere, name)
	}
}

func TestLookupPicksClosestAcrossTiles(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Far", Lat: 40.1, Lon: -73}},
		{X: 75, Y: 36}: {{Name: "Near", Lat: 40.0001, Lon: -73.0002}},
	})

	name, err := g.Lookup(context.Background(), 40.0001, -73.0001)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != "Near" {
		t.Fatalf("expected Near; got %s", name)
	}
}

// metric reading the distance from the candidate latitude
func latitudeAsDistance(_, b geomodel.Coordinate) float64 {
	return b.Lat
}

func TestNearestThreshold(t *testing.T) {
	query := geomodel.Coordinate{}

	tests := []struct {
		name       string
		candidates []geomodel.Place
		want       string
	}{
		{"exactly at threshold", []geomodel.Place{{Name: "Edge", Lat: 25000}}, ""},
		{"just below threshold", []geomodel.Place{{Name: "Inside", Lat: 24999.999}}, "Inside"},
		{"closest qualifying", []geomodel.Place{{Name: "Edge", Lat: 25000}, {Name: "B", Lat: 300}, {Name: "A", Lat: 200}, {Name: "C", Lat: 24999.999}}, "A"},
		{"ties keep first", []geomodel.Place{{Name: "First", Lat: 10}, {Name: "Second", Lat: 10}}, "First"},
		{"empty", nil, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := nearest(query, tt.candidates, MaxDistance, latitudeAsDistance)
			if tt.want == "" {
				if ok {
					t.Fatalf("expected no match; got %+v", m)
				}
				return
			}
			if !ok || m.Name != tt.want {
				t.Fatalf("expected %s; got %+v (%v)", tt.want, m, ok)
			}
		})
	}
}

func TestLookupThresholdThroughEngine(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 128, Y: 64}: {{Name: "Edge", Lat: 25000, Lon: 0.1}},
	}, withDistance(latitudeAsDistance))

	name, err := g.Lookup(context.Background(), -0.1, 0.1)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != geomodel.Nowhere {
		t.Fatalf("expected %q; got %q", geomodel.Nowhere, name)
	}
}

type storeFunc func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error)

func (f storeFunc) Load(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
	return f(ctx, addr)
}

func TestLookupFailsOnTileError(t *testing.T) {
	logs := slogassert.New(t, slog.LevelWarn, nil)

	failing := tiles.Address{X: 127, Y: 63}
	store := storeFunc(func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
		if addr == failing {
			return nil, &tiles.TileError{Addr: addr, Kind: tiles.ErrDecompression, Err: errors.New("gzip: invalid header")}
		}
		return []geomodel.Place{{Name: "Null Island", Lat: 0, Lon: 0}}, nil
	})

	g := NewGeocoder(store, WithLogger(slog.New(logs)))
	name, err := g.Lookup(context.Background(), 0, 0)
	if err == nil {
		t.Fatalf("expected error; got %q", name)
	}
	if name != "" {
		t.Fatalf("expected no partial result; got %q", name)
	}
	if !errors.Is(err, tiles.ErrDecompression) {
		t.Fatalf("expected decompression error; got %v", err)
	}

	logs.AssertMessage("tile load failed")
}

func TestLookupLoadsTilesConcurrently(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(4)
	released := make(chan struct{})
	go func() {
		wg.Wait()
		close(released)
	}()

	store := storeFunc(func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
		wg.Done()
		select {
		case <-released:
		case <-time.After(5 * time.Second):
			return nil, errors.New("loads were not issued concurrently")
		}
		if addr == (tiles.Address{X: 128, Y: 64}) {
			return []geomodel.Place{{Name: "Null Island", Lat: 0.001, Lon: 0.001}}, nil
		}
		return nil, nil
	})

	name, err := NewGeocoder(store).Lookup(context.Background(), 0.0001, 0.0001)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != "Null Island" {
		t.Fatalf("expected Null Island; got %s", name)
	}
}

func TestLookupConcatenatesInAddressOrder(t *testing.T) {
	query := geomodel.Coordinate{Lat: 0.0001, Lon: 0.0001}
	addrs := tiles.Neighborhood(query)

	store := storeFunc(func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
		for i, a := range addrs {
			if a == addr {
				// later addresses answer first
				time.Sleep(time.Duration(3-i) * 10 * time.Millisecond)
				return []geomodel.Place{{Name: addr.String(), Lat: 1}}, nil
			}
		}
		return nil, nil
	})

	g := NewGeocoder(store, withDistance(latitudeAsDistance))
	name, err := g.Lookup(context.Background(), query.Lat, query.Lon)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != addrs[0].String() {
		t.Fatalf("expected first address %s to win the tie; got %s", addrs[0], name)
	}
}

func TestLookupDuplicateAddresses(t *testing.T) {
	// every address resolves to the same tile content
	store := storeFunc(func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
		return []geomodel.Place{{Name: "Everywhere", Lat: 10, Lon: 10}}, nil
	})

	name, err := NewGeocoder(store).Lookup(context.Background(), 10.0001, 10)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != "Everywhere" {
		t.Fatalf("expected Everywhere; got %s", name)
	}
}

func TestLookupInvalidCoordinate(t *testing.T) {
	called := false
	store := storeFunc(func(ctx context.Context, addr tiles.Address) ([]geomodel.Place, error) {
		called = true
		return nil, nil
	})
	g := NewGeocoder(store)

	for _, c := range [][2]float64{{91, 0}, {0, 181}, {-90.5, 0}} {
		_, err := g.Lookup(context.Background(), c[0], c[1])
		if !errors.Is(err, ErrInvalidCoordinate) {
			t.Fatalf("%v: expected ErrInvalidCoordinate; got %v", c, err)
		}
	}
	if called {
		t.Fatal("store must not be touched for invalid coordinates")
	}
}

func TestLookupPoles(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 0, Y: 0}: {{Name: "North", Lat: 89.9999, Lon: -179.9999}},
	})

	for _, c := range [][2]float64{{90, -180}, {-90, 180}, {90, 180}} {
		name, err := g.Lookup(context.Background(), c[0], c[1])
		if err != nil {
			t.Fatalf("%v: unexpected error: %s", c, err)
		}
		if name == "" {
			t.Fatalf("%v: empty result", c)
		}
	}
}

func TestLookupMany(t *testing.T) {
	g := testGeocoder(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40, Lon: -73}},
	}, WithConcurrency(2))

	coords := []geomodel.Coordinate{
		{Lat: 40.0001, Lon: -73.0001},
		{Lat: 0, Lon: 0},
		{Lat: 40, Lon: -73},
	}
	names, err := g.LookupMany(context.Background(), coords)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	want := []string{"Testville", geomodel.Nowhere, "Testville"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v; got %v", want, names)
		}
	}

	_, err = g.LookupMany(context.Background(), []geomodel.Coordinate{{Lat: 0, Lon: 0}, {Lat: 100, Lon: 0}})
	if !errors.Is(err, ErrInvalidCoordinate) {
		t.Fatalf("expected batch to fail; got %v", err)
	}
}

func TestLookupManyNonPositiveConcurrency(t *testing.T) {
	for _, n := range []int{-1, 0} {
		g := testGeocoder(t, nil, WithConcurrency(n))

		names, err := g.LookupMany(context.Background(), []geomodel.Coordinate{{Lat: 1, Lon: 1}, {Lat: 2, Lon: 2}})
		if err != nil {
			t.Fatalf("concurrency %d: unexpected error: %s", n, err)
		}
		if len(names) != 2 || names[0] != geomodel.Nowhere || names[1] != geomodel.Nowhere {
			t.Fatalf("concurrency %d: expected %q twice; got %q", n, geomodel.Nowhere, names)
		}
	}
}

func TestOpenDir(t *testing.T) {
	dir := t.TempDir()
	fsys := tileFS(t, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40, Lon: -73}},
	})
	for name, f := range fsys {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, f.Data, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	g, err := OpenDir(dir, tiles.DefaultExt)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	name, err := g.Lookup(context.Background(), 40.0001, -73.0001)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if name != "Testville" {
		t.Fatalf("expected Testville; got %s", name)
	}

	if _, err := OpenDir(filepath.Join(dir, "missing"), tiles.DefaultExt); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func BenchmarkLookup(b *testing.B) {
	g := testGeocoder(b, map[tiles.Address][]geomodel.Place{
		{X: 76, Y: 35}: {{Name: "Testville", Lat: 40, Lon: -73}},
	})
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := g.Lookup(ctx, 40.0001, -73.0001); err != nil {
			b.Fatal(err)
		}
	}
}
