package main

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"github.com/cheggaaa/pb/v3/termutil"
	"github.com/dustin/go-humanize"
	"github.com/fogleman/poissondisc"
	"github.com/paulmach/orb"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/royalcat/rgeotile/geocoder"
	"github.com/royalcat/rgeotile/geomodel"
	"github.com/royalcat/rgeotile/internal/stats"
	"github.com/sourcegraph/conc/pool"
	"github.com/urfave/cli/v3"
)

// parseBound reads "minLat,minLon,maxLat,maxLon" into a lon/lat bound.
func parseBound(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("bound must have 4 comma separated values, got %q", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bound value %q: %w", p, err)
		}
		v[i] = f
	}

	bound := orb.Bound{
		Min: orb.Point{v[1], v[0]},
		Max: orb.Point{v[3], v[2]},
	}
	if bound.Min.X() >= bound.Max.X() || bound.Min.Y() >= bound.Max.Y() {
		return orb.Bound{}, fmt.Errorf("bound %q is empty", s)
	}
	if !(geomodel.Coordinate{Lat: v[0], Lon: v[1]}).Valid() || !(geomodel.Coordinate{Lat: v[2], Lon: v[3]}).Valid() {
		return orb.Bound{}, fmt.Errorf("bound %q is outside of lat/lon range", s)
	}
	return bound, nil
}

func samplePoints(bound orb.Bound, spacing float64) []geomodel.Coordinate {
	points := poissondisc.Sample(bound.Min.X(), bound.Min.Y(), bound.Max.X(), bound.Max.Y(), spacing, 10, nil)

	coords := make([]geomodel.Coordinate, 0, len(points))
	for _, p := range points {
		coords = append(coords, geomodel.Coordinate{Lat: p.Y, Lon: p.X})
	}
	return coords
}

type nameCount struct {
	Name  string
	Count int64
}

// nameTally counts resolved names from concurrent lookups.
type nameTally struct {
	m *xsync.MapOf[string, *xsync.Counter]
}

func newNameTally() *nameTally {
	return &nameTally{m: xsync.NewMapOf[string, *xsync.Counter]()}
}

func (t *nameTally) Add(name string) {
	c, _ := t.m.LoadOrCompute(name, xsync.NewCounter)
	c.Inc()
}

// Top returns the n most frequent names, ties ordered by name.
func (t *nameTally) Top(n int) []nameCount {
	out := make([]nameCount, 0, t.m.Size())
	t.m.Range(func(name string, c *xsync.Counter) bool {
		out = append(out, nameCount{Name: name, Count: c.Value()})
		return true
	})
	slices.SortFunc(out, func(a, b nameCount) int {
		if c := cmp.Compare(b.Count, a.Count); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func runLookups(ctx context.Context, geo *geocoder.Geocoder, coords []geomodel.Coordinate, threads int, tally *nameTally) error {
	bar := pb.StartNew(len(coords))
	bar.Set("prefix", "resolving")
	bar.SetRefreshRate(time.Second)
	if w, err := termutil.TerminalWidth(); w == 0 || err != nil {
		bar.SetTemplateString(`{{with string . "prefix"}}{{.}} {{end}}{{counters . }} {{bar . }} {{percent . }} {{speed . }} {{rtime . "ETA %s"}}` + "\n")
	}
	defer bar.Finish()

	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithMaxGoroutines(threads)
	for _, c := range coords {
		p.Go(func(ctx context.Context) error {
			name, err := geo.Lookup(ctx, c.Lat, c.Lon)
			if err != nil {
				return err
			}
			tally.Add(name)
			bar.Increment()
			return nil
		})
	}
	return p.Wait()
}

func writeBenchReport(w io.Writer, coords int, elapsed time.Duration, top []nameCount, runtimeStats *stats.RuntimeStats) error {
	rate := float64(coords) / elapsed.Seconds()
	_, err := fmt.Fprintf(w, "Resolved %s coordinates in %s (%s lookups/s)\n\n",
		humanize.Comma(int64(coords)), elapsed.Round(time.Millisecond), humanize.CommafWithDigits(rate, 1))
	if err != nil {
		return err
	}

	if len(top) > 0 {
		if _, err := fmt.Fprintf(w, "Most frequent places:\n"); err != nil {
			return err
		}
		for _, nc := range top {
			if _, err := fmt.Fprintf(w, "  %8d  %s\n", nc.Count, nc.Name); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
	}

	return runtimeStats.WriteReport(w, 20)
}

// saveBenchReport writes the report to path, a failed close is reported like a failed write.
func saveBenchReport(path string, coords int, elapsed time.Duration, top []nameCount, runtimeStats *stats.RuntimeStats) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating report file: %w", err)
	}

	err = writeBenchReport(f, coords, elapsed, top, runtimeStats)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("error closing report file: %w", closeErr)
	}
	return err
}

func bench(ctx *cli.Context) error {
	threads := threadCount(ctx)

	_, geo, release, err := setup(ctx, geocoder.WithConcurrency(threads))
	if err != nil {
		return err
	}
	defer release()

	bound, err := parseBound(ctx.String("bound"))
	if err != nil {
		return err
	}
	spacing := ctx.Float64("spacing")
	if spacing <= 0 {
		return fmt.Errorf("spacing must be positive, got %v", spacing)
	}

	coords := samplePoints(bound, spacing)
	slog.Info("Sampled coordinates", "count", len(coords), "bound", ctx.String("bound"), "threads", threads)

	collector, err := stats.NewCollector(time.Second)
	if err != nil {
		return err
	}
	collector.Start()

	tally := newNameTally()
	start := time.Now()
	err = runLookups(ctx.Context, geo, coords, threads, tally)
	elapsed := time.Since(start)
	runtimeStats := collector.Stop()
	if err != nil {
		return fmt.Errorf("benchmark failed: %w", err)
	}

	top := tally.Top(ctx.Int("top"))

	path := ctx.String("report")
	if path == "" {
		return writeBenchReport(os.Stdout, len(coords), elapsed, top, &runtimeStats)
	}
	return saveBenchReport(path, len(coords), elapsed, top, &runtimeStats)
}
