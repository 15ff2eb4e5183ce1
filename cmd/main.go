package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/mailru/easyjson"
	"github.com/redis/go-redis/v9"
	"github.com/royalcat/rgeotile/geocoder"
	"github.com/royalcat/rgeotile/internal/config"
	"github.com/royalcat/rgeotile/internal/telemetry"
	"github.com/royalcat/rgeotile/server"
	"github.com/royalcat/rgeotile/tiles"

	_ "net/http/pprof"

	_ "github.com/KimMachineGun/automemlimit"
	"github.com/urfave/cli/v3"
	_ "go.uber.org/automaxprocs"
)

const appName = "rgeotile"

func main() {
	app := &cli.App{
		Name:        appName,
		Description: "Reverse geocoder over pregenerated place tiles",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:      "config",
				Aliases:   []string{"c"},
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:      "data",
				Aliases:   []string{"d"},
				Usage:     "tile directory, overrides data.dir",
				TakesFile: true,
			},
			&cli.StringFlag{
				Name:  "ext",
				Usage: "tile file extension, overrides data.ext",
			},
			&cli.StringFlag{
				Name:  "redis",
				Usage: "redis address to read tiles from, overrides redis.addr",
			},
			&cli.StringFlag{
				Name:  "otel-endpoint",
				Usage: "otlp/http endpoint, overrides telemetry.endpoint",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "overrides log.level",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "serve a rgeotile api",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:        "listen",
						DefaultText: ":8080",
					},
					&cli.StringFlag{
						Name:        "pprof.listen",
						DefaultText: "",
					},
				},
				Action: serve,
			},
			{
				Name:    "lookup",
				Aliases: []string{"l"},
				Usage:   "resolve a single coordinate",
				Flags: []cli.Flag{
					&cli.Float64Flag{
						Name:     "lat",
						Required: true,
					},
					&cli.Float64Flag{
						Name:     "lon",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "print the matched place with its distance",
					},
				},
				Action: lookup,
			},
			{
				Name:  "bench",
				Usage: "resolve a poisson-disc sample of coordinates and report throughput",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "bound",
						Usage: "minLat,minLon,maxLat,maxLon",
						Value: "-60,-180,75,180",
					},
					&cli.Float64Flag{
						Name:  "spacing",
						Usage: "minimal distance between sampled points in degrees",
						Value: 1,
					},
					&cli.IntFlag{
						Name:        "threads",
						Aliases:     []string{"t"},
						DefaultText: "max",
					},
					&cli.IntFlag{
						Name:  "top",
						Value: 10,
					},
					&cli.StringFlag{
						Name:      "report",
						Aliases:   []string{"o"},
						TakesFile: true,
					},
				},
				Action: bench,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(ctx.String("config"))
	if err != nil {
		return nil, err
	}

	if ctx.IsSet("data") {
		cfg.Data.Dir = ctx.String("data")
	}
	if ctx.IsSet("ext") {
		cfg.Data.Ext = ctx.String("ext")
	}
	if ctx.IsSet("redis") {
		cfg.Redis.Addr = ctx.String("redis")
	}
	if ctx.IsSet("otel-endpoint") {
		cfg.Telemetry.Endpoint = ctx.String("otel-endpoint")
	}
	if ctx.IsSet("log-level") {
		cfg.Log.Level = ctx.String("log-level")
	}
	if ctx.IsSet("listen") {
		cfg.Server.Listen = ctx.String("listen")
	}

	return cfg, cfg.Validate()
}

// setup loads the config, installs telemetry and opens the tile store. The returned
// func releases everything.
func setup(ctx *cli.Context, opts ...geocoder.Option) (*config.Config, *geocoder.Geocoder, func(), error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	tel, err := telemetry.Setup(ctx.Context, appName, cfg.Telemetry.Endpoint, cfg.Log.Level)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("error setting up telemetry: %w", err)
	}

	store, closeStore, err := openStore(ctx.Context, cfg)
	if err != nil {
		shutdownTelemetry(tel)
		return nil, nil, nil, err
	}

	release := func() {
		if err := closeStore(); err != nil {
			slog.Error("failed to close tile store", "error", err.Error())
		}
		shutdownTelemetry(tel)
	}

	opts = append(opts, geocoder.WithLogger(slog.Default().With("component", "geocoder")))
	return cfg, geocoder.NewGeocoder(store, opts...), release, nil
}

func shutdownTelemetry(tel *telemetry.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown telemetry", "error", err.Error())
	}
}

func openStore(ctx context.Context, cfg *config.Config) (tiles.Store, func() error, error) {
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("error connecting to redis %s: %w", cfg.Redis.Addr, err)
		}
		slog.Info("Reading tiles from redis", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.Prefix)

		store := tiles.NewRedisStore(client, cfg.Redis.Prefix, cfg.Data.Ext)
		return store, store.Close, nil
	}

	store, err := tiles.OpenDir(cfg.Data.Dir, cfg.Data.Ext)
	if err != nil {
		return nil, nil, err
	}
	slog.Info("Reading tiles from directory", "dir", cfg.Data.Dir, "ext", store.Ext())

	return store, func() error { return nil }, nil
}

func serve(ctx *cli.Context) error {
	cfg, geo, release, err := setup(ctx)
	if err != nil {
		return err
	}
	defer release()

	if pprofListen := ctx.String("pprof.listen"); pprofListen != "" {
		go func() {
			slog.Info("Starting pprof server")
			err := http.ListenAndServe(pprofListen, nil)
			if err != nil {
				slog.Error("Error starting pprof server", "error", err)
			}
		}()
	}

	return server.Run(ctx.Context, cfg.Server.Listen, geo)
}

func lookup(ctx *cli.Context) error {
	_, geo, release, err := setup(ctx)
	if err != nil {
		return err
	}
	defer release()

	lat, lon := ctx.Float64("lat"), ctx.Float64("lon")

	if !ctx.Bool("json") {
		name, err := geo.Lookup(ctx.Context, lat, lon)
		if err != nil {
			return err
		}
		fmt.Println(name)
		return nil
	}

	m, ok, err := geo.Nearest(ctx.Context, lat, lon)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Println("null")
		return nil
	}
	out, err := easyjson.Marshal(m)
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func threadCount(ctx *cli.Context) int {
	threads := ctx.Int("threads")
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}
	return threads
}
