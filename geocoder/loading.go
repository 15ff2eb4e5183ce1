package geocoder

import (
	"fmt"
	"log/slog"

	"github.com/royalcat/rgeotile/tiles"
)

func loadOptions(opts ...Option) options {
	options := options{
		maxDistance: MaxDistance,
		concurrency: defaultConcurrency(),
		distance:    Distance,
		logger:      slog.Default(),
	}
	for _, o := range opts {
		o.apply(&options)
	}
	if options.concurrency < 1 {
		options.concurrency = defaultConcurrency()
	}
	return options
}

func NewGeocoder(store tiles.Store, opts ...Option) *Geocoder {
	options := loadOptions(opts...)

	return &Geocoder{
		store:       store,
		maxDistance: options.maxDistance,
		concurrency: options.concurrency,
		distance:    options.distance,
		logger:      options.logger,
	}
}

// OpenDir creates a geocoder over a tile directory on disk, laid out as <x>/<y><ext>.
func OpenDir(dir, ext string, opts ...Option) (*Geocoder, error) {
	options := loadOptions(opts...)
	log := options.logger

	store, err := tiles.OpenDir(dir, ext)
	if err != nil {
		return nil, fmt.Errorf("error opening tiles directory: %w", err)
	}
	log.Info("Serving tiles from directory", "dir", dir, "ext", store.Ext())

	return NewGeocoder(store, opts...), nil
}
