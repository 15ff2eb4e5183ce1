package tiles

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"strconv"

	"github.com/royalcat/rgeotile/geomodel"
)

// Store loads the places of a tile. A tile missing from the backing storage is an empty
// tile, not an error. Failures are reported as *TileError.
type Store interface {
	Load(ctx context.Context, addr Address) ([]geomodel.Place, error)
}

// TilePath is the slash separated location of a tile relative to the dataset root.
func TilePath(addr Address, ext string) string {
	return path.Join(strconv.Itoa(addr.X), strconv.Itoa(addr.Y)+ext)
}

func decodeTile(addr Address, ext string, raw []byte) ([]geomodel.Place, error) {
	payload, err := decompress(ext, raw)
	if err != nil {
		return nil, &TileError{Addr: addr, Kind: ErrDecompression, Err: err}
	}

	var places []geomodel.Place
	if isVersioned(payload) {
		places, err = decodeVersioned(payload)
	} else {
		places, err = decodeFlat(payload)
	}
	if err != nil {
		return nil, &TileError{Addr: addr, Kind: ErrMalformedTile, Err: err}
	}
	return places, nil
}

// FSStore reads tiles laid out as <x>/<y><ext> under the root of a file system.
type FSStore struct {
	fsys fs.FS
	ext  string
}

var _ Store = (*FSStore)(nil)

func NewFSStore(fsys fs.FS, ext string) *FSStore {
	if ext == "" {
		ext = DefaultExt
	}
	return &FSStore{fsys: fsys, ext: ext}
}

// OpenDir serves tiles from a data directory on disk.
func OpenDir(dir, ext string) (*FSStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &fs.PathError{Op: "open", Path: dir, Err: errors.New("not a directory")}
	}
	return NewFSStore(os.DirFS(dir), ext), nil
}

func (s *FSStore) Ext() string {
	return s.ext
}

func (s *FSStore) Load(ctx context.Context, addr Address) ([]geomodel.Place, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := fs.ReadFile(s.fsys, TilePath(addr, s.ext))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, &TileError{Addr: addr, Kind: ErrStorageRead, Err: err}
	}

	return decodeTile(addr, s.ext, raw)
}
