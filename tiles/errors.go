package tiles

import (
	"errors"
	"fmt"
)

var (
	ErrStorageRead   = errors.New("tile storage read failed")
	ErrDecompression = errors.New("tile decompression failed")
	ErrMalformedTile = errors.New("malformed tile content")
)

// TileError reports a failed tile load. errors.Is matches both Kind and Err.
type TileError struct {
	Addr Address
	Kind error
	Err  error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %s: %s: %s", e.Addr, e.Kind, e.Err)
}

func (e *TileError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
