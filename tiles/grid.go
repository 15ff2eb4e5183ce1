package tiles

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/royalcat/rgeotile/geomodel"
)

// Grid dimensions. Columns cover longitude [-180,180), rows cover latitude (90,-90].
const (
	Width  = 256
	Height = 128
)

// Address identifies a single tile in the global grid.
type Address struct {
	X, Y int
}

func (a Address) String() string {
	return strconv.Itoa(a.X) + "/" + strconv.Itoa(a.Y)
}

// Bound returns the lon/lat rectangle covered by the tile.
func (a Address) Bound() orb.Bound {
	const (
		lonStep = 360.0 / Width
		latStep = 180.0 / Height
	)
	return orb.Bound{
		Min: orb.Point{float64(a.X)*lonStep - 180, 90 - float64(a.Y+1)*latStep},
		Max: orb.Point{float64(a.X+1)*lonStep - 180, 90 - float64(a.Y)*latStep},
	}
}

// Neighborhood returns the covering tile of c followed by the neighbours toward which c
// leans inside that tile, in the order (x,y), (nx,y), (x,ny), (nx,ny).
//
// Both axes wrap. Wrapping rows joins the poles, which has no geographic meaning, but it
// is how the existing datasets were addressed.
func Neighborhood(c geomodel.Coordinate) [4]Address {
	u := math.Mod((c.Lon+180)*Width/360, Width)
	v := math.Mod((90-c.Lat)*Height/180, Height)

	x := int(math.Floor(u))
	y := int(math.Floor(v))

	nx := neighbor(x, u-float64(x), Width)
	ny := neighbor(y, v-float64(y), Height)

	return [4]Address{
		{X: x, Y: y},
		{X: nx, Y: y},
		{X: x, Y: ny},
		{X: nx, Y: ny},
	}
}

func neighbor(i int, frac float64, size int) int {
	if frac < 0.5 {
		if i == 0 {
			return size - 1
		}
		return i - 1
	}
	if i+1 == size {
		return 0
	}
	return i + 1
}
