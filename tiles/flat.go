package tiles

import (
	"errors"

	"github.com/mailru/easyjson"
	"github.com/mailru/easyjson/jlexer"
	"github.com/mailru/easyjson/jwriter"
	"github.com/royalcat/rgeotile/geomodel"
)

var (
	errTruncatedTriple = errors.New("truncated place triple")
	errEmptyName       = errors.New("empty place name")
)

// flatTile is the legacy payload: [name, lat, lon, name, lat, lon, ...].
type flatTile []geomodel.Place

var (
	_ easyjson.Unmarshaler = (*flatTile)(nil)
	_ easyjson.Marshaler   = flatTile(nil)
)

func (t *flatTile) UnmarshalEasyJSON(in *jlexer.Lexer) {
	if in.IsNull() {
		in.Skip()
		*t = nil
		in.Consumed()
		return
	}

	in.Delim('[')
	for !in.IsDelim(']') {
		name := in.String()
		in.WantComma()
		if in.IsDelim(']') {
			in.AddError(errTruncatedTriple)
			break
		}
		lat := in.Float64()
		in.WantComma()
		if in.IsDelim(']') {
			in.AddError(errTruncatedTriple)
			break
		}
		lon := in.Float64()
		in.WantComma()

		if !in.Ok() {
			break
		}
		if name == "" {
			in.AddError(errEmptyName)
			break
		}
		*t = append(*t, geomodel.Place{Name: name, Lat: lat, Lon: lon})
	}
	in.Delim(']')
	in.Consumed()
}

func (t flatTile) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('[')
	for i, p := range t {
		if i > 0 {
			out.RawByte(',')
		}
		out.String(p.Name)
		out.RawByte(',')
		out.Float64(p.Lat)
		out.RawByte(',')
		out.Float64(p.Lon)
	}
	out.RawByte(']')
}

func decodeFlat(payload []byte) ([]geomodel.Place, error) {
	var t flatTile
	if err := easyjson.Unmarshal(payload, &t); err != nil {
		return nil, err
	}
	return t, nil
}

// EncodeFlat renders places in the legacy flat-triple layout.
func EncodeFlat(places []geomodel.Place) ([]byte, error) {
	return easyjson.Marshal(flatTile(places))
}
