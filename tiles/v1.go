package tiles

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/royalcat/rgeotile/geomodel"
	"google.golang.org/protobuf/encoding/protowire"
)

// MagicBytes prefixes versioned tile payloads. Payloads without it are legacy flat triples.
var MagicBytes = []byte("RGTL")

const CompatibilityLevelV1 uint32 = 1

// protobuf field numbers of the v1 layout
const (
	fieldTilePlace protowire.Number = 1

	fieldPlaceName protowire.Number = 1
	fieldPlaceLat  protowire.Number = 2
	fieldPlaceLon  protowire.Number = 3
)

func isVersioned(payload []byte) bool {
	return bytes.HasPrefix(payload, MagicBytes)
}

func decodeVersioned(payload []byte) ([]geomodel.Place, error) {
	rest := payload[len(MagicBytes):]
	if len(rest) < 4 {
		return nil, errors.New("missing compatibility level")
	}
	level := binary.LittleEndian.Uint32(rest)
	rest = rest[4:]

	switch level {
	case CompatibilityLevelV1:
		return decodeV1(rest)
	}
	return nil, fmt.Errorf("unsupported compatibility level: %d", level)
}

func decodeV1(b []byte) ([]geomodel.Place, error) {
	var places []geomodel.Place
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]

		if num == fieldTilePlace && typ == protowire.BytesType {
			msg, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, protowire.ParseError(n)
			}
			b = b[n:]

			p, err := decodeV1Place(msg)
			if err != nil {
				return nil, err
			}
			places = append(places, p)
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		b = b[n:]
	}
	return places, nil
}

func decodeV1Place(b []byte) (geomodel.Place, error) {
	var p geomodel.Place
	var hasLat, hasLon bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case num == fieldPlaceName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Name = v
			b = b[n:]
		case num == fieldPlaceLat && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Lat = math.Float64frombits(v)
			hasLat = true
			b = b[n:]
		case num == fieldPlaceLon && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			p.Lon = math.Float64frombits(v)
			hasLon = true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}

	if p.Name == "" {
		return p, errEmptyName
	}
	if !hasLat || !hasLon {
		return p, fmt.Errorf("place %q has no coordinates", p.Name)
	}
	return p, nil
}

// EncodeV1 renders places in the versioned v1 layout.
func EncodeV1(places []geomodel.Place) []byte {
	out := make([]byte, 0, len(MagicBytes)+4+len(places)*32)
	out = append(out, MagicBytes...)
	out = binary.LittleEndian.AppendUint32(out, CompatibilityLevelV1)

	var msg []byte
	for _, p := range places {
		msg = msg[:0]
		msg = protowire.AppendTag(msg, fieldPlaceName, protowire.BytesType)
		msg = protowire.AppendString(msg, p.Name)
		msg = protowire.AppendTag(msg, fieldPlaceLat, protowire.Fixed64Type)
		msg = protowire.AppendFixed64(msg, math.Float64bits(p.Lat))
		msg = protowire.AppendTag(msg, fieldPlaceLon, protowire.Fixed64Type)
		msg = protowire.AppendFixed64(msg, math.Float64bits(p.Lon))

		out = protowire.AppendTag(out, fieldTilePlace, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	return out
}
