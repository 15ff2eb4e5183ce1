package geomodel

import (
	"github.com/mailru/easyjson/jwriter"
)

// Result is the name answered for a single query.
type Result struct {
	Name string
}

func (v Result) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	out.RawString(`"name":`)
	out.String(v.Name)
	out.RawByte('}')
}

func (v Result) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

// ResultList is encoded as a plain array of names.
type ResultList []string

func (v ResultList) MarshalEasyJSON(out *jwriter.Writer) {
	if v == nil && (out.Flags&jwriter.NilSliceAsEmpty) == 0 {
		out.RawString("null")
		return
	}
	out.RawByte('[')
	for i, name := range v {
		if i > 0 {
			out.RawByte(',')
		}
		out.String(name)
	}
	out.RawByte(']')
}

func (v ResultList) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}

func (v Match) MarshalEasyJSON(out *jwriter.Writer) {
	out.RawByte('{')
	out.RawString(`"name":`)
	out.String(v.Name)
	out.RawString(`,"lat":`)
	out.Float64(v.Lat)
	out.RawString(`,"lon":`)
	out.Float64(v.Lon)
	out.RawString(`,"distance":`)
	out.Float64(v.Distance)
	out.RawByte('}')
}

func (v Match) MarshalJSON() ([]byte, error) {
	w := jwriter.Writer{}
	v.MarshalEasyJSON(&w)
	return w.Buffer.BuildBytes(), w.Error
}
