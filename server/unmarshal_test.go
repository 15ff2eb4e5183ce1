package server

import (
	"encoding/json"
	"slices"
	"testing"
)

func TestUnmarshalPointsListFast(t *testing.T) {
	tests := []struct {
		data []byte
		want [][2]float64
	}{
		{[]byte(`[]`), [][2]float64{}},
		{[]byte(` [ ] `), [][2]float64{}},
		{[]byte(`[[1, 2]]`), [][2]float64{{1, 2}}},
		{[]byte(`[[1,2], [3,4]]`), [][2]float64{{1, 2}, {3, 4}}},
		{[]byte(`[[1,2.1], [3,4]]`), [][2]float64{{1, 2.1}, {3, 4}}},
		{[]byte(`[[-1.4, -1],[-0, 1]]`), [][2]float64{{-1.4, -1}, {0, 1}}},
		{[]byte("[\n\t[40.0001, -73.0001]\n]"), [][2]float64{{40.0001, -73.0001}}},
		{[]byte(`[[1e1, 2E-1]]`), [][2]float64{{10, 0.2}}},
	}

	for _, tt := range tests {
		res := [][2]float64{}
		err := unmarshalPointsListFast(tt.data, &res)
		if err != nil {
			t.Fatalf("%s: unexpected error: %s", tt.data, err.Error())
		}

		if !slices.Equal(tt.want, res) {
			t.Fatalf("%s: result expected %v; got %v", tt.data, tt.want, res)
		}
	}
}

func TestUnmarshalPointsListFastInvalid(t *testing.T) {
	tests := []string{
		``,
		`{}`,
		`[`,
		`[[1]]`,
		`[[1,]]`,
		`[[1,2,3]]`,
		`[[1,2]`,
		`[[1,2],]`,
		`[[a, 0]]`,
		`[[1,2]] x`,
		`[[1-2, 3]]`,
	}

	for _, data := range tests {
		var res [][2]float64
		if err := unmarshalPointsListFast([]byte(data), &res); err == nil {
			t.Fatalf("%q: expected error; got %v", data, res)
		}
	}
}

func FuzzUnmarshalPointsListFast(f *testing.F) {
	f.Add([]byte(`[]`))
	f.Add([]byte(`[[1,2]]`))
	f.Add([]byte(`[[1,2],[3,4]]`))
	f.Add([]byte(`[[1,2.1],[3]]`))
	f.Add([]byte(`[[1,2.1],[3,4,5]]`))
	f.Add([]byte(`[[1.4],[3.1]]`))
	f.Add([]byte(`[[-1.4, -1],[-0, 1]]`))
	f.Add([]byte(`[[a, -0],[0, 2]]`))

	f.Fuzz(func(t *testing.T, data []byte) {
		var fastRes [][2]float64
		if err := unmarshalPointsListFast(data, &fastRes); err != nil {
			return
		}

		var jsonRes [][2]float64
		if err := json.Unmarshal(data, &jsonRes); err != nil {
			// strconv accepts forms json does not, like "+1" or "1."
			return
		}
		if !slices.Equal(jsonRes, fastRes) && !(len(jsonRes) == 0 && len(fastRes) == 0) {
			t.Fatalf("result expected %v; got %v", jsonRes, fastRes)
		}
	})
}

func BenchmarkUnmarshalPoints(b *testing.B) {
	data := []byte(`[[1,2], [3,4], [5,6], [7,8], [9,10]]`)

	b.Run("json", func(b *testing.B) {
		var res [][2]float64
		for i := 0; i < b.N; i++ {
			if err := json.Unmarshal(data, &res); err != nil {
				b.Fatalf("unexpected error: %s", err.Error())
			}
		}
	})

	b.Run("fast", func(b *testing.B) {
		var res [][2]float64
		for i := 0; i < b.N; i++ {
			res = res[:0]
			if err := unmarshalPointsListFast(data, &res); err != nil {
				b.Fatalf("unexpected error: %s", err.Error())
			}
		}
	})
}
