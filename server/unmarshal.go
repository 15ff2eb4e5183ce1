package server

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
)

func isSpace(c byte) bool {
	return c == ' ' || c == '\n' || c == '\t' || c == '\r'
}

func isNumberByte(c byte) bool {
	return (c >= '0' && c <= '9') || c == '-' || c == '+' || c == '.' || c == 'e' || c == 'E'
}

// unmarshalPointsListFast parses [[lat, lon], ...] without reflection, appending to result.
func unmarshalPointsListFast(data []byte, result *[][2]float64) error {
	i := 0
	n := len(data)

	skip := func() {
		for i < n && isSpace(data[i]) {
			i++
		}
	}
	expect := func(c byte, what string) error {
		skip()
		if i >= n || data[i] != c {
			return fmt.Errorf("invalid format: expected '%c' %s", c, what)
		}
		i++
		return nil
	}

	*result = slices.Grow(*result, n/16) // n/16 is a heuristic

	if err := expect('[', "at start of list"); err != nil {
		return err
	}

	skip()
	if i < n && data[i] == ']' {
		i++
	} else {
		for {
			if err := expect('[', "for point"); err != nil {
				return err
			}

			var point [2]float64
			for j := range point {
				skip()
				start := i
				for i < n && isNumberByte(data[i]) {
					i++
				}
				if start == i {
					return errors.New("invalid format: expected number")
				}
				num, err := strconv.ParseFloat(string(data[start:i]), 64)
				if err != nil {
					return fmt.Errorf("invalid number: %w", err)
				}
				point[j] = num

				if j == 0 {
					if err := expect(',', "between coordinates"); err != nil {
						return err
					}
				}
			}

			if err := expect(']', "at end of point"); err != nil {
				return err
			}
			*result = append(*result, point)

			skip()
			if i < n && data[i] == ',' {
				i++
				continue
			}
			if err := expect(']', "at end of list"); err != nil {
				return err
			}
			break
		}
	}

	skip()
	if i != n {
		return errors.New("invalid format: trailing data after list")
	}
	return nil
}
