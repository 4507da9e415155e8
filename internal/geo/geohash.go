// Package geo provides distance and coarse-location utilities for
// privacy-preserving location handling.
package geo

import "strings"

// CoarsePrecision is the geohash precision used for coarse display.
// Six characters resolve to roughly ±0.61 km, enough to show an area
// without pinpointing a venue.
const CoarsePrecision = 6

// base32 is the geohash base32 alphabet (excludes a, i, l, o).
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

var validGeohashChars = func() map[rune]bool {
	m := make(map[rune]bool, len(base32))
	for _, c := range base32 {
		m[c] = true
	}
	return m
}()

// EncodeGeohash encodes a coordinate into a geohash of the given
// precision using the standard interleaved base32 algorithm. A
// precision below 1 falls back to CoarsePrecision.
func EncodeGeohash(lat, lon float64, precision int) string {
	if precision < 1 {
		precision = CoarsePrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lonRange := [2]float64{-180.0, 180.0}

	var hash strings.Builder
	hash.Grow(precision)

	bits := 0
	var ch uint

	even := true
	for hash.Len() < precision {
		if even {
			mid := (lonRange[0] + lonRange[1]) / 2
			if lon > mid {
				ch |= (1 << (4 - bits))
				lonRange[0] = mid
			} else {
				lonRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= (1 << (4 - bits))
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}

		even = !even
		bits++

		if bits == 5 {
			hash.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return hash.String()
}

// CoarseArea encodes a coordinate at CoarsePrecision. Used when a user
// allows only an approximate area to be displayed.
func CoarseArea(lat, lon float64) string {
	return EncodeGeohash(lat, lon, CoarsePrecision)
}

// TruncateGeohash normalizes a geohash to lowercase and truncates it to
// the given precision. Returns empty string for invalid input or a
// precision below 1. Input shorter than the precision is returned
// normalized but untruncated.
func TruncateGeohash(input string, precision int) string {
	if input == "" || precision < 1 {
		return ""
	}

	lower := strings.ToLower(input)
	for _, c := range lower {
		if !validGeohashChars[c] {
			return ""
		}
	}

	if len(lower) <= precision {
		return lower
	}
	return lower[:precision]
}
