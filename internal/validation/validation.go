package validation

import (
	"errors"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Location bounds in runes, counted after normalisation.
const (
	LocationMinLen = 1
	LocationMaxLen = 100
)

var (
	ErrLocationEmpty        = errors.New("location is required")
	ErrLocationTooShort     = errors.New("location too short")
	ErrLocationTooLong      = errors.New("location too long")
	ErrLocationInvalidChars = errors.New("location contains invalid characters")

	ErrLatitudeRange  = errors.New("latitude must be between -90 and 90")
	ErrLongitudeRange = errors.New("longitude must be between -180 and 180")
)

// ValidateLocation returns the location in canonical form: NFC, trimmed, with
// inner whitespace runs collapsed to one space. Any printable rune is accepted
// (place names carry parentheses, slashes, typographic apostrophes); control
// characters are not. A bound of zero is not enforced.
func ValidateLocation(input string, minLen, maxLen int) (string, error) {
	s := strings.Join(strings.Fields(norm.NFC.String(input)), " ")
	if s == "" {
		return "", ErrLocationEmpty
	}
	n := 0
	for _, r := range s {
		if !locationRune(r) {
			return "", ErrLocationInvalidChars
		}
		n++
	}
	switch {
	case minLen > 0 && n < minLen:
		return "", ErrLocationTooShort
	case maxLen > 0 && n > maxLen:
		return "", ErrLocationTooLong
	}
	return s, nil
}

func locationRune(r rune) bool {
	return r != utf8.RuneError && !unicode.IsControl(r)
}

// ValidateCoordinates checks WGS84 bounds. (0, 0) is valid.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return ErrLatitudeRange
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return ErrLongitudeRange
	}
	return nil
}
