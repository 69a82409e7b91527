package normalize

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// ErrEmpty marks a value that is missing or blank in the source document.
var ErrEmpty = errors.New("empty value")

// ErrMalformed marks a value that is present but cannot be parsed as its kind.
var ErrMalformed = errors.New("malformed value")

// ParseDollar parses a currency string such as "$1,234.50".
func ParseDollar(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}
	cleaned := strings.NewReplacer("$", "", ",", "").Replace(s)
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: dollar %q", ErrMalformed, s)
	}
	return f, nil
}

// ParseBool maps true/t/yes/y/1 and false/f/no/n/0, ignoring case.
func ParseBool(s string) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	switch v {
	case "":
		return false, ErrEmpty
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: bool %q", ErrMalformed, s)
}

// ParseInt parses a base-10 integer.
func ParseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrEmpty
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: int %q", ErrMalformed, s)
	}
	return n, nil
}

// ParseTime parses a timestamp in any of the layouts the feed has been seen
// to use. The source offset is preserved; strings without one are UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrEmpty
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: time %q", ErrMalformed, s)
	}
	return t, nil
}

// ParseDate parses a timestamp and truncates it to its calendar day in UTC.
func ParseDate(s string) (time.Time, error) {
	t, err := ParseTime(s)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// Parse converts raw source text into the Go value for kind k.
func (k Kind) Parse(raw string) (any, error) {
	switch k {
	case Int:
		return ParseInt(raw)
	case Float:
		return ParseDollar(raw)
	case Date:
		return ParseDate(raw)
	case Time:
		t, err := ParseTime(raw)
		if err != nil {
			return nil, err
		}
		return t.UTC(), nil
	case Bool:
		return ParseBool(raw)
	default:
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, ErrEmpty
		}
		return s, nil
	}
}
