package mailstore

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// SuffixMarker terminates the timestamp encoded in every message filename.
const SuffixMarker = "s.eml"

// UIDScale is the factor applied to the encoded seconds before truncation.
// One UID step is a tenth of a second.
const UIDScale = 10

// maxSeconds is the largest whole-second value whose scaled UID, tenths
// included, still fits in a uint64
const maxSeconds = (math.MaxUint64 - (UIDScale - 1)) / UIDScale

// ErrBadFilename is returned for names that do not follow <seconds>[.<fraction>]s.eml
var ErrBadFilename = errors.New("filename does not encode a timestamp")

// seed is the decimal timestamp in a filename, kept exact: whole seconds
// plus the fraction digits as written.
type seed struct {
	secs uint64
	frac string
}

func parseSeed(name string) (seed, error) {
	stem, ok := strings.CutSuffix(name, SuffixMarker)
	if !ok {
		return seed{}, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}

	// The numeric portion is the trailing run of digits with at most one dot;
	// anything before it is a prefix and does not take part in the UID.
	start := len(stem)
	dots := 0
	for start > 0 {
		c := stem[start-1]
		if c == '.' && dots == 0 {
			dots++
		} else if c < '0' || c > '9' {
			break
		}
		start--
	}
	numeric := stem[start:]
	if numeric == "" || numeric == "." {
		return seed{}, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}

	whole, frac, _ := strings.Cut(numeric, ".")
	if whole == "" {
		whole = "0"
	}
	secs, err := strconv.ParseUint(whole, 10, 64)
	if err != nil || secs > maxSeconds {
		return seed{}, fmt.Errorf("%q: %w", name, ErrBadFilename)
	}
	return seed{secs: secs, frac: frac}, nil
}

// scaled returns floor(seed * UIDScale) without going through floating point.
func (s seed) scaled() uint64 {
	var tenths uint64
	if s.frac != "" {
		tenths = uint64(s.frac[0] - '0')
	}
	return s.secs*UIDScale + tenths
}

func (s seed) time() time.Time {
	var nanos int64
	if s.frac != "" {
		digits := s.frac
		if len(digits) > 9 {
			digits = digits[:9]
		}
		digits += strings.Repeat("0", 9-len(digits))
		nanos, _ = strconv.ParseInt(digits, 10, 64)
	}
	return time.Unix(int64(s.secs), nanos).UTC()
}

// UIDFromFilename derives a message UID from its filename alone.
// The result only depends on the encoded timestamp, so it is stable across
// listings and grows with creation time.
func UIDFromFilename(name string) (uint64, error) {
	s, err := parseSeed(name)
	if err != nil {
		return 0, err
	}
	return s.scaled(), nil
}

// SeedFromFilename returns the instant encoded in a message filename
func SeedFromFilename(name string) (time.Time, error) {
	s, err := parseSeed(name)
	if err != nil {
		return time.Time{}, err
	}
	return s.time(), nil
}

// FormatFilename builds the filename a message created at t is stored under
func FormatFilename(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%d.%d%s", t.Unix(), t.Nanosecond()/int(100*time.Millisecond), SuffixMarker)
}
