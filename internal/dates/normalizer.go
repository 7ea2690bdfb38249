package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// The store holds sale dates written by several generations of front-end
// code: plain YYYY-MM-DD strings, DD/MM/YYYY and DD-MM-YYYY from older
// forms, full ISO timestamps, epoch milliseconds and the occasional
// free-text value with a date buried inside it. Normalize tries each known
// shape in a fixed priority order and gives up cleanly on garbage.
//
// The one rule that matters: a date-only input is a calendar date, not an
// instant. "2025-10-01" means the 1st of October no matter what timezone
// the process runs in. Routing date-only strings through time.Parse in UTC
// and converting back would shift them by a day for half the planet, which
// is exactly the bug this package exists to prevent.

var (
	reCanonical = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})$`)
	reSlashDMY  = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	reDashDMY   = regexp.MustCompile(`^(\d{1,2})-(\d{1,2})-(\d{4})$`)
	reISOPrefix = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})[T ]`)
	reEmbedded  = regexp.MustCompile(`(\d{4})-(\d{2})-(\d{2})`)
	reNumeric   = regexp.MustCompile(`^\d{10,13}$`)
)

// freeLayouts are last-resort layouts for values that slipped past the
// exact matchers. Date-only layouts, so no timezone shift is possible.
var freeLayouts = []string{
	"2006/01/02",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"20060102",
}

// Normalize converts a raw date value of any supported shape into a
// CivilDate. The second return is false when the input is not a
// recognizable date; callers must exclude such records from date-range
// filtering rather than defaulting them anywhere.
func Normalize(raw any) (CivilDate, bool) {
	switch v := raw.(type) {
	case nil:
		return CivilDate{}, false
	case time.Time:
		if v.IsZero() {
			return CivilDate{}, false
		}
		return FromTime(v), true
	case *time.Time:
		if v == nil || v.IsZero() {
			return CivilDate{}, false
		}
		return FromTime(*v), true
	case string:
		return normalizeString(v)
	case int:
		return fromEpochMillis(int64(v))
	case int64:
		return fromEpochMillis(v)
	case float64:
		return fromEpochMillis(int64(v))
	default:
		return CivilDate{}, false
	}
}

func normalizeString(s string) (CivilDate, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CivilDate{}, false
	}

	// Already canonical YYYY-MM-DD.
	if m := reCanonical.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}

	// DD/MM/YYYY (day first, the legacy form format).
	if m := reSlashDMY.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], m[2], m[1])
	}

	// DD-MM-YYYY.
	if m := reDashDMY.FindStringSubmatch(s); m != nil {
		return makeDate(m[3], m[2], m[1])
	}

	// ISO with a time component. The date portion is taken literally:
	// "2025-10-01T00:00:00.000Z" was written by a date picker that meant
	// October 1st, so converting the instant through a local offset and
	// landing on September 30th would corrupt it.
	if m := reISOPrefix.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}

	// Epoch milliseconds serialized as a string.
	if reNumeric.MatchString(s) {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return fromEpochMillis(n)
		}
	}

	// Free parse as last resort.
	for _, layout := range freeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return validate(y, int(m), d)
		}
	}

	// A recognizable date embedded in free text.
	if m := reEmbedded.FindStringSubmatch(s); m != nil {
		return makeDate(m[1], m[2], m[3])
	}

	return CivilDate{}, false
}

func fromEpochMillis(n int64) (CivilDate, bool) {
	// Plausible epoch-millisecond range: 2001-09-09 through 2286-11-20.
	if n < 1e12 || n > 1e13 {
		return CivilDate{}, false
	}
	return FromTime(time.UnixMilli(n)), true
}

func makeDate(year, month, day string) (CivilDate, bool) {
	y, err1 := strconv.Atoi(year)
	m, err2 := strconv.Atoi(month)
	d, err3 := strconv.Atoi(day)
	if err1 != nil || err2 != nil || err3 != nil {
		return CivilDate{}, false
	}
	return validate(y, m, d)
}

// validate rejects impossible calendar dates (month 13, February 30th)
// by round-tripping through time.Date, which normalizes overflow.
func validate(y, m, d int) (CivilDate, bool) {
	if y < 1900 || y > 2200 || m < 1 || m > 12 || d < 1 || d > 31 {
		return CivilDate{}, false
	}
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != m || t.Day() != d {
		return CivilDate{}, false
	}
	return CivilDate{Year: y, Month: m, Day: d}, true
}
