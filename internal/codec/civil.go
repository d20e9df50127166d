// Package codec implements the per-dialect type registries and the text
// and binary wire codecs for every value kind the drivers exchange.
package codec

import (
	"fmt"
	"strconv"
	"strings"

	"sqlmodel/internal/sqlerr"
)

// Civil-calendar conversion between (year, month, day) and days since
// the Unix epoch. The epoch is shifted to 0000-03-01 so leap days fall
// at the end of the internal year, following the days-from-civil
// algorithm.

// DaysFromCivil converts a proleptic-Gregorian date to days since
// 1970-01-01.
func DaysFromCivil(y, m, d int) int32 {
	if m <= 2 {
		y--
	}
	var era int
	if y >= 0 {
		era = y / 400
	} else {
		era = (y - 399) / 400
	}
	yoe := y - era*400 // [0, 399]
	var mp int
	if m > 2 {
		mp = m - 3
	} else {
		mp = m + 9
	}
	doy := (153*mp+2)/5 + d - 1            // [0, 365]
	doe := yoe*365 + yoe/4 - yoe/100 + doy // [0, 146096]
	return int32(era*146097 + doe - 719468)
}

// CivilFromDays is the inverse of DaysFromCivil.
func CivilFromDays(days int32) (y, m, d int) {
	z := int(days) + 719468
	var era int
	if z >= 0 {
		era = z / 146097
	} else {
		era = (z - 146096) / 146097
	}
	doe := z - era*146097
	yoe := (doe - doe/1460 + doe/36524 - doe/146096) / 365
	y = yoe + era*400
	doy := doe - (365*yoe + yoe/4 - yoe/100)
	mp := (5*doy + 2) / 153
	d = doy - (153*mp+2)/5 + 1
	if mp < 10 {
		m = mp + 3
	} else {
		m = mp - 9
	}
	if m <= 2 {
		y++
	}
	return y, m, d
}

// FormatDate renders days-since-epoch as YYYY-MM-DD.
func FormatDate(days int32) string {
	y, m, d := CivilFromDays(days)
	return fmt.Sprintf("%04d-%02d-%02d", y, m, d)
}

// ParseDate parses YYYY-MM-DD into days since the Unix epoch.
func ParseDate(s string) (int32, error) {
	parts := strings.SplitN(s, "-", 3)
	if len(parts) != 3 {
		return 0, sqlerr.New(sqlerr.Serde, "malformed date %q", s)
	}
	y, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	d, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil || m < 1 || m > 12 || d < 1 || d > 31 {
		return 0, sqlerr.New(sqlerr.Serde, "malformed date %q", s)
	}
	return DaysFromCivil(y, m, d), nil
}

// FormatTimeOfDay renders microseconds since midnight as
// HH:MM:SS[.ffffff], trimming trailing zero fraction digits.
func FormatTimeOfDay(micros int64) string {
	us := micros % 1_000_000
	sec := micros / 1_000_000
	h, mi, s := sec/3600, (sec/60)%60, sec%60
	out := fmt.Sprintf("%02d:%02d:%02d", h, mi, s)
	if us != 0 {
		frac := strings.TrimRight(fmt.Sprintf("%06d", us), "0")
		out += "." + frac
	}
	return out
}

// ParseTimeOfDay parses HH:MM:SS[.ffffff] into microseconds since
// midnight.
func ParseTimeOfDay(s string) (int64, error) {
	var frac int64
	if dot := strings.IndexByte(s, '.'); dot >= 0 {
		f := s[dot+1:]
		if len(f) > 6 {
			f = f[:6]
		}
		for len(f) < 6 {
			f += "0"
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return 0, sqlerr.New(sqlerr.Serde, "malformed time %q", s)
		}
		frac = n
		s = s[:dot]
	}
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return 0, sqlerr.New(sqlerr.Serde, "malformed time %q", s)
	}
	h, err1 := strconv.ParseInt(parts[0], 10, 64)
	mi, err2 := strconv.ParseInt(parts[1], 10, 64)
	sec, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, sqlerr.New(sqlerr.Serde, "malformed time %q", s)
	}
	return ((h*60+mi)*60+sec)*1_000_000 + frac, nil
}

// FormatTimestamp renders microseconds since the Unix epoch with the
// given date/time separator (' ' for PG and MySQL text, 'T' for SQLite).
func FormatTimestamp(micros int64, sep byte) string {
	days := micros / 86_400_000_000
	rem := micros % 86_400_000_000
	if rem < 0 {
		days--
		rem += 86_400_000_000
	}
	return FormatDate(int32(days)) + string(sep) + FormatTimeOfDay(rem)
}

// ParseTimestamp accepts either separator.
func ParseTimestamp(s string) (int64, error) {
	sep := strings.IndexAny(s, "T ")
	if sep < 0 {
		return 0, sqlerr.New(sqlerr.Serde, "malformed timestamp %q", s)
	}
	days, err := ParseDate(s[:sep])
	if err != nil {
		return 0, err
	}
	tod, err := ParseTimeOfDay(strings.TrimSuffix(s[sep+1:], "Z"))
	if err != nil {
		return 0, err
	}
	return int64(days)*86_400_000_000 + tod, nil
}
